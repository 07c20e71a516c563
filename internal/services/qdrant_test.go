package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSearchResult(t *testing.T) {
	point := &qdrant.ScoredPoint{
		Id:    qdrant.NewID(pointID("sr-3")),
		Score: 0.91,
		Payload: qdrant.NewValueMap(map[string]any{
			"doc_id":          "sr-3",
			"doc_type":        "scoring_rubric",
			"title":           "Scoring Rubric",
			"text":            "CV match 40%",
			"embedding_model": "text-embedding-004",
		}),
	}

	got := toSearchResult(point)
	assert.Equal(t, SearchResult{
		ID:             "sr-3",
		Score:          0.91,
		Text:           "CV match 40%",
		DocType:        "scoring_rubric",
		EmbeddingModel: "text-embedding-004",
	}, got)
}

func TestToSearchResult_MissingPayload(t *testing.T) {
	got := toSearchResult(&qdrant.ScoredPoint{Score: 0.5})
	assert.Empty(t, got.ID)
	assert.Empty(t, got.Text)
	assert.Equal(t, float32(0.5), got.Score)
}

func TestPointID(t *testing.T) {
	first := pointID("cs-1")
	_, err := uuid.Parse(first)
	require.NoError(t, err)

	assert.Equal(t, first, pointID("cs-1"))
	assert.NotEqual(t, first, pointID("jd-2"))
}
