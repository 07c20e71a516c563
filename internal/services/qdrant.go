package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// VectorSearcher runs one similarity query per vector and returns a ranked
// list for each, in input order.
type VectorSearcher interface {
	QueryBatch(ctx context.Context, vectors [][]float32, limit int) ([][]SearchResult, error)
}

type QdrantService interface {
	VectorSearcher
	InitCollection(ctx context.Context) error
	UpsertDocument(ctx context.Context, doc ReferenceDocument, embedding []float32) error
}

// ReferenceDocument is one piece of the evaluation ground truth.
type ReferenceDocument struct {
	ID             string
	DocType        string
	Title          string
	Text           string
	EmbeddingModel string
}

type SearchResult struct {
	ID             string
	Score          float32
	Text           string
	DocType        string
	EmbeddingModel string
}

type qdrantService struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
	log            *zap.Logger
}

func NewQdrantService(urlStr, apiKey, collectionName string, vectorSize uint64, log *zap.Logger) (QdrantService, error) {
	// Parse URL to extract host, port, and TLS usage
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"

	// gRPC port
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &qdrantService{
		client:         client,
		collectionName: collectionName,
		vectorSize:     vectorSize,
		log:            log,
	}, nil
}

// InitCollection implements QdrantService.
func (q *qdrantService) InitCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if exists {
		q.log.Debug("qdrant collection already exists", zap.String("collection", q.collectionName))
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	q.log.Info("qdrant collection created", zap.String("collection", q.collectionName))
	return nil
}

// UpsertDocument implements QdrantService. Re-seeding the same document id
// overwrites the previous point.
func (q *qdrantService) UpsertDocument(ctx context.Context, doc ReferenceDocument, embedding []float32) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(pointID(doc.ID)),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]any{
			"doc_id":          doc.ID,
			"doc_type":        doc.DocType,
			"title":           doc.Title,
			"text":            doc.Text,
			"embedding_model": doc.EmbeddingModel,
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point %s: %w", doc.ID, err)
	}

	return nil
}

// QueryBatch implements VectorSearcher.
func (q *qdrantService) QueryBatch(ctx context.Context, vectors [][]float32, limit int) ([][]SearchResult, error) {
	if len(vectors) == 0 {
		return nil, nil
	}

	queries := make([]*qdrant.QueryPoints, 0, len(vectors))
	for _, vector := range vectors {
		queries = append(queries, &qdrant.QueryPoints{
			CollectionName: q.collectionName,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
	}

	batches, err := q.client.QueryBatch(ctx, &qdrant.QueryBatchPoints{
		CollectionName: q.collectionName,
		QueryPoints:    queries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([][]SearchResult, len(batches))
	for i, batch := range batches {
		for _, point := range batch.GetResult() {
			results[i] = append(results[i], toSearchResult(point))
		}
	}

	return results, nil
}

func toSearchResult(point *qdrant.ScoredPoint) SearchResult {
	payload := point.GetPayload()
	return SearchResult{
		ID:             payloadString(payload, "doc_id"),
		Score:          point.GetScore(),
		Text:           payloadString(payload, "text"),
		DocType:        payloadString(payload, "doc_type"),
		EmbeddingModel: payloadString(payload, "embedding_model"),
	}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if val, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			return val.StringValue
		}
	}
	return ""
}

// pointID maps a document id such as "sr-3" onto a stable UUID, since Qdrant
// only accepts integers or UUIDs as point ids.
func pointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("round_thruth/"+docID)).String()
}
