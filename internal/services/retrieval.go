package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/cv-evaluation-pipeline/internal/config"
)

// Retriever selects the reference documents used as rubric context for one
// evaluation.
type Retriever interface {
	Retrieve(ctx context.Context, queries []string) ([]SearchResult, error)
}

type RetrievalOptions struct {
	Mode string
	TopK int
}

type ragRetriever struct {
	embedder Embedder
	searcher VectorSearcher
	opts     RetrievalOptions
	log      *zap.Logger
}

func NewRetriever(embedder Embedder, searcher VectorSearcher, opts RetrievalOptions, log *zap.Logger) Retriever {
	if opts.TopK < 1 {
		opts.TopK = 1
	}
	if opts.Mode == "" {
		opts.Mode = config.RetrievalModePrimary
	}
	return &ragRetriever{embedder: embedder, searcher: searcher, opts: opts, log: log}
}

// Retrieve embeds every non-blank query and searches them in one batch. In
// primary mode only the best hit of the first query is returned. In merged
// mode the top K hits of every query are concatenated in query order with
// duplicate documents dropped.
func (r *ragRetriever) Retrieve(ctx context.Context, queries []string) ([]SearchResult, error) {
	texts := make([]string, 0, len(queries))
	for _, q := range queries {
		if strings.TrimSpace(q) != "" {
			texts = append(texts, q)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := r.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed retrieval queries: %w", err)
	}

	ranked, err := r.searcher.QueryBatch(ctx, vectors, r.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference documents: %w", err)
	}

	var selected []SearchResult
	switch r.opts.Mode {
	case config.RetrievalModeMerged:
		selected = mergeRanked(ranked, r.opts.TopK)
	default:
		if len(ranked) > 0 && len(ranked[0]) > 0 {
			selected = ranked[0][:1]
		}
	}

	r.checkEmbeddingModel(selected)
	return selected, nil
}

func (r *ragRetriever) checkEmbeddingModel(docs []SearchResult) {
	want := r.embedder.EmbedModel()
	for _, doc := range docs {
		if doc.EmbeddingModel != "" && doc.EmbeddingModel != want {
			r.log.Warn("reference document embedded with a different model",
				zap.String("doc_id", doc.ID),
				zap.String("indexed_with", doc.EmbeddingModel),
				zap.String("querying_with", want))
		}
	}
}

// mergeRanked flattens per-query rankings keeping the first occurrence of
// each document.
func mergeRanked(ranked [][]SearchResult, topK int) []SearchResult {
	seen := make(map[string]struct{})
	var merged []SearchResult
	for _, list := range ranked {
		if len(list) > topK {
			list = list[:topK]
		}
		for _, doc := range list {
			if _, ok := seen[doc.ID]; ok {
				continue
			}
			seen[doc.ID] = struct{}{}
			merged = append(merged, doc)
		}
	}
	return merged
}
