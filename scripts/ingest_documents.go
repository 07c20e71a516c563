package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/cv-evaluation-pipeline/internal/config"
	"alfredoptarigan/cv-evaluation-pipeline/internal/logger"
	"alfredoptarigan/cv-evaluation-pipeline/internal/services"
)

var rootCmd = &cobra.Command{
	Use:   "ingest_documents",
	Short: "Seed the reference collection with the case study, job description and scoring rubric",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return ingest(cmd)
	},
}

func init() {
	rootCmd.Flags().StringP("docs-path", "d", "", "directory holding the reference PDFs (default REFERENCE_DOCS_PATH)")
	rootCmd.Flags().StringP("collection", "c", "", "target collection (default QDRANT_COLLECTION)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ingest seeds the collection with the three reference documents the worker
// retrieves from. Re-running overwrites the same points.
func ingest(cmd *cobra.Command) error {
	cfg := config.Load()
	if path, _ := cmd.Flags().GetString("docs-path"); path != "" {
		cfg.Seed.ReferenceDocsPath = path
	}
	if collection, _ := cmd.Flags().GetString("collection"); collection != "" {
		cfg.Qdrant.Collection = collection
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	gemini, err := services.NewGeminiService(ctx, services.GeminiOptions{
		APIKey:     cfg.Gemini.APIKey,
		Model:      cfg.Gemini.Model,
		EmbedModel: cfg.Gemini.EmbedModel,
	}, zlog)
	if err != nil {
		return fmt.Errorf("failed to initialize gemini: %w", err)
	}

	qdrant, err := services.NewQdrantService(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, cfg.Qdrant.VectorSize, zlog)
	if err != nil {
		return fmt.Errorf("failed to initialize qdrant: %w", err)
	}

	if err := qdrant.InitCollection(ctx); err != nil {
		return fmt.Errorf("failed to initialize collection: %w", err)
	}

	pdfParser := services.NewPDFParserService()

	documents := []struct {
		File string
		Doc  services.ReferenceDocument
	}{
		{
			File: "case-study-brief.pdf",
			Doc:  services.ReferenceDocument{ID: "cs-1", DocType: "case_study", Title: "Case Study Brief"},
		},
		{
			File: "job-desc.pdf",
			Doc:  services.ReferenceDocument{ID: "jd-2", DocType: "job_description", Title: "Job Description"},
		},
		{
			File: "scoring-rubric.pdf",
			Doc:  services.ReferenceDocument{ID: "sr-3", DocType: "scoring_rubric", Title: "Scoring Rubric"},
		},
	}

	failCount := 0

	for _, d := range documents {
		path := filepath.Join(cfg.Seed.ReferenceDocsPath, d.File)
		dlog := zlog.With(zap.String("doc_id", d.Doc.ID), zap.String("path", path))

		content, err := pdfParser.ExtractTextWithMetaData(path)
		if err != nil {
			dlog.Error("failed to extract text", zap.Error(err))
			failCount++
			continue
		}

		doc := d.Doc
		doc.Text = services.CleanText(content.Text)
		doc.EmbeddingModel = cfg.Gemini.EmbedModel

		vectors, err := gemini.GenerateEmbeddings(ctx, []string{doc.Text})
		if err != nil {
			dlog.Error("failed to generate embedding", zap.Error(err))
			failCount++
			continue
		}

		if err := qdrant.UpsertDocument(ctx, doc, vectors[0]); err != nil {
			dlog.Error("failed to store document", zap.Error(err))
			failCount++
			continue
		}

		dlog.Info("reference document stored",
			zap.Int("pages", content.PageCount),
			zap.Int("chars", len(doc.Text)))
	}

	if failCount > 0 {
		return fmt.Errorf("%d of %d documents failed to ingest", failCount, len(documents))
	}

	zlog.Info("round thruth stored successfully",
		zap.String("collection", cfg.Qdrant.Collection),
		zap.String("embedding_model", cfg.Gemini.EmbedModel))
	return nil
}
