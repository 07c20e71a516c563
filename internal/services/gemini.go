package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("language model returned an empty completion")

const maxEmbedInputChars = 40000

// LanguageModel runs one non-streaming completion with a system instruction.
type LanguageModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	EmbedModel() string
}

type GeminiService interface {
	LanguageModel
	Embedder
}

type GeminiOptions struct {
	APIKey      string
	Model       string
	EmbedModel  string
	Temperature float32
	// BaseURL overrides the API endpoint. Empty uses the public Gemini API.
	BaseURL string
}

type geminiService struct {
	client      *genai.Client
	modelName   string
	embedModel  string
	temperature float32
	log         *zap.Logger
}

func NewGeminiService(ctx context.Context, opts GeminiOptions, log *zap.Logger) (GeminiService, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &geminiService{
		client:      client,
		modelName:   opts.Model,
		embedModel:  opts.EmbedModel,
		temperature: opts.Temperature,
		log:         log,
	}, nil
}

func (g *geminiService) EmbedModel() string {
	return g.embedModel
}

// GenerateEmbeddings implements Embedder.
func (g *geminiService) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		// Truncate text if too long (max ~10000 tokens for embedding)
		contents = append(contents, genai.NewContentFromText(truncateRunes(text, maxEmbedInputChars), genai.RoleUser))
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), got)
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = emb.Values
	}

	return vectors, nil
}

// Complete implements LanguageModel. The text is returned exactly as the model
// produced it.
func (g *geminiService) Complete(ctx context.Context, system, user string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		ResponseMIMEType:  "application/json",
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(user), config)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if resp == nil {
		return "", ErrEmptyCompletion
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			builder.WriteString(part.Text)
		}
		// Only the first candidate is the answer.
		break
	}

	output := builder.String()
	if strings.TrimSpace(output) == "" {
		if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
			g.log.Warn("gemini returned no text",
				zap.String("finish_reason", string(resp.Candidates[0].FinishReason)))
		}
		return "", ErrEmptyCompletion
	}

	g.log.Debug("gemini response received",
		zap.String("model", g.modelName),
		zap.Int("chars", len(output)))

	return output, nil
}

// truncateRunes keeps at most limit characters of s without splitting a rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
