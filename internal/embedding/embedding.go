package embedding

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"mammo-rag/internal/config"
	"mammo-rag/internal/models"
)

// Embedder maps texts to fixed-dimension vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Client embeds text through an OpenAI-compatible embeddings endpoint. Calls
// are not retried.
type Client struct {
	embedder *embeddings.EmbedderImpl
	model    string
}

// NewOpenAIEmbedder creates a new embedder
func NewOpenAIEmbedder(llmConfig *config.LLMConfig) (*Client, error) {
	key := strings.TrimPrefix(llmConfig.APIKey(), "Bearer ")
	if key == "" {
		return nil, models.Errorf(models.ErrConfig, "embedding credential not set (key or %s)", llmConfig.KeyEnv)
	}

	log.Debug().Interface("config", map[string]string{
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(key),
		openai.WithEmbeddingModel(llmConfig.Model),
	)
	if err != nil {
		return nil, models.Wrap(models.ErrConfig, "init embedding client", err)
	}

	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if llmConfig.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(llmConfig.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(llm, opts...)
	if err != nil {
		return nil, models.Wrap(models.ErrConfig, "init embedder", err)
	}
	return &Client{embedder: embedder, model: llmConfig.Model}, nil
}

// EmbedDocuments returns one vector per text, in input order.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, models.Wrap(models.ErrService, "embed documents", err)
	}
	if len(vectors) != len(texts) {
		return nil, models.Errorf(models.ErrService, "embedding service returned %d vectors for %d texts", len(vectors), len(texts))
	}
	log.Debug().Int("texts", len(texts)).Str("model", c.model).Msg("Embedded documents")
	return vectors, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, models.Wrap(models.ErrService, "embed query", err)
	}
	if len(vector) == 0 {
		return nil, models.Errorf(models.ErrService, "embedding service returned an empty vector")
	}
	return vector, nil
}
