package llmservice

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"mammo-rag/internal/config"
	"mammo-rag/internal/models"
)

// Client sends single-turn chat requests to an OpenAI-compatible endpoint.
type Client struct {
	llm         llms.Model
	model       string
	temperature float64
}

// NewClient builds a chat client from llmConfig.
func NewClient(llmConfig *config.LLMConfig) (*Client, error) {
	key := strings.TrimPrefix(llmConfig.APIKey(), "Bearer ")
	if key == "" {
		return nil, models.Errorf(models.ErrConfig, "chat credential not set (key or %s)", llmConfig.KeyEnv)
	}

	log.Debug().Interface("config", map[string]any{
		"base_url":    llmConfig.BaseURL,
		"model":       llmConfig.Model,
		"temperature": llmConfig.Temperature,
	}).Msg("Creating chat client")

	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(key),
		openai.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, models.Wrap(models.ErrConfig, "init chat client", err)
	}
	return NewWithModel(llm, llmConfig.Model, llmConfig.Temperature), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(llm llms.Model, model string, temperature float64) *Client {
	return &Client{llm: llm, model: model, temperature: temperature}
}

// Generate issues one non-streaming completion with a system and a human
// message and returns the first choice.
func (c *Client) Generate(ctx context.Context, system, human string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, human),
	}
	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithModel(c.model),
		llms.WithTemperature(c.temperature),
	)
	if err != nil {
		return "", models.Wrap(models.ErrService, "generate answer", err)
	}
	if len(resp.Choices) == 0 {
		return "", models.Errorf(models.ErrService, "chat model returned no choices")
	}
	return resp.Choices[0].Content, nil
}
