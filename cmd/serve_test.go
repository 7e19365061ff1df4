package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mammo-rag/internal/config"
	"mammo-rag/internal/models"
)

func serveConfig(t *testing.T) *config.Config {
	t.Helper()
	llm := config.LLMConfig{BaseURL: "http://localhost:1/v1", Key: "sk-test", Model: "test-model"}
	return &config.Config{
		EmbedLLM: llm,
		ChatLLM:  llm,
		RAG: config.RAGConfig{
			Backend:    config.BackendChromem,
			IndexDir:   filepath.Join(t.TempDir(), "vectorstore"),
			Collection: "breast_cancer",
		},
	}
}

func TestBuildAsker(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing embedding credential fails startup", func(t *testing.T) {
		cfg := serveConfig(t)
		cfg.EmbedLLM.Key = ""
		cfg.EmbedLLM.KeyEnv = "MAMMO_TEST_UNSET_KEY"
		t.Setenv("MAMMO_TEST_UNSET_KEY", "")

		asker, _, err := buildAsker(ctx, cfg)

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrConfig))
		assert.Nil(t, asker)
	})

	t.Run("Missing chat credential fails startup", func(t *testing.T) {
		cfg := serveConfig(t)
		cfg.ChatLLM.Key = ""

		_, _, err := buildAsker(ctx, cfg)

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrConfig))
	})

	t.Run("Missing index starts without an asker", func(t *testing.T) {
		asker, closeIndex, err := buildAsker(ctx, serveConfig(t))

		require.NoError(t, err)
		assert.Nil(t, asker)
		require.NotNil(t, closeIndex)
		closeIndex()
	})
}
