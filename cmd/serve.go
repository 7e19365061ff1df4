package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mammo-rag/internal/classifier"
	"mammo-rag/internal/config"
	"mammo-rag/internal/embedding"
	"mammo-rag/internal/llmservice"
	"mammo-rag/internal/models"
	"mammo-rag/internal/rag"
	"mammo-rag/internal/server"
)

func serveCMD(load configLoader) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			asker, closeIndex, err := buildAsker(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeIndex()

			var imageClassifier server.ImageClassifier
			cls, err := classifier.NewFromConfig(&cfg.Classifier)
			if err != nil {
				log.Warn().Err(err).Msg("Image classifier unavailable, /predict-image will answer 503")
			} else {
				defer cls.Close()
				imageClassifier = cls
			}

			return server.New(&cfg.Server, asker, imageClassifier).Run(ctx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return serve
}

// buildAsker loads the index once for the lifetime of the server. Missing
// credentials fail startup. A missing index does not: the server starts and
// questions answer 503 until the index is built.
func buildAsker(ctx context.Context, cfg *config.Config) (server.Asker, func(), error) {
	embedder, err := embedding.NewOpenAIEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, nil, err
	}
	chat, err := llmservice.NewClient(&cfg.ChatLLM)
	if err != nil {
		return nil, nil, err
	}
	index, closeIndex, err := openIndex(ctx, cfg)
	if errors.Is(err, models.ErrNotFound) {
		log.Warn().Err(err).Msg("Vector index not found, run the index command first")
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	log.Info().Int("entries", index.Count()).Str("backend", cfg.RAG.Backend).Msg("Vector index ready")

	return rag.NewRAG(embedder, index, chat, &cfg.RAG), func() {
		if err := closeIndex(); err != nil {
			log.Warn().Err(err).Msg("Failed to close vector index")
		}
	}, nil
}
