package main

import (
	"strings"

	"github.com/spf13/cobra"

	"mammo-rag/internal/apiclient"
	"mammo-rag/internal/embedding"
	"mammo-rag/internal/helper"
	"mammo-rag/internal/llmservice"
	"mammo-rag/internal/rag"
)

func askCMD(load configLoader) *cobra.Command {
	var (
		remote      bool
		showSources bool
	)
	ask := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if remote {
				answer, err := apiclient.New(&cfg.Client).Ask(cmd.Context(), question)
				if err != nil {
					return err
				}
				helper.Heading(out, "Answer")
				_, err = out.Write([]byte(answer + "\n"))
				return err
			}

			embedder, err := embedding.NewOpenAIEmbedder(&cfg.EmbedLLM)
			if err != nil {
				return err
			}
			chat, err := llmservice.NewClient(&cfg.ChatLLM)
			if err != nil {
				return err
			}
			index, closeIndex, err := openIndex(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeIndex()

			answer, err := rag.NewRAG(embedder, index, chat, &cfg.RAG).Ask(cmd.Context(), question)
			if err != nil {
				return err
			}

			helper.Heading(out, "Answer")
			if _, err := out.Write([]byte(answer.Content + "\n")); err != nil {
				return err
			}
			if showSources {
				helper.Heading(out, "\nSources")
				for _, s := range answer.Sources {
					helper.Field(out, "source", s.Chunk.Source)
					helper.Muted(out, "  %.3f  %s", s.Similarity, helper.Snippet(s.Chunk.Content, 120))
				}
			}
			return nil
		},
	}
	ask.Flags().BoolVar(&remote, "remote", false, "ask the running API instead of loading the index locally")
	ask.Flags().BoolVar(&showSources, "sources", true, "print the retrieved chunks")
	return ask
}
