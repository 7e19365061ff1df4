package main

import (
	"time"

	"github.com/spf13/cobra"

	"mammo-rag/internal/embedding"
	"mammo-rag/internal/helper"
	"mammo-rag/internal/rag"
)

func indexCMD(load configLoader) *cobra.Command {
	var (
		corpus string
		asJSON bool
	)
	index := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index from the document corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if corpus != "" {
				cfg.RAG.CorpusDir = corpus
			}

			embedder, err := embedding.NewOpenAIEmbedder(&cfg.EmbedLLM)
			if err != nil {
				return err
			}
			vectorIndex, closeIndex, err := newIndex(cfg)
			if err != nil {
				return err
			}
			defer closeIndex()

			report, err := rag.NewRAG(embedder, vectorIndex, nil, &cfg.RAG).IndexCorpus(cmd.Context(), cfg.RAG.CorpusDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				helper.PrettyPrint(out, report)
				return nil
			}
			helper.Heading(out, "Indexed %s", cfg.RAG.CorpusDir)
			helper.Field(out, "documents", report.Documents)
			helper.Field(out, "chunks", report.Chunks)
			helper.Field(out, "backend", cfg.RAG.Backend)
			helper.Field(out, "elapsed", report.Elapsed.Round(time.Millisecond))
			for _, f := range report.Skipped() {
				helper.Warn(out, "skipped %s: %s", f.Path, f.Reason)
			}
			return nil
		},
	}
	index.Flags().StringVar(&corpus, "corpus", "", "corpus folder (overrides rag.corpus_dir)")
	index.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return index
}
