package rag

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mammo-rag/internal/config"
	"mammo-rag/internal/embedding"
	"mammo-rag/internal/models"
	"mammo-rag/internal/parser"
)

// VectorIndex stores chunk embeddings and answers nearest-neighbour queries.
type VectorIndex interface {
	Build(ctx context.Context, entries []models.IndexEntry) error
	Persist(ctx context.Context) error
	Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error)
	Count() int
}

// Generator produces a completion for a system and a human message.
type Generator interface {
	Generate(ctx context.Context, system, human string) (string, error)
}

type RAG struct {
	embedder embedding.Embedder
	index    VectorIndex
	llm      Generator
	cfg      *config.RAGConfig
}

// IndexReport summarises one ingestion run.
type IndexReport struct {
	Documents int                 `json:"documents"`
	Chunks    int                 `json:"chunks"`
	Files     []models.LoadResult `json:"files"`
	Elapsed   time.Duration       `json:"elapsed"`
}

// Skipped returns the files that could not be ingested.
func (r *IndexReport) Skipped() []models.LoadResult {
	var out []models.LoadResult
	for _, f := range r.Files {
		if f.Skipped {
			out = append(out, f)
		}
	}
	return out
}

// NewRAG wires the pipeline. llm may be nil when only indexing.
func NewRAG(embedder embedding.Embedder, index VectorIndex, llm Generator, cfg *config.RAGConfig) *RAG {
	return &RAG{embedder: embedder, index: index, llm: llm, cfg: cfg}
}

// IndexCorpus loads, chunks and embeds every supported file under folder and
// stores the result in the index.
func (r *RAG) IndexCorpus(ctx context.Context, folder string) (*IndexReport, error) {
	started := time.Now()

	docs, files, err := parser.LoadDirectory(ctx, folder, parser.LoadOptions{SortPaths: r.cfg.SortPaths})
	if err != nil {
		return nil, err
	}
	chunks, err := parser.SplitDocuments(docs, r.cfg.ChunkSize, r.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, models.Errorf(models.ErrValidation, "no documents provided to build the vector index from %s", folder)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, models.Errorf(models.ErrService, "got %d embeddings for %d chunks", len(vectors), len(chunks))
	}

	entries := make([]models.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = models.IndexEntry{Chunk: c, Embedding: vectors[i]}
	}
	if err := r.index.Build(ctx, entries); err != nil {
		return nil, err
	}
	if err := r.index.Persist(ctx); err != nil {
		return nil, err
	}

	report := &IndexReport{
		Documents: len(docs),
		Chunks:    len(chunks),
		Files:     files,
		Elapsed:   time.Since(started),
	}
	log.Info().
		Int("documents", report.Documents).
		Int("chunks", report.Chunks).
		Int("skipped", len(report.Skipped())).
		Dur("elapsed", report.Elapsed).
		Msg("Corpus indexed")
	return report, nil
}

// Ask answers question from the top-k retrieved chunks. The returned content
// always carries the disclaimer.
func (r *RAG) Ask(ctx context.Context, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, models.Errorf(models.ErrValidation, "question is empty")
	}
	if r.llm == nil {
		return nil, models.Errorf(models.ErrConfig, "no chat model configured")
	}

	queryEmbedding, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	results, err := r.index.Search(ctx, queryEmbedding, r.topK())
	if err != nil {
		return nil, err
	}
	log.Debug().Int("results", len(results)).Str("question", question).Msg("Retrieved context")

	content, err := r.llm.Generate(ctx, models.MedicalSystemPrompt, BuildPrompt(question, results))
	if err != nil {
		return nil, err
	}
	content, appended := ensureDisclaimer(content)
	if appended {
		log.Warn().Msg("Model omitted the disclaimer, appended it")
	}

	return &models.Answer{Question: question, Content: content, Sources: results}, nil
}

func (r *RAG) topK() int {
	if r.cfg.TopK > 0 {
		return r.cfg.TopK
	}
	return models.DefaultTopK
}
