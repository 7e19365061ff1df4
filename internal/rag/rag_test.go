package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mammo-rag/internal/chromemdb"
	"mammo-rag/internal/config"
	"mammo-rag/internal/models"
)

// hashEmbedder maps each word to one of 32 buckets.
type hashEmbedder struct {
	calls int
	err   error
}

func (h *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, 32)
	v[31] = 0.01
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!:;")
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		v[f.Sum32()%31]++
	}
	return v
}

func (h *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	return h.vector(text), nil
}

// groundedGenerator answers with the sentinel unless every question word
// longer than three letters appears in the context.
type groundedGenerator struct {
	system string
	human  string
	reply  string
	err    error
}

func (g *groundedGenerator) Generate(_ context.Context, system, human string) (string, error) {
	g.system, g.human = system, human
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	ctxPart, question, _ := strings.Cut(human, "\n\nQuestion: ")
	question = strings.TrimSuffix(question, "\nAnswer:")
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.Trim(w, ".,?!")
		if len(w) > 3 && !strings.Contains(strings.ToLower(ctxPart), w) {
			return models.CannotAnswer, nil
		}
	}
	return "According to the context, screening matters.\n\n" + models.Disclaimer, nil
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"screening.txt": "Mammography screening is recommended every two years for women aged 50 to 74.",
		"risk.txt":      "Family history and inherited BRCA mutations increase breast cancer risk.",
		"notes.xyz":     "ignored format",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.txt"), []byte{0xff, 0xfe, 0xfd}, 0o644))
	return dir
}

func newTestRAG(t *testing.T, embedder *hashEmbedder, llm Generator) (*RAG, *chromemdb.VectorDBManager, string) {
	t.Helper()
	indexDir := filepath.Join(t.TempDir(), "vectorstore")
	index, err := chromemdb.NewVectorDBManager(chromemdb.Options{Path: indexDir, Collection: "breast_cancer"})
	require.NoError(t, err)
	cfg := &config.RAGConfig{ChunkSize: 1200, ChunkOverlap: 250, TopK: 2, SortPaths: true}
	return NewRAG(embedder, index, llm, cfg), index, indexDir
}

func TestIndexCorpus(t *testing.T) {
	t.Run("Indexes supported files and reports skipped ones", func(t *testing.T) {
		r, index, indexDir := newTestRAG(t, &hashEmbedder{}, nil)

		report, err := r.IndexCorpus(context.Background(), writeCorpus(t))

		require.NoError(t, err)
		assert.Equal(t, 2, report.Documents)
		assert.Equal(t, 2, report.Chunks)
		assert.Equal(t, 2, index.Count())
		require.Len(t, report.Skipped(), 1)
		assert.Equal(t, "broken.txt", filepath.Base(report.Skipped()[0].Path))
		assert.FileExists(t, filepath.Join(indexDir, "breast_cancer.gob"))
	})

	t.Run("Saved index answers like the built one", func(t *testing.T) {
		embedder := &hashEmbedder{}
		r, index, indexDir := newTestRAG(t, embedder, nil)
		_, err := r.IndexCorpus(context.Background(), writeCorpus(t))
		require.NoError(t, err)

		loaded, err := chromemdb.Load(chromemdb.Options{Path: indexDir, Collection: "breast_cancer"})
		require.NoError(t, err)

		q := embedder.vector("is mammography screening recommended")
		want, err := index.Search(context.Background(), q, 2)
		require.NoError(t, err)
		got, err := loaded.Search(context.Background(), q, 2)
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].Chunk.ID, got[i].Chunk.ID)
			assert.InDelta(t, want[i].Similarity, got[i].Similarity, 1e-6)
		}
	})

	t.Run("Missing folder is not found", func(t *testing.T) {
		r, _, _ := newTestRAG(t, &hashEmbedder{}, nil)

		_, err := r.IndexCorpus(context.Background(), filepath.Join(t.TempDir(), "missing"))

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})

	t.Run("Folder without usable documents is a validation error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("png"), 0o644))
		embedder := &hashEmbedder{}
		r, _, indexDir := newTestRAG(t, embedder, nil)

		_, err := r.IndexCorpus(context.Background(), dir)

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrValidation))
		assert.Zero(t, embedder.calls)
		assert.NoDirExists(t, indexDir)
	})

	t.Run("Embedding failure aborts the build", func(t *testing.T) {
		r, index, _ := newTestRAG(t, &hashEmbedder{err: models.Errorf(models.ErrService, "quota exceeded")}, nil)

		_, err := r.IndexCorpus(context.Background(), writeCorpus(t))

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrService))
		assert.Zero(t, index.Count())
	})
}

func TestAsk(t *testing.T) {
	setup := func(t *testing.T, llm Generator) *RAG {
		t.Helper()
		r, _, _ := newTestRAG(t, &hashEmbedder{}, llm)
		_, err := r.IndexCorpus(context.Background(), writeCorpus(t))
		require.NoError(t, err)
		return r
	}

	t.Run("Grounded question", func(t *testing.T) {
		gen := &groundedGenerator{}
		r := setup(t, gen)

		answer, err := r.Ask(context.Background(), "  is mammography screening recommended?  ")

		require.NoError(t, err)
		assert.Equal(t, "is mammography screening recommended?", answer.Question)
		assert.Contains(t, answer.Content, models.Disclaimer)
		assert.NotContains(t, answer.Content, models.CannotAnswer)
		require.Len(t, answer.Sources, 2)
		assert.Contains(t, answer.Sources[0].Chunk.Content, "Mammography screening")
		assert.Equal(t, models.MedicalSystemPrompt, gen.system)
		assert.True(t, strings.HasPrefix(gen.human, "Context:\n"))
		assert.True(t, strings.HasSuffix(gen.human, "\n\nQuestion: is mammography screening recommended?\nAnswer:"))
		assert.Contains(t, gen.human, answer.Sources[0].Chunk.Content+models.ContextSeparator+answer.Sources[1].Chunk.Content)
	})

	t.Run("Unrelated question yields sentinel and disclaimer", func(t *testing.T) {
		r := setup(t, &groundedGenerator{})

		answer, err := r.Ask(context.Background(), "What is the capital of France?")

		require.NoError(t, err)
		assert.Contains(t, answer.Content, models.CannotAnswer)
		assert.True(t, strings.HasSuffix(answer.Content, models.Disclaimer))
	})

	t.Run("Disclaimer is not duplicated", func(t *testing.T) {
		r := setup(t, &groundedGenerator{reply: "Answer.\n\n" + models.Disclaimer})

		answer, err := r.Ask(context.Background(), "screening")

		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(answer.Content, models.Disclaimer))
	})

	t.Run("Blank question is a validation error", func(t *testing.T) {
		r := setup(t, &groundedGenerator{})

		_, err := r.Ask(context.Background(), " \n\t")

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrValidation))
	})

	t.Run("Generation failure surfaces as service error", func(t *testing.T) {
		r := setup(t, &groundedGenerator{err: models.Errorf(models.ErrService, "rate limited")})

		_, err := r.Ask(context.Background(), "screening")

		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrService))
	})
}

func TestBuildPrompt(t *testing.T) {
	results := []models.SearchResult{
		{Chunk: models.Chunk{Content: "first"}},
		{Chunk: models.Chunk{Content: "second"}},
	}

	assert.Equal(t, "Context:\nfirst\n\nsecond\n\nQuestion: why?\nAnswer:", BuildPrompt("why?", results))
	assert.Equal(t, "Context:\n\n\nQuestion: why?\nAnswer:", BuildPrompt("why?", nil))
}

func TestEnsureDisclaimer(t *testing.T) {
	out, appended := ensureDisclaimer("Some answer.\n")
	assert.True(t, appended)
	assert.Equal(t, "Some answer.\n\n"+models.Disclaimer, out)

	out, appended = ensureDisclaimer("x " + models.Disclaimer)
	assert.False(t, appended)
	assert.Equal(t, "x "+models.Disclaimer, out)

	out, _ = ensureDisclaimer("")
	assert.Equal(t, models.Disclaimer, out)
}
