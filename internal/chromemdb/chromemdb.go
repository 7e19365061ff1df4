package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"mammo-rag/internal/models"
)

const (
	metaSeq     = "seq"
	metaSource  = "source"
	metaIndex   = "chunk_index"
	metaStart   = "chunk_start"
	fileExt     = ".gob"
	compressExt = ".gz"
)

// Options configure where and how the collection is persisted.
type Options struct {
	Path          string
	Collection    string
	Compress      bool
	EncryptionKey string
}

// VectorDBManager keeps one chromem collection in memory and persists it as a
// single export file inside Options.Path.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
	opts       Options
}

// NewVectorDBManager initializes an empty in-memory index.
func NewVectorDBManager(opts Options) (*VectorDBManager, error) {
	if opts.Collection == "" {
		return nil, models.Errorf(models.ErrConfig, "collection name is required")
	}
	db := chromem.NewDB()
	c, err := db.GetOrCreateCollection(opts.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return &VectorDBManager{db: db, collection: c, opts: opts}, nil
}

// Load imports a previously saved collection from path.
func Load(opts Options) (*VectorDBManager, error) {
	entries, err := os.ReadDir(opts.Path)
	if err != nil {
		return nil, models.Wrap(models.ErrNotFound, "vector index folder "+opts.Path, err)
	}
	if len(entries) == 0 {
		return nil, models.Errorf(models.ErrNotFound, "vector index folder %s is empty", opts.Path)
	}

	file, err := exportFile(opts)
	if err != nil {
		return nil, err
	}
	m, err := NewVectorDBManager(opts)
	if err != nil {
		return nil, err
	}
	if err := m.db.ImportFromFile(file, opts.EncryptionKey, opts.Collection); err != nil {
		return nil, models.Wrap(models.ErrIO, "import vector index "+file, err)
	}
	m.collection = m.db.GetCollection(opts.Collection, noEmbedding)
	if m.collection == nil {
		return nil, models.Errorf(models.ErrNotFound, "collection %s not present in %s", opts.Collection, file)
	}

	log.Info().Str("path", file).Int("entries", m.collection.Count()).Msg("Vector index loaded")
	return m, nil
}

// Build adds entries in order. The position of an entry is kept as its
// insertion sequence and breaks similarity ties in Search.
func (m *VectorDBManager) Build(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return models.Errorf(models.ErrValidation, "no documents provided to build the vector index")
	}

	offset := m.collection.Count()
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			return models.Errorf(models.ErrValidation, "entry %d has no embedding", i)
		}
		seq := offset + i
		meta := make(map[string]string, len(e.Chunk.Metadata)+4)
		for k, v := range e.Chunk.Metadata {
			meta[k] = v
		}
		meta[metaSeq] = strconv.Itoa(seq)
		meta[metaSource] = e.Chunk.Source
		meta[metaIndex] = strconv.Itoa(e.Chunk.Index)
		meta[metaStart] = strconv.Itoa(e.Chunk.Start)

		id := e.Chunk.ID
		if id == "" {
			id = fmt.Sprintf("%06d", seq)
		}
		docs[i] = chromem.Document{
			ID:        id,
			Content:   e.Chunk.Content,
			Metadata:  meta,
			Embedding: e.Embedding,
		}
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return models.Wrap(models.ErrValidation, "add documents", err)
	}
	log.Info().Int("entries", len(docs)).Str("collection", m.opts.Collection).Msg("Vector index built")
	return nil
}

// Save writes the collection to path, creating the directory if needed.
func (m *VectorDBManager) Save(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return models.Wrap(models.ErrIO, "cannot create index folder "+path, err)
	}
	opts := m.opts
	opts.Path = path
	name := exportName(opts)
	file := filepath.Join(path, name)

	// write next to the target and rename so a crash never leaves a partial
	// index; the temp name keeps the suffix chromem inspects
	tmp := filepath.Join(path, ".tmp-"+name)
	if err := m.db.ExportToFile(tmp, opts.Compress, opts.EncryptionKey, opts.Collection); err != nil {
		_ = os.Remove(tmp)
		return models.Wrap(models.ErrIO, "export vector index", err)
	}
	if err := os.Rename(tmp, file); err != nil {
		return models.Wrap(models.ErrIO, "finalize vector index", err)
	}

	log.Info().Str("path", file).Int("entries", m.collection.Count()).Msg("Vector index saved")
	return nil
}

// Persist saves to the directory the manager was configured with.
func (m *VectorDBManager) Persist(_ context.Context) error {
	return m.Save(m.opts.Path)
}

// Search returns up to k entries ordered by descending cosine similarity,
// ties resolved by insertion order.
func (m *VectorDBManager) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if err := models.CheckQuery(query); err != nil {
		return nil, err
	}
	n := m.collection.Count()
	if k <= 0 || n == 0 {
		return []models.SearchResult{}, nil
	}

	// chromem's top-n selection is not stable for equal scores, so rank the
	// whole collection and cut afterwards
	found, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: query,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	results := make([]models.SearchResult, len(found))
	seqs := make([]int, len(found))
	for i, r := range found {
		results[i] = toSearchResult(r)
		seqs[i], _ = strconv.Atoi(r.Metadata[metaSeq])
	}
	idx := make([]int, len(results))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := results[idx[a]], results[idx[b]]
		if ra.Similarity != rb.Similarity {
			return ra.Similarity > rb.Similarity
		}
		return seqs[idx[a]] < seqs[idx[b]]
	})

	if k > len(idx) {
		k = len(idx)
	}
	out := make([]models.SearchResult, k)
	for i := 0; i < k; i++ {
		out[i] = results[idx[i]]
	}
	return out, nil
}

func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

func toSearchResult(r chromem.Result) models.SearchResult {
	meta := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		meta[k] = v
	}
	index, _ := strconv.Atoi(meta[metaIndex])
	start, _ := strconv.Atoi(meta[metaStart])
	return models.SearchResult{
		Chunk: models.Chunk{
			ID:       r.ID,
			Source:   meta[metaSource],
			Content:  r.Content,
			Index:    index,
			Start:    start,
			Metadata: meta,
		},
		Similarity: r.Similarity,
	}
}

func exportName(opts Options) string {
	name := opts.Collection + fileExt
	if opts.Compress {
		name += compressExt
	}
	return name
}

// exportFile finds the saved file for the collection, accepting either
// compression setting.
func exportFile(opts Options) (string, error) {
	for _, compress := range []bool{opts.Compress, !opts.Compress} {
		o := opts
		o.Compress = compress
		file := filepath.Join(opts.Path, exportName(o))
		if _, err := os.Stat(file); err == nil {
			return file, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", models.Wrap(models.ErrIO, "stat "+file, err)
		}
	}
	return "", models.Errorf(models.ErrNotFound, "no saved collection %s in %s", opts.Collection, opts.Path)
}

// noEmbedding guards against chromem embedding text on its own; every
// document and query arrives with a precomputed vector.
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("vector index expects precomputed embeddings")
}
