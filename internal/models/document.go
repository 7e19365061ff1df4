package models

import "math"

// Document is the text extracted from one source file, or one page/row/sheet
// of it.
type Document struct {
	Source   string            `json:"source"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a bounded segment of a Document. Start is a rune offset into the
// document content.
type Chunk struct {
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Content  string            `json:"content"`
	Index    int               `json:"index"`
	Start    int               `json:"start"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IndexEntry pairs a chunk with its embedding.
type IndexEntry struct {
	Chunk     Chunk
	Embedding []float32
}

// CheckQuery rejects query embeddings that cannot be ranked by cosine
// similarity: empty, non-finite or all-zero vectors.
func CheckQuery(query []float32) error {
	if len(query) == 0 {
		return Errorf(ErrValidation, "query embedding is empty")
	}
	var norm float64
	for _, v := range query {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Errorf(ErrValidation, "query embedding has a non-finite component")
		}
		norm += f * f
	}
	if norm == 0 {
		return Errorf(ErrValidation, "query embedding has zero norm")
	}
	return nil
}

type SearchResult struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float32 `json:"similarity"`
}

// LoadResult records what happened to a single file during ingestion.
type LoadResult struct {
	Path      string `json:"path"`
	Documents int    `json:"documents"`
	Skipped   bool   `json:"skipped"`
	Reason    string `json:"reason,omitempty"`
}

type Answer struct {
	Question string         `json:"question"`
	Content  string         `json:"content"`
	Sources  []SearchResult `json:"sources,omitempty"`
}

// Prediction is the classifier outcome. Confidence is a percentage in [0,100].
type Prediction struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	Probability float64 `json:"probability"`
}
