package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"mammo-rag/internal/models"
)

// Span is a half-open rune range [Start, End) of a text.
type Span struct {
	Start int
	End   int
}

// separators are tried in order when looking for a chunk boundary. The cut
// falls right after the separator.
var separators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

// SplitDocuments chunks every document and numbers the chunks globally in
// document order.
func SplitDocuments(docs []models.Document, chunkSize, chunkOverlap int) ([]models.Chunk, error) {
	if err := validateChunking(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for _, doc := range docs {
		runes := []rune(doc.Content)
		for i, span := range splitRunes(runes, chunkSize, chunkOverlap) {
			meta := make(map[string]string, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["source"] = doc.Source
			meta["chunk_index"] = strconv.Itoa(i)
			chunks = append(chunks, models.Chunk{
				ID:       fmt.Sprintf("%06d", len(chunks)),
				Source:   doc.Source,
				Content:  string(runes[span.Start:span.End]),
				Index:    i,
				Start:    span.Start,
				Metadata: meta,
			})
		}
	}

	log.Info().Int("documents", len(docs)).Int("chunks", len(chunks)).Msg("Total document chunks created")
	return chunks, nil
}

// SplitText returns the chunk spans of text, measured in runes.
func SplitText(text string, chunkSize, chunkOverlap int) ([]Span, error) {
	if err := validateChunking(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	return splitRunes([]rune(text), chunkSize, chunkOverlap), nil
}

func validateChunking(chunkSize, chunkOverlap int) error {
	if chunkSize <= 0 {
		return models.Errorf(models.ErrValidation, "chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return models.Errorf(models.ErrValidation, "chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return nil
}

// splitRunes slides a window of at most size runes over text. Each window ends
// on the coarsest separator available past the overlap region, and the next
// window starts overlap runes before that end, so neighbours share exactly
// overlap runes.
func splitRunes(text []rune, size, overlap int) []Span {
	if strings.TrimSpace(string(text)) == "" {
		return nil
	}

	var spans []Span
	start := 0
	for {
		if len(text)-start <= size {
			spans = append(spans, Span{Start: start, End: len(text)})
			return spans
		}
		end := boundary(text, start+overlap+1, start+size)
		spans = append(spans, Span{Start: start, End: end})
		start = end - overlap
	}
}

// boundary returns the largest cut position in [lo, hi] that directly follows
// a separator, preferring earlier entries of separators. Without a match the
// window is cut hard at hi.
func boundary(text []rune, lo, hi int) int {
	for _, sep := range separators {
		sr := []rune(sep)
		for cut := hi; cut >= lo; cut-- {
			if cut < len(sr) {
				break
			}
			if hasSuffixAt(text, cut, sr) {
				return cut
			}
		}
	}
	return hi
}

func hasSuffixAt(text []rune, cut int, sep []rune) bool {
	for i := range sep {
		if text[cut-len(sep)+i] != sep[i] {
			return false
		}
	}
	return true
}
