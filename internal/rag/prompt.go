package rag

import (
	"fmt"
	"strings"

	"mammo-rag/internal/models"
)

// BuildPrompt renders the human message for question over the retrieved
// chunks, most similar first.
func BuildPrompt(question string, results []models.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Chunk.Content
	}
	return fmt.Sprintf(models.QuestionPromptTemplate, strings.Join(parts, models.ContextSeparator), question)
}

// ensureDisclaimer appends the disclaimer when the model left it out.
func ensureDisclaimer(answer string) (string, bool) {
	if strings.Contains(answer, models.Disclaimer) {
		return answer, false
	}
	answer = strings.TrimRight(answer, " \n")
	if answer == "" {
		return models.Disclaimer, true
	}
	return answer + "\n\n" + models.Disclaimer, true
}
