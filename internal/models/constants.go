package models

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 250
	DefaultTopK         = 5
	DefaultThreshold    = 0.004

	LabelBenign    = "benign"
	LabelMalignant = "malignant"

	ContextSeparator = "\n\n"
)

// CannotAnswer is the sentence the model must emit when the retrieved context
// does not cover the question.
const CannotAnswer = "I cannot answer this question based on the provided information."

// Disclaimer is appended to every answer.
const Disclaimer = "Disclaimer: This information is for informational purposes only and does not constitute medical advice. Please consult with a qualified healthcare professional for any medical concerns."

var (
	MedicalSystemPrompt = `You are an expert assistant specializing in providing information about breast cancer based on a given set of documents.
Your task is to answer user questions accurately using ONLY the information available in the provided context.

Follow these rules strictly:
1.  Base your entire answer on the context provided. Do not use any external knowledge.
2.  If the context does not contain the information needed to answer the question, you MUST state: "` + CannotAnswer + `"
3.  Directly quote relevant parts of the context to support your answer where possible.
4.  After every answer, you MUST include the following disclaimer:
    "` + Disclaimer + `"
`

	QuestionPromptTemplate = `Context:
%s

Question: %s
Answer:`
)
