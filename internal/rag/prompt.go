package rag

import (
	"strings"

	"github.com/ziadkadry99/docqa/internal/vectordb"
)

const promptTemplate = `If the user input is a greeting (e.g. "Hi", "Hello", "How are you?", "What's up?", "Bawo ni?"), take it as a direct greeting and respond with a natural and friendly greeting. Otherwise, answer the question based only on the following context:
{context}

Question: {question}

Answer in clear, concise English. If you don't know the answer, say 'I don't know'.

Given the context information above, think step by step to answer the query in a crisp manner. In case you don't know the answer, say 'I don't know!'
`

// FormatPrompt fills the answering prompt with the retrieved passages,
// separated by blank lines, and the question.
func FormatPrompt(question string, results []vectordb.SearchResult) string {
	passages := make([]string, len(results))
	for i, r := range results {
		passages[i] = r.Chunk.Text
	}
	return strings.NewReplacer(
		"{context}", strings.Join(passages, "\n\n"),
		"{question}", question,
	).Replace(promptTemplate)
}
