package openai

import (
	"fmt"
	"strings"
)

const answerPromptTemplate = `You are a helpful research assistant. Use the following context from a document collection to answer the question. If the answer is in the context, provide a detailed response. If not explicitly stated but related information exists, provide what you can infer from the context. If the context contains nothing relevant, say so.

Context:
%s`

// buildSystemPrompt creates the system prompt with the retrieved passages embedded.
// Passages are joined most relevant first.
func buildSystemPrompt(passages []string) string {
	return fmt.Sprintf(answerPromptTemplate, strings.Join(passages, "\n\n"))
}
