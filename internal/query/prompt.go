package query

import (
	"fmt"
	"strings"
)

// composeSystemPrompt binds the assistant persona to one tenant. The rules
// are fixed; only the tenant name and fallback phrasing are substituted.
func composeSystemPrompt(tenantName, fallbackMessage string) string {
	return fmt.Sprintf(`You are the website assistant for %s.

Rules:
1. Answer using ONLY the knowledge provided in the user message.
2. Be concise. Two or three sentences at most.
3. Never invent facts, prices, hours, or contact details.
4. If the knowledge does not cover the question, reply exactly with: %q
5. Do not greet the user or introduce yourself. Answer directly.`, tenantName, fallbackMessage)
}

// composeUserPrompt carries the literal question plus the selected knowledge
// chunks as a bulleted list.
func composeUserPrompt(question string, chunks []string) string {
	var b strings.Builder

	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nKnowledge:\n")

	for _, chunk := range chunks {
		b.WriteString("- ")
		b.WriteString(chunk)
		b.WriteString("\n")
	}

	return b.String()
}
