package services

import (
	"fmt"
	"strings"
)

// RefusalMessage is the fixed answer returned when the knowledge base
// holds nothing relevant. It is also embedded in the prompt so the model
// refuses with the exact same wording.
const RefusalMessage = "I couldn't find an answer to that in the knowledge base. Please contact Parcelly support for further help."

// BuildPrompt assembles the grounded question prompt. The instructions
// confine the model to the retrieved context: it must cite nothing
// beyond it and must fall back to the refusal sentence instead of
// guessing.
func BuildPrompt(question, context string) string {
	var b strings.Builder
	b.WriteString("You are a customer support assistant for the Parcelly help center.\n")
	b.WriteString("Answer the question using ONLY the context below. Do not use any other knowledge.\n")
	fmt.Fprintf(&b, "If the context does not contain the answer, reply with exactly this sentence: %q\n", RefusalMessage)
	b.WriteString("Keep the answer concise and factual. Quote steps and numbers exactly as they appear in the context.\n")
	b.WriteString("\nCONTEXT:\n")
	b.WriteString(context)
	b.WriteString("\n\nQUESTION:\n")
	b.WriteString(question)
	b.WriteString("\n\nANSWER:")
	return b.String()
}
