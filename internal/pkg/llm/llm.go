package llm

import (
	"context"
	"strings"
)

// Generator produces answers for chat questions. Implementations wrap an
// upstream text-generation API; callers treat it as opaque.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string, onDelta func(text string) error) error
}

// Turn is one prior exchange replayed by the client for context.
type Turn struct {
	Role string
	Text string
}

const promptPreamble = `You are VerseWise, a warm and knowledgeable scripture study companion.
Answer the question below with guidance rooted in scripture. Quote relevant
verses with book, chapter and verse, explain them in plain language, and keep
a gentle, encouraging tone. If the question is outside matters of faith and
scripture, say so kindly and steer back.`

// BuildPrompt frames a question, with optional prior turns, for the
// generator.
func BuildPrompt(question string, history []Turn) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\n")

	for _, turn := range history {
		switch turn.Role {
		case "assistant":
			b.WriteString("VerseWise: ")
		default:
			b.WriteString("Seeker: ")
		}
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}

	b.WriteString("Seeker: ")
	b.WriteString(question)
	b.WriteString("\nVerseWise:")
	return b.String()
}
