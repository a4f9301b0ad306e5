package service

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/tmc/langchaingo/prompts"
)

const answerTemplate = `You answer questions about a PDF document using the context passages below.
Each passage is tagged with the page it comes from. If the context does not contain the answer, say that you don't know instead of making one up.
{{if .history}}
Conversation so far:
{{.history}}
{{end}}
Context:
{{.context}}

Question: {{.question}}
Answer:`

const condenseTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
{{.history}}
Follow Up Input: {{.question}}
Standalone question:`

var (
	answerPrompt   = prompts.NewPromptTemplate(answerTemplate, []string{"history", "context", "question"})
	condensePrompt = prompts.NewPromptTemplate(condenseTemplate, []string{"history", "question"})
)

// BuildAnswerPrompt renders the generation prompt. Prior turns always come
// before the current question.
func BuildAnswerPrompt(history []domain.Turn, sources []domain.ScoredChunk, question string) (string, error) {
	prompt, err := answerPrompt.Format(map[string]any{
		"history":  renderHistory(history),
		"context":  renderContext(sources),
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render answer prompt: %w", err)
	}
	return prompt, nil
}

// BuildCondensePrompt renders the prompt that turns a follow-up into a standalone question.
func BuildCondensePrompt(history []domain.Turn, question string) (string, error) {
	prompt, err := condensePrompt.Format(map[string]any{
		"history":  renderHistory(history),
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render condense prompt: %w", err)
	}
	return prompt, nil
}

func renderHistory(history []domain.Turn) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for i, turn := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Human: %s\nAssistant: %s", turn.Question, turn.Answer)
	}
	return b.String()
}

func renderContext(sources []domain.ScoredChunk) string {
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		parts = append(parts, fmt.Sprintf("[%s]\n%s", s.Chunk.Label(), strings.TrimSpace(s.Chunk.Content)))
	}
	return strings.Join(parts, "\n\n")
}
