package domain

import (
	"fmt"
	"strings"
	"time"
)

// Turn is one answered question of a conversation.
type Turn struct {
	Question  string
	Answer    string
	Model     ModelVariant
	CreatedAt time.Time
}

// NewTurn creates a new Turn instance
func NewTurn(question, answer string, model ModelVariant, createdAt time.Time) Turn {
	return Turn{
		Question:  question,
		Answer:    answer,
		Model:     model,
		CreatedAt: createdAt,
	}
}

// ValidateTurn validates a Turn instance
func ValidateTurn(t Turn) error {
	if strings.TrimSpace(t.Question) == "" {
		return fmt.Errorf("turn Question is required")
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("turn CreatedAt is required")
	}
	return nil
}
