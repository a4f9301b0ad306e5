package service

import (
	"sync"

	"github.com/cloo-solutions/pdfqa/internal/domain"
)

// Conversation is the append-only log of answered turns of one session.
type Conversation struct {
	mu    sync.RWMutex
	turns []domain.Turn
}

func NewConversation() *Conversation {
	return &Conversation{}
}

// Append records a turn at the end of the log.
func (c *Conversation) Append(turn domain.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turn)
}

// History returns a copy of every turn in insertion order.
func (c *Conversation) History() []domain.Turn {
	return c.Window(0)
}

// Window returns the last n turns in insertion order, or all when n <= 0.
func (c *Conversation) Window(n int) []domain.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	from := 0
	if n > 0 && len(c.turns) > n {
		from = len(c.turns) - n
	}
	out := make([]domain.Turn, len(c.turns)-from)
	copy(out, c.turns[from:])
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}
