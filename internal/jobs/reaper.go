package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// IdleSessionReaper closes sessions that have been idle longer than a TTL.
type IdleSessionReaper interface {
	ReapIdle(ctx context.Context, ttl time.Duration) (int, error)
}

// SessionReaper is a JobProcessor that evicts idle sessions and the
// indexes they own.
type SessionReaper struct {
	sessions IdleSessionReaper
	ttl      time.Duration
}

func NewSessionReaper(sessions IdleSessionReaper, ttl time.Duration) *SessionReaper {
	return &SessionReaper{sessions: sessions, ttl: ttl}
}

// ProcessJobs implements JobProcessor
func (r *SessionReaper) ProcessJobs(ctx context.Context) error {
	if r.ttl <= 0 {
		return nil
	}

	n, err := r.sessions.ReapIdle(ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("failed to reap idle sessions: %w", err)
	}
	if n > 0 {
		log.Info().Int("sessions", n).Dur("ttl", r.ttl).Msg("reaped idle sessions")
	}
	return nil
}
