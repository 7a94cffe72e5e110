// Package services – Sweeper
//
// This file implements the abandonment sweep: a periodic, cancellable
// background task that moves idle active conversations to the terminal
// abandoned status. The sweep shares the compare-and-set transition with
// every other writer, so racing a just-arrived user message is harmless: the
// losing side observes a benign conflict and moves on. Repeated sweeps over
// an already-abandoned conversation are no-ops.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
	"github.com/sporttia/onboarding-backend/internal/repo"
)

// Sweeper abandons conversations idle for longer than the threshold.
type Sweeper struct {
	DB *gorm.DB

	// InactivityThreshold is how long a conversation may go without
	// activity before it is considered abandoned.
	InactivityThreshold time.Duration
	// Interval is the pause between sweep passes.
	Interval time.Duration
	// BatchSize caps how many conversations one pass may abandon.
	BatchSize int

	// Now is a seam for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// NewSweeper constructs a Sweeper with defaults applied to zero settings.
func NewSweeper(db *gorm.DB, threshold, interval time.Duration) *Sweeper {
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		DB:                  db,
		InactivityThreshold: threshold,
		Interval:            interval,
		BatchSize:           200,
		Now:                 time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// Intended to be launched as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("threshold", s.InactivityThreshold).
		Dur("interval", s.Interval).
		Msg("abandonment sweep started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("abandonment sweep stopped")
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				log.Error().Err(err).Msg("abandonment sweep failed")
			} else if n > 0 {
				log.Info().Int("abandoned", n).Msg("abandonment sweep pass")
			}
		}
	}
}

// SweepOnce performs a single pass and returns how many conversations it
// abandoned. Conflicts with concurrent message-driven transitions are
// counted as skips, not failures.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.InactivityThreshold)
	ids, err := repo.ListStaleActive(ctx, s.DB, cutoff, s.BatchSize)
	if err != nil {
		return 0, err
	}

	abandoned := 0
	for _, id := range ids {
		err := repo.UpdateStatusIf(ctx, s.DB, id, domain.StatusActive, domain.StatusAbandoned)
		switch {
		case err == nil:
			abandoned++
		case errors.Is(err, repo.ErrStatusConflict), errors.Is(err, repo.ErrNotFound):
			// Lost the race to a foreground transition; nothing to do.
		default:
			return abandoned, err
		}
	}
	return abandoned, nil
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
