// Package services – Tracker
//
// This file implements the error/retry tracker. Every failure in the system
// passes through RecordFailure: it classifies the failure into the closed
// taxonomy, appends an immutable ErrorEvent to the ledger, replaces the
// owning conversation's last-error snapshot, and bumps the per-conversation
// retry counter. When the counter exceeds the configured ceiling, or the
// failure class is non-retryable, the tracker escalates the conversation to
// the terminal error status through the same compare-and-set discipline as
// every other transition.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rs/zerolog/log"

	"github.com/sporttia/onboarding-backend/internal/domain"
	"github.com/sporttia/onboarding-backend/internal/repo"
)

// Tracker records failures and enforces the retry ceiling.
type Tracker struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// MaxRetries is the ceiling beyond which a retryable failure escalates
	// the conversation to error.
	MaxRetries int
}

// NewTracker constructs a Tracker; maxRetries <= 0 falls back to 3.
func NewTracker(db *gorm.DB, maxRetries int) *Tracker {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Tracker{DB: db, MaxRetries: maxRetries}
}

// RecordFailure classifies and records one failure. It returns the retry
// count after the update and whether the conversation was escalated to the
// terminal error status by this failure.
//
// Semantics:
//   - The ErrorEvent is always appended, even for system-wide failures
//     (nil conversationID) and for conversations already terminal.
//   - The retry counter is only advanced while the conversation is active;
//     terminal conversations can no longer self-heal, so their counter is
//     frozen and only the ledger grows.
//   - Escalation happens when the class is non-retryable or the counter
//     exceeds MaxRetries. A compare-and-set conflict during escalation is
//     swallowed: some other writer already moved the conversation out of
//     active, which is exactly the race the CAS guards against.
func (t *Tracker) RecordFailure(ctx context.Context, conversationID *string, errType, message string, details datatypes.JSON) (retryCount int, escalated bool, err error) {
	if !domain.ValidErrorType(errType) {
		errType = domain.ErrTypeInternal
	}

	if _, err := repo.CreateErrorEvent(ctx, t.DB, conversationID, errType, message, details); err != nil {
		return 0, false, err
	}
	if conversationID == nil {
		return 0, false, nil
	}

	conv, err := repo.GetConversation(ctx, t.DB, *conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, ErrConversationNotFound
		}
		return 0, false, err
	}

	cd, err := repo.GetCollected(ctx, t.DB, conv.ID)
	if err != nil {
		return 0, false, err
	}

	if domain.IsTerminal(conv.Status) {
		return cd.LastError.RetryCount, false, nil
	}

	cd.RecordFailure(errType, message, time.Now(), true)
	if err := repo.SaveCollected(ctx, t.DB, cd); err != nil {
		return 0, false, err
	}

	retryCount = cd.LastError.RetryCount
	if domain.RetryableError(errType) && retryCount <= t.MaxRetries {
		return retryCount, false, nil
	}

	// Ceiling exceeded or non-retryable class: hand over to a human.
	reason := "retry ceiling exceeded"
	if !domain.RetryableError(errType) {
		reason = "non-retryable failure: " + errType
	}
	if !cd.EscalatedToHuman {
		cd.EscalatedToHuman = true
		cd.EscalationReason = &reason
		if err := repo.SaveCollected(ctx, t.DB, cd); err != nil {
			return retryCount, false, err
		}
	}

	switch err := repo.UpdateStatusIf(ctx, t.DB, conv.ID, domain.StatusActive, domain.StatusError); {
	case err == nil:
		escalated = true
	case errors.Is(err, repo.ErrStatusConflict):
		log.Debug().Str("conversation_id", conv.ID).Msg("escalation lost transition race")
	default:
		return retryCount, false, err
	}
	return retryCount, escalated, nil
}

// ResetRetries zeroes the retry counter after a successful attempt on a
// still-active conversation. The last-error snapshot is kept for display;
// only the counter resets.
func (t *Tracker) ResetRetries(ctx context.Context, conversationID string) error {
	cd, err := repo.GetCollected(ctx, t.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	if cd.LastError.RetryCount == 0 {
		return nil
	}
	cd.LastError.RetryCount = 0
	return repo.SaveCollected(ctx, t.DB, cd)
}
