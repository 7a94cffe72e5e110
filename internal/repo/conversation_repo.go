// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model, including the compare-and-set status update that the
// lifecycle service relies on for concurrency correctness.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - UpdateStatusIf returns ErrStatusConflict when the row is no longer in
//     the expected prior status; callers treat that as a benign conflict,
//     re-read, and decide whether their transition still applies.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStatusConflict reports that a compare-and-set status update found the
// conversation in a different status than expected. This is the expected
// outcome when the abandonment sweep races a message-driven transition.
var ErrStatusConflict = errors.New("conversation status conflict")

// CreateConversation inserts a new active conversation together with its
// empty collected-data projection, in one transaction.
func CreateConversation(ctx context.Context, db *gorm.DB, sessionID, language string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Language:  language,
		Status:    domain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		cd := &domain.CollectedData{
			ID:             uuid.NewString(),
			ConversationID: c.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.Create(cd).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetConversation fetches a single conversation by ID, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateStatusIf performs the atomic transition write: it sets the status
// (and UpdatedAt) only when the row still holds the expected prior status.
//
// Returns ErrStatusConflict when zero rows were affected because the status
// no longer matches, and ErrNotFound when the conversation does not exist at
// all. The distinction lets callers report conflicts as benign.
func UpdateStatusIf(ctx context.Context, db *gorm.DB, id, expected, next string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]any{
			"status":     next,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.WithContext(ctx).Model(&domain.Conversation{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

// TouchConversation bumps UpdatedAt, used when a mutation outside the status
// column (messages, collected data) must still count as activity.
func TouchConversation(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSportsCenter stores the back-reference to the provisioned record. Only
// written once, alongside the completed transition.
func SetSportsCenter(ctx context.Context, db *gorm.DB, id, sportsCenterID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND sports_center_id IS NULL", id).
		Update("sports_center_id", sportsCenterID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStaleActive returns the IDs of active conversations whose UpdatedAt is
// older than the cutoff. Consumed by the abandonment sweep.
func ListStaleActive(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	q := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("status = ? AND updated_at < ?", domain.StatusActive, cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Pluck("id", &ids).Error
	return ids, err
}
