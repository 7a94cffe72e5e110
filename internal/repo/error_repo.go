// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ErrorEvent
// ledger. Events are append-only; there are no update or delete helpers.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
)

// CreateErrorEvent appends one entry to the failure ledger. conversationID
// may be nil for system-wide failures.
func CreateErrorEvent(ctx context.Context, db *gorm.DB, conversationID *string, errorType, message string, details datatypes.JSON) (*domain.ErrorEvent, error) {
	ev := &domain.ErrorEvent{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		ErrorType:      errorType,
		Message:        message,
		Details:        details,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// ListErrorsByConversation returns the ledger entries for one conversation,
// newest first. Used by the conversation detail view.
func ListErrorsByConversation(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.ErrorEvent, error) {
	var out []domain.ErrorEvent
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// CountErrorEvents returns the number of ledger entries for a conversation.
func CountErrorEvents(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ErrorEvent{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}
