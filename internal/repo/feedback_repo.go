// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Feedback
// model. Feedback is write-once: there are no update or delete helpers.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
)

// CreateFeedback inserts a write-once feedback row, optionally linked to a
// conversation. Rating validation (1..5 or absent) is enforced at the
// service layer and by the DB check constraint.
func CreateFeedback(ctx context.Context, db *gorm.DB, conversationID *string, rating *int, message, language string) (*domain.Feedback, error) {
	fb := &domain.Feedback{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Rating:         rating,
		Message:        message,
		Language:       language,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(fb).Error; err != nil {
		return nil, err
	}
	return fb, nil
}

// AverageRating returns the mean rating over rated feedback rows, and how
// many rows carried a rating. Zero mean when no rated rows exist.
func AverageRating(ctx context.Context, db *gorm.DB) (avg float64, rated int64, err error) {
	if err = db.WithContext(ctx).
		Model(&domain.Feedback{}).
		Where("rating IS NOT NULL").
		Count(&rated).Error; err != nil {
		return 0, 0, err
	}
	if rated == 0 {
		return 0, 0, nil
	}
	var row struct {
		Avg float64
	}
	err = db.WithContext(ctx).
		Model(&domain.Feedback{}).
		Select("AVG(rating) AS avg").
		Where("rating IS NOT NULL").
		Scan(&row).Error
	return row.Avg, rated, err
}
