// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// CollectedData projection, which is created alongside its conversation and
// updated in place as partials are merged.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
)

// GetCollected fetches the projection for a conversation, or ErrNotFound.
func GetCollected(ctx context.Context, db *gorm.DB, conversationID string) (*domain.CollectedData, error) {
	var cd domain.CollectedData
	if err := db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&cd).Error; err != nil {
		return nil, err
	}
	return &cd, nil
}

// SaveCollected writes the full projection row back. The caller is expected
// to hold the per-conversation lock so merges are applied in order.
func SaveCollected(ctx context.Context, db *gorm.DB, cd *domain.CollectedData) error {
	cd.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(cd).Error
}

// CountEmailCaptured returns how many of the given conversations have a
// non-null admin email in their projection. Used by the metrics funnel.
func CountEmailCaptured(ctx context.Context, db *gorm.DB, conversationIDs []string) (int64, error) {
	if len(conversationIDs) == 0 {
		return 0, nil
	}
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.CollectedData{}).
		Where("conversation_id IN ? AND admin_email IS NOT NULL", conversationIDs).
		Count(&n).Error
	return n, err
}
