// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate queries that feed the
// dashboard metrics engine. Each function is context-aware, read-only, and
// safe to call with arbitrary parallelism.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
)

// CountConversationsBetween counts conversations created in [from, to]. A
// nil bound leaves that side open.
func CountConversationsBetween(ctx context.Context, db *gorm.DB, from, to *time.Time) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{})
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at <= ?", *to)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// CountByStatus returns a status → count map over conversations, optionally
// restricted to a creation window. Counts use each conversation's current
// status, not a historical snapshot.
func CountByStatus(ctx context.Context, db *gorm.DB, from, to *time.Time) (map[string]int64, error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{})
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at <= ?", *to)
	}
	var rows []struct {
		Status string
		N      int64
	}
	if err := q.Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// ListConversationsBetween loads the conversations created in [from, to],
// ordered by creation time, for in-memory aggregation (funnel, daily trend,
// average duration).
func ListConversationsBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
