// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the filtered listing queries consumed
// by the dashboard query layer: conversations, error events, and feedback,
// each with status/type filters, date ranges, free-text search, allow-listed
// sorting, and offset pagination.
//
// Totals are always computed over the filtered set, never the raw corpus,
// so pagination metadata matches what the caller can actually page through.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
)

// ConversationFilter narrows a conversation listing. Zero values mean "no
// constraint"; Status "all" is equivalent to empty. Search matches a
// conversation ID prefix or an admin-email substring, case-insensitively.
type ConversationFilter struct {
	Status   string
	From     *time.Time
	To       *time.Time
	Search   string
	SortKey  string // created_at or updated_at; validated by the service
	SortDesc bool
}

func (f ConversationFilter) apply(db *gorm.DB) *gorm.DB {
	q := db.Model(&domain.Conversation{})
	if f.Status != "" && f.Status != "all" {
		q = q.Where("conversations.status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("conversations.created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("conversations.created_at <= ?", *f.To)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		low := strings.ToLower(s)
		q = q.Joins("LEFT JOIN collected_data ON collected_data.conversation_id = conversations.id").
			Where("conversations.id LIKE ? OR LOWER(collected_data.admin_email) LIKE ?",
				low+"%", "%"+low+"%")
	}
	return q
}

func (f ConversationFilter) order() string {
	key := f.SortKey
	if key != "updated_at" {
		key = "created_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	return "conversations." + key + " " + dir + ", conversations.id " + dir
}

// CountConversations returns the size of the filtered set.
func CountConversations(ctx context.Context, db *gorm.DB, f ConversationFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx)).Count(&n).Error
	return n, err
}

// ListConversationsPage returns one page of the filtered, sorted set.
func ListConversationsPage(ctx context.Context, db *gorm.DB, f ConversationFilter, offset, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := f.apply(db.WithContext(ctx)).
		Order(f.order()).
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ErrorFilter narrows an error-ledger listing. Type "all" or empty matches
// every classification; Search matches a conversation ID prefix.
type ErrorFilter struct {
	Type     string
	From     *time.Time
	To       *time.Time
	Search   string
	SortDesc bool
}

func (f ErrorFilter) apply(db *gorm.DB) *gorm.DB {
	q := db.Model(&domain.ErrorEvent{})
	if f.Type != "" && f.Type != "all" {
		q = q.Where("error_type = ?", f.Type)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.Where("conversation_id LIKE ?", strings.ToLower(s)+"%")
	}
	return q
}

// CountErrors returns the size of the filtered ledger.
func CountErrors(ctx context.Context, db *gorm.DB, f ErrorFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx)).Count(&n).Error
	return n, err
}

// ListErrorsPage returns one page of the filtered ledger, sorted by creation
// time (ID as tiebreaker for determinism).
func ListErrorsPage(ctx context.Context, db *gorm.DB, f ErrorFilter, offset, limit int) ([]domain.ErrorEvent, error) {
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	var out []domain.ErrorEvent
	err := f.apply(db.WithContext(ctx)).
		Order("created_at " + dir + ", id " + dir).
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// FeedbackFilter narrows a feedback listing.
type FeedbackFilter struct {
	From     *time.Time
	To       *time.Time
	SortDesc bool
}

func (f FeedbackFilter) apply(db *gorm.DB) *gorm.DB {
	q := db.Model(&domain.Feedback{})
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	return q
}

// CountFeedback returns the size of the filtered feedback set.
func CountFeedback(ctx context.Context, db *gorm.DB, f FeedbackFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx)).Count(&n).Error
	return n, err
}

// ListFeedbackPage returns one page of the filtered feedback set.
func ListFeedbackPage(ctx context.Context, db *gorm.DB, f FeedbackFilter, offset, limit int) ([]domain.Feedback, error) {
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	var out []domain.Feedback
	err := f.apply(db.WithContext(ctx)).
		Order("created_at " + dir + ", id " + dir).
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
