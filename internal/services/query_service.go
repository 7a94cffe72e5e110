// Package services – Query
//
// This file implements the dashboard listing layer: filtered, sorted,
// paginated views over conversations, the error ledger, and feedback. It
// validates filters against the domain vocabularies, clamps pagination
// input, and computes totals over the filtered set.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
	"github.com/sporttia/onboarding-backend/internal/repo"
)

// Page carries pagination metadata for list responses. Totals reflect the
// filtered set, not the raw corpus; pages beyond TotalPages yield an empty
// item list rather than an error.
type Page struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// Query serves the dashboard listings.
type Query struct {
	DB *gorm.DB

	// DefaultPageSize applies when the caller passes no limit; bounded by
	// MaxPageSize.
	DefaultPageSize int
	MaxPageSize     int
}

// NewQuery constructs a Query layer with the standard page bounds.
func NewQuery(db *gorm.DB, defaultPageSize int) *Query {
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	return &Query{DB: db, DefaultPageSize: defaultPageSize, MaxPageSize: 100}
}

// clamp normalizes 1-indexed page numbers and page sizes.
func (q *Query) clamp(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = q.DefaultPageSize
	}
	if q.MaxPageSize > 0 && pageSize > q.MaxPageSize {
		pageSize = q.MaxPageSize
	}
	return page, pageSize
}

func makePage(page, pageSize int, total int64) Page {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Page{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// Conversations lists conversations matching the filter. An unknown status
// (other than "all"/empty) yields an empty result rather than an error, and
// the sort key is restricted to the created/updated timestamps.
func (q *Query) Conversations(ctx context.Context, f repo.ConversationFilter, page, pageSize int) ([]domain.Conversation, Page, error) {
	page, pageSize = q.clamp(page, pageSize)
	if f.Status != "" && f.Status != "all" && !domain.ValidStatus(f.Status) {
		return []domain.Conversation{}, makePage(page, pageSize, 0), nil
	}
	if f.SortKey != "updated_at" {
		f.SortKey = "created_at"
	}

	total, err := repo.CountConversations(ctx, q.DB, f)
	if err != nil {
		return nil, Page{}, err
	}
	if total == 0 {
		return []domain.Conversation{}, makePage(page, pageSize, 0), nil
	}

	items, err := repo.ListConversationsPage(ctx, q.DB, f, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, Page{}, err
	}
	if items == nil {
		items = []domain.Conversation{}
	}
	return items, makePage(page, pageSize, total), nil
}

// Errors lists failure-ledger entries matching the filter. An unknown type
// (other than "all"/empty) yields an empty result.
func (q *Query) Errors(ctx context.Context, f repo.ErrorFilter, page, pageSize int) ([]domain.ErrorEvent, Page, error) {
	page, pageSize = q.clamp(page, pageSize)
	if f.Type != "" && f.Type != "all" && !domain.ValidErrorType(f.Type) {
		return []domain.ErrorEvent{}, makePage(page, pageSize, 0), nil
	}

	total, err := repo.CountErrors(ctx, q.DB, f)
	if err != nil {
		return nil, Page{}, err
	}
	if total == 0 {
		return []domain.ErrorEvent{}, makePage(page, pageSize, 0), nil
	}

	items, err := repo.ListErrorsPage(ctx, q.DB, f, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, Page{}, err
	}
	if items == nil {
		items = []domain.ErrorEvent{}
	}
	return items, makePage(page, pageSize, total), nil
}

// Feedback lists feedback entries matching the filter, alongside the
// average rating over all rated feedback.
func (q *Query) Feedback(ctx context.Context, f repo.FeedbackFilter, page, pageSize int) ([]domain.Feedback, Page, float64, error) {
	page, pageSize = q.clamp(page, pageSize)

	avg, _, err := repo.AverageRating(ctx, q.DB)
	if err != nil {
		return nil, Page{}, 0, err
	}

	total, err := repo.CountFeedback(ctx, q.DB, f)
	if err != nil {
		return nil, Page{}, 0, err
	}
	if total == 0 {
		return []domain.Feedback{}, makePage(page, pageSize, 0), avg, nil
	}

	items, err := repo.ListFeedbackPage(ctx, q.DB, f, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, Page{}, 0, err
	}
	if items == nil {
		items = []domain.Feedback{}
	}
	return items, makePage(page, pageSize, total), avg, nil
}
