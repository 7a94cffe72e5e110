// Package services – FeedbackService
//
// This file implements the feedback intake: a write-once record optionally
// linked to a conversation, validated but otherwise opaque to the core. The
// only statistic derived from it is the average rating surfaced next to the
// query layer.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/domain"
	"github.com/sporttia/onboarding-backend/internal/repo"
)

// FeedbackService persists end-of-session feedback.
type FeedbackService struct {
	// DB is the database handle used for all feedback operations.
	DB *gorm.DB

	// DefaultLanguage is the tag stored when the submitted language cannot
	// be matched. Empty means Spanish.
	DefaultLanguage string
}

// Submit stores one feedback record.
//
// Semantics and validation:
//   - rating, when present, must be within 1..5; otherwise ErrInvalidRating.
//   - conversationID, when present, must reference an existing conversation;
//     otherwise ErrConversationNotFound. Feedback on terminal conversations
//     is allowed (sessions typically end before feedback arrives).
//   - The record is write-once; there is no update path.
func (s *FeedbackService) Submit(ctx context.Context, conversationID *string, rating *int, message, lang string) (*domain.Feedback, error) {
	if rating != nil && (*rating < 1 || *rating > 5) {
		return nil, ErrInvalidRating
	}
	if conversationID != nil {
		if _, err := repo.GetConversation(ctx, s.DB, *conversationID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrConversationNotFound
			}
			return nil, err
		}
	}
	return repo.CreateFeedback(ctx, s.DB, conversationID, rating, strings.TrimSpace(message), NegotiateLanguage(lang, s.DefaultLanguage))
}
