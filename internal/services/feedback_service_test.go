package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/sporttia/onboarding-backend/internal/repo"
)

func intp(v int) *int { return &v }

func TestSubmitFeedback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := &FeedbackService{DB: db}
	c := mustConversation(t, db)

	fb, err := svc.Submit(ctx, &c.ID, intp(5), "  muy bien  ", "es")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if fb.ConversationID == nil || *fb.ConversationID != c.ID {
		t.Fatalf("conversation link missing: %+v", fb)
	}
	if fb.Message != "muy bien" {
		t.Fatalf("message not trimmed: %q", fb.Message)
	}
	if fb.Rating == nil || *fb.Rating != 5 {
		t.Fatalf("rating lost: %v", fb.Rating)
	}
}

func TestSubmitFeedbackAnonymousAndUnrated(t *testing.T) {
	db := newTestDB(t)
	svc := &FeedbackService{DB: db}

	fb, err := svc.Submit(context.Background(), nil, nil, "sin nota", "pt-BR")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if fb.ConversationID != nil || fb.Rating != nil {
		t.Fatalf("expected anonymous unrated row: %+v", fb)
	}
	if fb.Language != "pt" {
		t.Fatalf("expected negotiated language pt, got %s", fb.Language)
	}
}

func TestSubmitFeedbackValidation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := &FeedbackService{DB: db}

	if _, err := svc.Submit(ctx, nil, intp(0), "m", "es"); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	if _, err := svc.Submit(ctx, nil, intp(6), "m", "es"); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	ghost := uuid.NewString()
	if _, err := svc.Submit(ctx, &ghost, intp(4), "m", "es"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	n, err := repo.CountFeedback(ctx, db, repo.FeedbackFilter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("rejected submissions must not persist, got %d", n)
	}
}
