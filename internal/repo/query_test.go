package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sporttia/onboarding-backend/internal/domain"
)

func TestConversationFilterStatusAndWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a, _ := CreateConversation(ctx, db, "s1", "es")
	b, _ := CreateConversation(ctx, db, "s2", "es")
	if _, err := CreateConversation(ctx, db, "s3", "es"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := UpdateStatusIf(ctx, db, a.ID, domain.StatusActive, domain.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	n, err := CountConversations(ctx, db, ConversationFilter{Status: domain.StatusCompleted})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 completed, got %d", n)
	}

	// "all" is equivalent to no status constraint.
	n, err = CountConversations(ctx, db, ConversationFilter{Status: "all"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}

	// A window in the far past matches nothing.
	from := time.Now().UTC().Add(-48 * time.Hour)
	to := time.Now().UTC().Add(-24 * time.Hour)
	n, err = CountConversations(ctx, db, ConversationFilter{From: &from, To: &to})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 in past window, got %d (b=%s)", n, b.ID)
	}
}

func TestConversationFilterSearch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c, err := CreateConversation(ctx, db, "s1", "es")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := CreateConversation(ctx, db, "s2", "es"); err != nil {
		t.Fatalf("create: %v", err)
	}

	cd, err := GetCollected(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("get projection: %v", err)
	}
	email := "Maria.Lopez@club.es"
	cd.AdminEmail = &email
	if err := SaveCollected(ctx, db, cd); err != nil {
		t.Fatalf("save projection: %v", err)
	}

	// Email search is a case-insensitive substring match.
	rows, err := ListConversationsPage(ctx, db, ConversationFilter{Search: "maria.lopez"}, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != c.ID {
		t.Fatalf("email search failed: %+v", rows)
	}

	// ID search is a prefix match.
	rows, err = ListConversationsPage(ctx, db, ConversationFilter{Search: c.ID[:8]}, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != c.ID {
		t.Fatalf("id-prefix search failed: %+v", rows)
	}
}

func TestListErrorsPageFilterAndOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c, err := CreateConversation(ctx, db, "s1", "es")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	base := time.Now().UTC().Add(-time.Hour)
	for i, typ := range []string{domain.ErrTypeOpenAIAPI, domain.ErrTypeValidation, domain.ErrTypeOpenAIAPI} {
		ev, err := CreateErrorEvent(ctx, db, &c.ID, typ, "boom", nil)
		if err != nil {
			t.Fatalf("append event: %v", err)
		}
		if err := db.Model(&domain.ErrorEvent{}).Where("id = ?", ev.ID).
			Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error; err != nil {
			t.Fatalf("backdate: %v", err)
		}
	}

	n, err := CountErrors(ctx, db, ErrorFilter{Type: domain.ErrTypeOpenAIAPI})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 openai events, got %d", n)
	}

	rows, err := ListErrorsPage(ctx, db, ErrorFilter{SortDesc: true}, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 events, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].CreatedAt.After(rows[i-1].CreatedAt) {
			t.Fatalf("descending order violated at %d", i)
		}
	}

	rows, err = ListErrorsPage(ctx, db, ErrorFilter{Search: c.ID[:6]}, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("conversation-prefix search failed, got %d rows", len(rows))
	}
}

func TestFeedbackPaginationAndAverage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ratings := []int{5, 3, 4}
	for i := range ratings {
		if _, err := CreateFeedback(ctx, db, nil, &ratings[i], "ok", "es"); err != nil {
			t.Fatalf("create feedback: %v", err)
		}
	}
	if _, err := CreateFeedback(ctx, db, nil, nil, "no rating", "en"); err != nil {
		t.Fatalf("create feedback: %v", err)
	}

	n, err := CountFeedback(ctx, db, FeedbackFilter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 rows, got %d", n)
	}

	rows, err := ListFeedbackPage(ctx, db, FeedbackFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected page of 2, got %d", len(rows))
	}

	avg, rated, err := AverageRating(ctx, db)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if rated != 3 {
		t.Fatalf("expected 3 rated rows, got %d", rated)
	}
	if avg != 4 {
		t.Fatalf("expected mean 4, got %v", avg)
	}
}

func TestIdempotencyRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	convID := uuid.NewString()

	if _, err := GetIdempotency(ctx, db, "admin", convID, "k1", now); err == nil {
		t.Fatal("expected miss on empty table")
	}

	rec, err := CreateIdempotency(ctx, db, "admin", convID, "k1", "sc-1", 201, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ResultID != "sc-1" || rec.Status != 201 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "admin", convID, "k1", now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ResultID != "sc-1" {
		t.Fatalf("unexpected result id: %s", got.ResultID)
	}

	// Same tuple again is a duplicate.
	if _, err := CreateIdempotency(ctx, db, "admin", convID, "k1", "sc-2", 201, time.Hour); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Expired records never replay.
	if _, err := GetIdempotency(ctx, db, "admin", convID, "k1", now.Add(2*time.Hour)); err == nil {
		t.Fatal("expected expired record to miss")
	}

	// A different principal gets its own namespace.
	if _, err := CreateIdempotency(ctx, db, "other", convID, "k1", "sc-3", 201, time.Hour); err != nil {
		t.Fatalf("distinct principal must insert: %v", err)
	}
}
