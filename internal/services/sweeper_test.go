package services

import (
	"context"
	"testing"
	"time"

	"github.com/sporttia/onboarding-backend/internal/domain"
	"github.com/sporttia/onboarding-backend/internal/repo"
)

func TestSweepOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	stale := mustConversation(t, db)
	fresh := mustConversation(t, db)
	terminal := mustConversation(t, db)
	if err := repo.UpdateStatusIf(ctx, db, terminal.ID, domain.StatusActive, domain.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	old := time.Now().UTC().Add(-2 * time.Hour)
	if err := db.Model(&domain.Conversation{}).Where("id IN ?", []string{stale.ID, terminal.ID}).
		Update("updated_at", old).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	sw := NewSweeper(db, 30*time.Minute, time.Minute)
	n, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 abandonment, got %d", n)
	}

	got, _ := repo.GetConversation(ctx, db, stale.ID)
	if got.Status != domain.StatusAbandoned {
		t.Fatalf("stale conversation not abandoned, got %s", got.Status)
	}
	got, _ = repo.GetConversation(ctx, db, fresh.ID)
	if got.Status != domain.StatusActive {
		t.Fatalf("fresh conversation must survive, got %s", got.Status)
	}
	got, _ = repo.GetConversation(ctx, db, terminal.ID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("terminal conversation must be untouched, got %s", got.Status)
	}

	// A second pass finds nothing left to do.
	n, err = sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected idempotent second pass, got %d", n)
	}
}

func TestSweepOnceNowSeam(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := mustConversation(t, db)

	sw := NewSweeper(db, 30*time.Minute, time.Minute)
	// Pretend it is far in the future; even a just-created conversation
	// is then stale.
	sw.Now = func() time.Time { return time.Now().UTC().Add(24 * time.Hour) }

	n, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 abandonment, got %d", n)
	}
	got, _ := repo.GetConversation(ctx, db, c.ID)
	if got.Status != domain.StatusAbandoned {
		t.Fatalf("expected abandoned, got %s", got.Status)
	}
}

func TestSweeperDefaults(t *testing.T) {
	db := newTestDB(t)
	sw := NewSweeper(db, 0, 0)
	if sw.InactivityThreshold != 30*time.Minute || sw.Interval != 5*time.Minute {
		t.Fatalf("unexpected defaults: %v/%v", sw.InactivityThreshold, sw.Interval)
	}
	if sw.BatchSize != 200 {
		t.Fatalf("unexpected batch size: %d", sw.BatchSize)
	}
}
