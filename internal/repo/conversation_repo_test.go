package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sporttia/onboarding-backend/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestCreateConversationCreatesProjection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c, err := CreateConversation(ctx, db, "sess-1", "es")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Status != domain.StatusActive {
		t.Fatalf("expected active, got %s", c.Status)
	}
	if c.Language != "es" {
		t.Fatalf("expected es, got %s", c.Language)
	}

	cd, err := GetCollected(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("projection row missing: %v", err)
	}
	if cd.Confirmed || cd.EscalatedToHuman || cd.LastError.RetryCount != 0 {
		t.Fatalf("projection not empty: %+v", cd)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetConversation(context.Background(), db, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusIf(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c, err := CreateConversation(ctx, db, "sess-1", "es")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := UpdateStatusIf(ctx, db, c.ID, domain.StatusActive, domain.StatusCompleted); err != nil {
		t.Fatalf("transition: %v", err)
	}
	got, err := GetConversation(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}

	// Second writer loses the race: expected status no longer matches.
	err = UpdateStatusIf(ctx, db, c.ID, domain.StatusActive, domain.StatusAbandoned)
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	got, _ = GetConversation(ctx, db, c.ID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("conflict must not overwrite, got %s", got.Status)
	}

	// Missing row is reported distinctly from a status mismatch.
	err = UpdateStatusIf(ctx, db, uuid.NewString(), domain.StatusActive, domain.StatusAbandoned)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTouchConversation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c, err := CreateConversation(ctx, db, "sess-1", "es")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := c.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	if err := TouchConversation(ctx, db, c.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, _ := GetConversation(ctx, db, c.ID)
	if !got.UpdatedAt.After(before) {
		t.Fatalf("updated_at not bumped: %v vs %v", got.UpdatedAt, before)
	}

	if err := TouchConversation(ctx, db, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetSportsCenterWriteOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c, err := CreateConversation(ctx, db, "sess-1", "es")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := SetSportsCenter(ctx, db, c.ID, "sc-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := SetSportsCenter(ctx, db, c.ID, "sc-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second write must be rejected, got %v", err)
	}
	got, _ := GetConversation(ctx, db, c.ID)
	if got.SportsCenterID == nil || *got.SportsCenterID != "sc-1" {
		t.Fatalf("back-reference overwritten: %v", got.SportsCenterID)
	}
}

func TestListStaleActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	stale, err := CreateConversation(ctx, db, "sess-stale", "es")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fresh, err := CreateConversation(ctx, db, "sess-fresh", "es")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	done, err := CreateConversation(ctx, db, "sess-done", "es")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := UpdateStatusIf(ctx, db, done.ID, domain.StatusActive, domain.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	old := time.Now().UTC().Add(-2 * time.Hour)
	if err := db.Model(&domain.Conversation{}).Where("id IN ?", []string{stale.ID, done.ID}).
		Update("updated_at", old).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	cutoff := time.Now().UTC().Add(-30 * time.Minute)
	ids, err := ListStaleActive(ctx, db, cutoff, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("expected only the stale active conversation, got %v (fresh=%s)", ids, fresh.ID)
	}
}
