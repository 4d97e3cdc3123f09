package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"quiz-session-engine/internal/domain"
)

func TestLocalStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progress.db")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Set(ctx, "quiz_progress_5_9", "2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close(ctx)

	value, err := reopened.Get(ctx, "quiz_progress_5_9")
	if err != nil || value != "2" {
		t.Fatalf("expected stored selection 2, got %q (%v)", value, err)
	}

	if err := reopened.Delete(ctx, "quiz_progress_5_9"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := reopened.Get(ctx, "quiz_progress_5_9"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
