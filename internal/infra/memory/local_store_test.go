package memory

import (
	"context"
	"errors"
	"testing"

	"quiz-session-engine/internal/domain"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore()

	if _, err := store.Get(ctx, "quiz_progress_1_2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Set(ctx, "quiz_progress_1_2", "3"); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, err := store.Get(ctx, "quiz_progress_1_2")
	if err != nil || value != "3" {
		t.Fatalf("expected 3, got %q (%v)", value, err)
	}

	if err := store.Delete(ctx, "quiz_progress_1_2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d keys", store.Len())
	}
}
