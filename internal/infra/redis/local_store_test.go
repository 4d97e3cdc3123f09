package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-session-engine/internal/domain"
)

func TestLocalStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewLocalStore(newClient(mr), time.Minute)

	if _, err := store.Get(ctx, "room_start_time_4"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Set(ctx, "room_start_time_4", "2026-01-02T10:00:00Z"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("quiz:local:room_start_time_4") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz:local:room_start_time_4"); ttl != time.Minute {
		t.Fatalf("expected ttl of a minute, got %v", ttl)
	}

	value, err := store.Get(ctx, "room_start_time_4")
	if err != nil || value != "2026-01-02T10:00:00Z" {
		t.Fatalf("unexpected value %q (%v)", value, err)
	}

	if err := store.Delete(ctx, "room_start_time_4"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("quiz:local:room_start_time_4") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestLocalStoreExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewLocalStore(newClient(mr), time.Minute)
	_ = store.Set(ctx, "quiz_progress_1_2", "0")

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "quiz_progress_1_2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected expired key, got %v", err)
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
