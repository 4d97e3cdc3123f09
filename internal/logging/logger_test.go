package logging

import (
	"context"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	if logger := NewLogger(true); logger == nil {
		t.Fatal("logger cannot be nil")
	}
}

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	logger1 := DefaultLogger()
	logger2 := DefaultLogger()
	if logger1 == nil || logger1 != logger2 {
		t.Fatalf("expected a single default logger, got %p and %p", logger1, logger2)
	}
}

func TestContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if FromContext(ctx) != DefaultLogger() {
		t.Fatal("expected fallback logger for bare context")
	}

	logger := NewLogger(false)
	ctx = WithLogger(ctx, logger)
	if FromContext(ctx) != logger {
		t.Fatal("expected logger carried on context")
	}
}
