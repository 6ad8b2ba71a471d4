package lock_test

import (
	"context"
	"testing"
	"time"

	"arc-stats-service/pkg/lock"
)

func TestRunLockSerializes(t *testing.T) {
	ctx := context.Background()
	l := lock.New(nil, "test:lock", time.Minute)

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := l.Acquire(ctx); err != lock.ErrNotAcquired {
		t.Fatalf("expected ErrNotAcquired while held, got %v", err)
	}

	l.Release(ctx)
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	l.Release(ctx)
}

func TestRunLockReleaseWithoutAcquire(t *testing.T) {
	ctx := context.Background()
	l := lock.New(nil, "test:lock", time.Minute)

	// Must be a no-op, not a panic.
	l.Release(ctx)

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	l.Release(ctx)
}
