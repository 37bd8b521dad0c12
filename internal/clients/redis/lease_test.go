package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

func TestLocalLeaseAlwaysAcquires(t *testing.T) {
	l, err := NewLease("", logger.Nop())
	if err != nil {
		t.Fatalf("NewLease: %v", err)
	}
	for i := 0; i < 2; i++ {
		tok, err := l.Acquire(context.Background(), "k", time.Second)
		if err != nil || tok == "" {
			t.Fatalf("Acquire = %q, %v", tok, err)
		}
	}
}

func TestRedisLease(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis lease tests")
	}
	l, err := NewLease(addr, logger.Nop())
	if err != nil {
		t.Fatalf("NewLease: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	key := "pkm:test:lease:" + uuid.NewString()
	tok, err := l.Acquire(ctx, key, 5*time.Second)
	if err != nil || tok == "" {
		t.Fatalf("first Acquire = %q, %v", tok, err)
	}
	if other, err := l.Acquire(ctx, key, 5*time.Second); err != nil || other != "" {
		t.Fatalf("second Acquire should fail, got %q, %v", other, err)
	}
	if err := l.Release(ctx, key, "not-mine"); err != nil {
		t.Fatalf("Release foreign token: %v", err)
	}
	if other, _ := l.Acquire(ctx, key, 5*time.Second); other != "" {
		t.Fatalf("foreign release must not free the lease")
	}
	if err := l.Release(ctx, key, tok); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if again, err := l.Acquire(ctx, key, 5*time.Second); err != nil || again == "" {
		t.Fatalf("Acquire after release = %q, %v", again, err)
	}
}
