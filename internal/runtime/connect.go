package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
)

// connectBackoff is the linear backoff factor between connect attempts:
// the n-th retry waits n*connectBackoff.
const connectBackoff = 5 * time.Second

// Connect verifies the backend is reachable, retrying with linear backoff.
// Attempts <= 0 means a single attempt.
func Connect(ctx context.Context, c Client, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}

	err := retry.Retry(func(attempt uint) error {
		return c.Ping(ctx)
	}, strategy.Limit(uint(attempts)), strategy.Backoff(backoff.Linear(connectBackoff)))
	if err != nil {
		return fmt.Errorf("runtime: backend unreachable after %d attempts: %w", attempts, err)
	}
	return nil
}

// EnsureAlive pings the backend once and reconnects with retry if the ping
// fails. Crash recovery calls this before relaunching a worker so a dead
// backend is noticed before a dead session is blamed.
func EnsureAlive(ctx context.Context, c Client, attempts int) error {
	if err := c.Ping(ctx); err == nil {
		return nil
	}
	return Connect(ctx, c, attempts)
}
