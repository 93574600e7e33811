package trace

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestCollector gathers items from a subscription in tests.
type TestCollector[T any] struct {
	t       testing.TB
	cancel  context.CancelFunc
	timeout time.Duration

	mu    sync.Mutex
	items []T
}

// Collect subscribes and gathers items in the background until Wait or Stop.
func Collect[T any](t testing.TB, subscribe func(context.Context) <-chan T) *TestCollector[T] {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := subscribe(ctx)

	c := &TestCollector[T]{
		t:       t,
		cancel:  cancel,
		timeout: time.Second,
	}
	go func() {
		for item := range ch {
			c.mu.Lock()
			c.items = append(c.items, item)
			c.mu.Unlock()
		}
	}()
	return c
}

// Wait blocks until n items were received and returns them. It fails the test on timeout.
func (c *TestCollector[T]) Wait(n int) []T {
	c.t.Helper()
	defer c.cancel()

	deadline := time.Now().Add(c.timeout)
	for time.Now().Before(deadline) {
		if items := c.snapshot(); len(items) >= n {
			return items
		}
		time.Sleep(time.Millisecond)
	}
	c.t.Fatalf("timeout waiting for %d items, got %d", n, len(c.snapshot()))
	return nil
}

// Stop ends collection and returns the items received so far.
func (c *TestCollector[T]) Stop() []T {
	c.cancel()
	return c.snapshot()
}

func (c *TestCollector[T]) snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]T, len(c.items))
	copy(items, c.items)
	return items
}
