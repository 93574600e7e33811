package connection

import (
	"fmt"
	"log/slog"
	"sync"
)

// callbackQueue runs listener callbacks one at a time, in the order they were queued,
// on its own goroutine. The queue is unbounded so the dispatcher never blocks on listeners.
type callbackQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
	done   chan struct{}

	logger *slog.Logger
}

func newCallbackQueue(logger *slog.Logger) *callbackQueue {
	q := &callbackQueue{
		done:   make(chan struct{}),
		logger: logger,
	}
	q.cond = sync.NewCond(&q.mu)

	go q.run()

	return q
}

// push queues fn. Callbacks pushed after close are dropped.
func (q *callbackQueue) push(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, fn)
	q.cond.Signal()
}

// close lets the queue drain and then stops the goroutine.
func (q *callbackQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *callbackQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		q.call(fn)
	}
}

func (q *callbackQueue) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Listener panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}
