package connection

import (
	"context"
	"encoding/json"
	"sync"
)

type waiterResult struct {
	params json.RawMessage
	err    error
}

// EventWaiter waits for one protocol event on a remote object.
type EventWaiter struct {
	owner     *ChannelOwner
	event     string
	predicate func(params json.RawMessage) bool

	once sync.Once
	ch   chan waiterResult
}

func (w *EventWaiter) settle(result waiterResult) {
	w.once.Do(func() {
		w.ch <- result
	})
}

// Wait blocks until the event arrives, the object is disposed, the connection
// terminates or ctx is done.
func (w *EventWaiter) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case result := <-w.ch:
		// Keep the result for repeated Wait calls.
		w.ch <- result
		return result.params, result.err
	case <-ctx.Done():
		w.Cancel()
		return nil, ctx.Err()
	}
}

// Cancel stops waiting. Wait returns context.Canceled afterwards unless the event already arrived.
func (w *EventWaiter) Cancel() {
	w.owner.removeWaiter(w)
	w.settle(waiterResult{err: context.Canceled})
}
