package trace

import (
	"context"
	"sync"
	"sync/atomic"
)

// Notifier fans out items to subscribers without ever blocking the producer.
// Items are dropped for subscribers that do not keep up and counted in Dropped.
type Notifier[T any] struct {
	dropped atomic.Uint64

	mu          sync.RWMutex
	subscribers map[<-chan T]chan T
	bufferSize  int
	queue       chan T
	closeOnce   sync.Once
	closed      bool
}

// NotifierOptions configures a Notifier.
type NotifierOptions struct {
	// SubscriberBufferSize is the buffer size of each subscription channel.
	SubscriberBufferSize int
	// QueueSize is the buffer size of the internal queue feeding the subscribers.
	QueueSize int
}

// DefaultNotifierOptions returns the default notifier options.
func DefaultNotifierOptions() NotifierOptions {
	return NotifierOptions{
		SubscriberBufferSize: 100,
		QueueSize:            1000,
	}
}

// NewNotifier creates a notifier with default options.
func NewNotifier[T any]() *Notifier[T] {
	return NewNotifierWithOptions[T](DefaultNotifierOptions())
}

// NewNotifierWithOptions creates a notifier with the specified options.
func NewNotifierWithOptions[T any](options NotifierOptions) *Notifier[T] {
	n := &Notifier[T]{
		subscribers: make(map[<-chan T]chan T),
		bufferSize:  options.SubscriberBufferSize,
		queue:       make(chan T, options.QueueSize),
	}

	go n.distribute()

	return n
}

// Subscribe returns a channel receiving new items until ctx is done or the notifier is closed.
func (n *Notifier[T]) Subscribe(ctx context.Context) <-chan T {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan T, n.bufferSize)
	if n.closed {
		close(ch)
		return ch
	}
	n.subscribers[ch] = ch

	go func() {
		<-ctx.Done()
		n.Unsubscribe(ch)
	}()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (n *Notifier[T]) Unsubscribe(ch <-chan T) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if sub, ok := n.subscribers[ch]; ok {
		delete(n.subscribers, ch)
		close(sub)
	}
}

// Subscribers returns the number of active subscriptions.
func (n *Notifier[T]) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers)
}

// Notify queues item for all subscribers. It drops the item if the queue is full.
// Without subscribers nothing is queued.
func (n *Notifier[T]) Notify(item T) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed || len(n.subscribers) == 0 {
		return
	}

	select {
	case n.queue <- item:
	default:
		n.dropped.Add(1)
	}
}

// Dropped returns how many deliveries were skipped because the queue or a subscriber was full.
func (n *Notifier[T]) Dropped() uint64 {
	return n.dropped.Load()
}

// Close closes all subscriptions. Later notifications are ignored.
func (n *Notifier[T]) Close() {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		n.closed = true
		for _, sub := range n.subscribers {
			close(sub)
		}
		n.subscribers = nil
		close(n.queue)
	})
}

func (n *Notifier[T]) distribute() {
	for item := range n.queue {
		n.mu.RLock()
		for _, sub := range n.subscribers {
			select {
			case sub <- item:
			default:
				n.dropped.Add(1)
			}
		}
		n.mu.RUnlock()
	}
}
