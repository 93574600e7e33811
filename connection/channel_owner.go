package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/samber/lo"
)

// Object is a local proxy of a remote object.
type Object interface {
	Channel() *ChannelOwner
}

// EventHandler is implemented by objects that interpret their protocol events.
// OnEvent runs on the dispatcher goroutine and must not block; it typically
// updates state and calls Emit for user listeners.
type EventHandler interface {
	OnEvent(method string, params json.RawMessage)
}

// Disposer is implemented by objects that need to react to their disposal.
// OnDispose runs on the dispatcher goroutine.
type Disposer interface {
	OnDispose()
}

// ChannelOwner is the base of every remote object proxy. It is created by the
// connection in response to __create__ and lives until __dispose__.
type ChannelOwner struct {
	conn        *Connection
	guid        string
	typ         string
	initializer json.RawMessage

	// object is the typed proxy built by the factory, the owner itself for unknown types.
	object Object

	mu        sync.Mutex
	parent    *ChannelOwner
	children  map[string]*ChannelOwner
	disposed  bool
	listeners map[string][]*listener
	waiters   map[string][]*EventWaiter
}

type listener struct {
	fn   func(payload any)
	once bool
}

func newChannelOwner(conn *Connection, parent *ChannelOwner, typ, guid string, initializer json.RawMessage) *ChannelOwner {
	if len(initializer) == 0 {
		initializer = json.RawMessage(`{}`)
	}
	o := &ChannelOwner{
		conn:        conn,
		guid:        guid,
		typ:         typ,
		initializer: initializer,
		parent:      parent,
		children:    make(map[string]*ChannelOwner),
		listeners:   make(map[string][]*listener),
		waiters:     make(map[string][]*EventWaiter),
	}
	o.object = o
	if parent != nil {
		parent.addChild(o)
	}
	return o
}

// Channel implements Object.
func (o *ChannelOwner) Channel() *ChannelOwner {
	return o
}

// GUID returns the driver assigned id.
func (o *ChannelOwner) GUID() string {
	return o.guid
}

// Type returns the remote object type, e.g. "Page".
func (o *ChannelOwner) Type() string {
	return o.typ
}

// Initializer returns the raw initializer sent with __create__.
func (o *ChannelOwner) Initializer() json.RawMessage {
	return o.initializer
}

// DecodeInitializer unmarshals the initializer into v.
func (o *ChannelOwner) DecodeInitializer(v any) error {
	if err := json.Unmarshal(o.initializer, v); err != nil {
		return fmt.Errorf("decoding initializer of %s %s: %w", o.typ, o.guid, err)
	}
	return nil
}

// Connection returns the owning connection.
func (o *ChannelOwner) Connection() *Connection {
	return o.conn
}

// Object returns the typed proxy of this owner.
func (o *ChannelOwner) Object() Object {
	return o.object
}

// Parent returns the parent owner, nil for the root.
func (o *ChannelOwner) Parent() *ChannelOwner {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.parent
}

// Children returns the current child owners.
func (o *ChannelOwner) Children() []*ChannelOwner {
	o.mu.Lock()
	defer o.mu.Unlock()
	return lo.Values(o.children)
}

// IsDisposed reports whether the driver disposed the object.
func (o *ChannelOwner) IsDisposed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disposed
}

// Send calls method on the remote object and waits for the result.
func (o *ChannelOwner) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if o.IsDisposed() {
		return nil, fmt.Errorf("calling %s.%s: %w", o.typ, method, ErrObjectDisposed)
	}
	return o.conn.Send(ctx, o.guid, method, params)
}

// SendNoWait calls method without waiting for the result.
func (o *ChannelOwner) SendNoWait(method string, params any) error {
	if o.IsDisposed() {
		return fmt.Errorf("calling %s.%s: %w", o.typ, method, ErrObjectDisposed)
	}
	return o.conn.SendNoWait(o.guid, method, params)
}

// SendReturning calls method and decodes field of the result into out.
// A missing field leaves out untouched.
func (o *ChannelOwner) SendReturning(ctx context.Context, method string, params any, field string, out any) error {
	result, err := o.Send(ctx, method, params)
	if err != nil {
		return err
	}
	return DecodeField(result, field, out)
}

// DecodeField decodes field of a JSON object into out. A missing field leaves out untouched.
func DecodeField(raw json.RawMessage, field string, out any) error {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	value, ok := fields[field]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("decoding result field %s: %w", field, err)
	}
	return nil
}

// On registers a listener for an emitted event and returns a function removing it.
// Listeners run on the connection's listener goroutine in event order and may
// issue blocking calls.
func (o *ChannelOwner) On(event string, fn func(payload any)) (remove func()) {
	return o.addListener(event, fn, false)
}

// Once registers a listener that is removed after its first invocation.
func (o *ChannelOwner) Once(event string, fn func(payload any)) (remove func()) {
	return o.addListener(event, fn, true)
}

func (o *ChannelOwner) addListener(event string, fn func(payload any), once bool) func() {
	l := &listener{fn: fn, once: once}

	o.mu.Lock()
	o.listeners[event] = append(o.listeners[event], l)
	o.mu.Unlock()

	return func() {
		o.removeListener(event, l)
	}
}

func (o *ChannelOwner) removeListener(event string, l *listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners[event] = lo.Without(o.listeners[event], l)
	if len(o.listeners[event]) == 0 {
		delete(o.listeners, event)
	}
}

// HasListeners reports whether any listener is registered for event.
func (o *ChannelOwner) HasListeners(event string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.listeners[event]) > 0
}

// Emit queues the listeners of event for invocation with payload.
// It returns false if nobody listens.
func (o *ChannelOwner) Emit(event string, payload any) bool {
	o.mu.Lock()
	listeners := o.listeners[event]
	if len(listeners) == 0 {
		o.mu.Unlock()
		return false
	}
	remaining := lo.Filter(listeners, func(l *listener, _ int) bool { return !l.once })
	if len(remaining) == 0 {
		delete(o.listeners, event)
	} else {
		o.listeners[event] = remaining
	}
	o.mu.Unlock()

	for _, l := range listeners {
		fn := l.fn
		o.conn.callbacks.push(func() {
			fn(payload)
		})
	}
	return true
}

// Schedule runs fn on the listener goroutine after the listeners queued so far.
// fn may issue blocking calls.
func (o *ChannelOwner) Schedule(fn func()) {
	o.conn.callbacks.push(fn)
}

// ExpectEvent registers a waiter for the next protocol event with the given name.
// Register it before triggering the action that causes the event.
func (o *ChannelOwner) ExpectEvent(event string) *EventWaiter {
	return o.ExpectEventFunc(event, nil)
}

// ExpectEventFunc is like ExpectEvent but only resolves for params accepted by predicate.
// The predicate runs on the dispatcher goroutine.
func (o *ChannelOwner) ExpectEventFunc(event string, predicate func(params json.RawMessage) bool) *EventWaiter {
	w := &EventWaiter{
		owner:     o,
		event:     event,
		predicate: predicate,
		ch:        make(chan waiterResult, 1),
	}

	o.mu.Lock()
	disposed := o.disposed
	if !disposed {
		o.waiters[event] = append(o.waiters[event], w)
	}
	o.mu.Unlock()

	if disposed {
		w.settle(waiterResult{err: fmt.Errorf("waiting for %s on %s: %w", event, o.typ, ErrObjectDisposed)})
	} else if err := o.conn.Err(); err != nil {
		o.removeWaiter(w)
		w.settle(waiterResult{err: err})
	}
	return w
}

// WaitForEvent waits for the next protocol event with the given name and returns its params.
func (o *ChannelOwner) WaitForEvent(ctx context.Context, event string) (json.RawMessage, error) {
	return o.ExpectEvent(event).Wait(ctx)
}

func (o *ChannelOwner) removeWaiter(w *EventWaiter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.waiters[w.event] = lo.Without(o.waiters[w.event], w)
	if len(o.waiters[w.event]) == 0 {
		delete(o.waiters, w.event)
	}
}

// resolveWaiters settles the waiters matching a protocol event.
func (o *ChannelOwner) resolveWaiters(event string, params json.RawMessage) {
	o.mu.Lock()
	waiters := o.waiters[event]
	o.mu.Unlock()

	matched := lo.Filter(waiters, func(w *EventWaiter, _ int) bool {
		return w.predicate == nil || w.predicate(params)
	})
	for _, w := range matched {
		o.removeWaiter(w)
		w.settle(waiterResult{params: params})
	}
}

// failWaiters rejects all waiters with err.
func (o *ChannelOwner) failWaiters(err error) {
	o.mu.Lock()
	waiters := lo.Flatten(lo.Values(o.waiters))
	o.waiters = make(map[string][]*EventWaiter)
	o.mu.Unlock()

	for _, w := range waiters {
		w.settle(waiterResult{err: err})
	}
}

func (o *ChannelOwner) addChild(child *ChannelOwner) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.children[child.guid] = child
}

func (o *ChannelOwner) removeChild(guid string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.children, guid)
}

// adopt moves o under a new parent.
func (o *ChannelOwner) adopt(parent *ChannelOwner) {
	o.mu.Lock()
	old := o.parent
	o.parent = parent
	o.mu.Unlock()

	if old != nil {
		old.removeChild(o.guid)
	}
	parent.addChild(o)
}

// dispose tears down o and all descendants, children first. It returns the disposed owners.
func (o *ChannelOwner) dispose() []*ChannelOwner {
	var disposed []*ChannelOwner
	for _, child := range o.Children() {
		disposed = append(disposed, child.dispose()...)
	}

	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return disposed
	}
	o.disposed = true
	parent := o.parent
	o.children = make(map[string]*ChannelOwner)
	o.mu.Unlock()

	if parent != nil {
		parent.removeChild(o.guid)
	}
	o.failWaiters(fmt.Errorf("%s %s: %w", o.typ, o.guid, ErrObjectDisposed))
	if d, ok := o.object.(Disposer); ok {
		d.OnDispose()
	}

	return append(disposed, o)
}
