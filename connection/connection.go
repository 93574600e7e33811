package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/networkteam/pwire/protocol"
	"github.com/networkteam/pwire/transport"
)

// FrameObserver is notified about every message sent to or received from the driver.
// It is called on the sending goroutine or the dispatcher and must not block.
type FrameObserver interface {
	ObserveFrame(direction protocol.Direction, msg *protocol.Message, payload []byte)
}

// Options configures a Connection.
type Options struct {
	// Logger receives protocol debug logs and failures. Defaults to slog.Default().
	Logger *slog.Logger
	// Registry maps remote object types to factories. Defaults to DefaultRegistry.
	Registry *Registry
	// Observer is notified about every frame. Optional.
	Observer FrameObserver
	// Transport are the options for the underlying transport.
	// Default: nil, will use transport.DefaultOptions()
	Transport *transport.Options
}

// DefaultOptions returns the default connection options.
func DefaultOptions() Options {
	return Options{}
}

// Connection talks to the driver: it correlates calls with responses, keeps the
// registry of remote objects and dispatches events.
//
// A single dispatcher goroutine processes inbound messages. Callers wait on a
// one-shot future per call, listeners run on a separate listener goroutine.
type Connection struct {
	transport *transport.Transport
	logger    *slog.Logger
	registry  *Registry
	observer  FrameObserver

	lastID  atomic.Int64
	pending *pendingCalls

	objectsMu     sync.RWMutex
	objects       map[string]*ChannelOwner
	objectWaiters map[string][]chan struct{}
	root          *ChannelOwner

	callbacks *callbackQueue

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.RWMutex
	err       error
}

// New creates a connection over the driver's stdout (r) and stdin (w) with default options.
func New(r io.Reader, w io.WriteCloser) *Connection {
	return NewWithOptions(r, w, DefaultOptions())
}

// NewWithOptions creates a connection with the specified options.
func NewWithOptions(r io.Reader, w io.WriteCloser, options Options) *Connection {
	transportOptions := transport.DefaultOptions()
	if options.Transport != nil {
		transportOptions = *options.Transport
	}
	if transportOptions.Logger == nil {
		transportOptions.Logger = options.Logger
	}
	return NewWithTransport(transport.NewWithOptions(r, w, transportOptions), options)
}

// NewWithTransport creates a connection over an existing transport and starts dispatching.
func NewWithTransport(t *transport.Transport, options Options) *Connection {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := options.Registry
	if registry == nil {
		registry = DefaultRegistry
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		transport:     t,
		logger:        logger.With("component", "pwire.connection"),
		registry:      registry,
		observer:      options.Observer,
		pending:       newPendingCalls(),
		objects:       make(map[string]*ChannelOwner),
		objectWaiters: make(map[string][]chan struct{}),
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	c.callbacks = newCallbackQueue(c.logger)
	c.root = newChannelOwner(c, nil, "Root", "", nil)
	c.objects[""] = c.root

	go c.dispatchLoop(ctx)

	return c
}

// Logger returns the connection logger.
func (c *Connection) Logger() *slog.Logger {
	return c.logger
}

// Root returns the root object with the empty GUID.
func (c *Connection) Root() *ChannelOwner {
	return c.root
}

// Send calls method on the object with the given GUID and waits for the result.
//
// If ctx is done first, the call is abandoned: its late response is consumed and dropped.
// If the connection terminates, the error wraps ErrConnectionClosed.
func (c *Connection) Send(ctx context.Context, guid, method string, params any) (json.RawMessage, error) {
	cl, err := c.send(guid, method, params, false)
	if err != nil {
		return nil, err
	}

	select {
	case <-cl.done:
		if cl.err != nil {
			return nil, fmt.Errorf("%s: %w", method, cl.err)
		}
		return cl.result, nil
	case <-ctx.Done():
		c.pending.abandon(cl.id)
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

// SendNoWait calls method without waiting for its result.
func (c *Connection) SendNoWait(guid, method string, params any) error {
	_, err := c.send(guid, method, params, true)
	return err
}

func (c *Connection) send(guid, method string, params any, abandoned bool) (*call, error) {
	id := int(c.lastID.Add(1))
	msg, err := protocol.NewCall(id, guid, method, params)
	if err != nil {
		return nil, err
	}
	payload, err := protocol.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}

	cl := &call{
		id:        id,
		guid:      guid,
		method:    method,
		abandoned: abandoned,
		done:      make(chan struct{}),
	}
	if err := c.pending.register(cl); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	c.logger.Debug("Sending message", slog.Int("id", id), slog.String("guid", guid), slog.String("method", method))
	if c.observer != nil {
		c.observer.ObserveFrame(protocol.DirectionSend, msg, payload)
	}

	if err := c.transport.Send(payload); err != nil {
		c.pending.remove(id)
		return nil, fmt.Errorf("%s: %w: %w", method, ErrConnectionClosed, err)
	}
	return cl, nil
}

// Initialize performs the initialize handshake and returns the Playwright object.
func (c *Connection) Initialize(ctx context.Context, sdkLanguage string) (Object, error) {
	result, err := c.Send(ctx, "", "initialize", map[string]string{
		"sdkLanguage": sdkLanguage,
	})
	if err != nil {
		return nil, err
	}
	var ref protocol.ObjectRef
	if err := DecodeField(result, "playwright", &ref); err != nil {
		return nil, err
	}
	if ref.GUID == "" {
		return nil, errors.New("initialize: result has no playwright object")
	}
	obj, ok := c.Object(ref.GUID)
	if !ok {
		return nil, &DesyncError{Reason: "initialize returned unknown object", GUID: ref.GUID}
	}
	return obj, nil
}

// WaitForObjectWithKnownName waits until an object with guid was created.
func (c *Connection) WaitForObjectWithKnownName(ctx context.Context, guid string) (Object, error) {
	c.objectsMu.Lock()
	if owner, ok := c.objects[guid]; ok {
		c.objectsMu.Unlock()
		return owner.object, nil
	}
	ch := make(chan struct{})
	c.objectWaiters[guid] = append(c.objectWaiters[guid], ch)
	c.objectsMu.Unlock()

	select {
	case <-ch:
		obj, ok := c.Object(guid)
		if !ok {
			return nil, fmt.Errorf("waiting for %s: %w", guid, ErrObjectDisposed)
		}
		return obj, nil
	case <-c.done:
		return nil, c.Err()
	case <-ctx.Done():
		c.objectsMu.Lock()
		c.objectWaiters[guid] = lo.Without(c.objectWaiters[guid], ch)
		if len(c.objectWaiters[guid]) == 0 {
			delete(c.objectWaiters, guid)
		}
		c.objectsMu.Unlock()
		return nil, ctx.Err()
	}
}

// Object returns the typed proxy registered under guid.
func (c *Connection) Object(guid string) (Object, bool) {
	c.objectsMu.RLock()
	defer c.objectsMu.RUnlock()
	owner, ok := c.objects[guid]
	if !ok {
		return nil, false
	}
	return owner.object, true
}

// ObjectInfo describes one registered object.
type ObjectInfo struct {
	GUID     string `json:"guid"`
	Type     string `json:"type"`
	Parent   string `json:"parent"`
	Children int    `json:"children"`
}

// Objects returns a snapshot of the registry sorted by GUID.
func (c *Connection) Objects() []ObjectInfo {
	c.objectsMu.RLock()
	owners := lo.Values(c.objects)
	c.objectsMu.RUnlock()

	infos := lo.Map(owners, func(o *ChannelOwner, _ int) ObjectInfo {
		info := ObjectInfo{GUID: o.guid, Type: o.typ, Children: len(o.Children())}
		if parent := o.Parent(); parent != nil {
			info.Parent = parent.guid
		}
		return info
	})
	slices.SortFunc(infos, func(a, b ObjectInfo) int {
		switch {
		case a.GUID < b.GUID:
			return -1
		case a.GUID > b.GUID:
			return 1
		}
		return 0
	})
	return infos
}

// PendingCalls returns the number of calls waiting for a response.
func (c *Connection) PendingCalls() int {
	return c.pending.len()
}

// Done is closed when the connection terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns the termination cause, or nil while the connection is alive.
func (c *Connection) Err() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

// Close terminates the connection. Pending calls fail with ErrConnectionClosed.
func (c *Connection) Close() error {
	c.fail(ErrConnectionClosed)
	return nil
}

func (c *Connection) fail(cause error) {
	c.closeOnce.Do(func() {
		err := cause
		if !errors.Is(err, ErrConnectionClosed) {
			err = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
		}

		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()

		close(c.done)
		c.cancel()
		_ = c.transport.Close()

		c.pending.failAll(err)

		c.objectsMu.RLock()
		owners := lo.Values(c.objects)
		c.objectsMu.RUnlock()
		for _, o := range owners {
			o.failWaiters(err)
		}

		c.callbacks.close()
	})
}

func (c *Connection) dispatchLoop(ctx context.Context) {
	for {
		payload, err := c.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("Transport terminated", slog.Any("error", err))
			}
			c.fail(err)
			return
		}
		if err := c.dispatch(payload); err != nil {
			c.logger.Error("Dispatching message failed", slog.Any("error", err))
			c.fail(err)
			return
		}
	}
}

func (c *Connection) dispatch(payload []byte) error {
	msg, err := protocol.Decode(payload)
	if err != nil {
		return &DesyncError{Reason: "malformed frame", Err: err}
	}
	if c.observer != nil {
		c.observer.ObserveFrame(protocol.DirectionReceive, msg, payload)
	}

	if msg.IsResponse() {
		c.logger.Debug("Received response", slog.Int("id", msg.ID), slog.Bool("error", msg.Error != nil))
		cl, ok := c.pending.complete(msg)
		if !ok {
			return &DesyncError{Reason: "response for unknown call", ID: msg.ID}
		}
		if cl.abandoned && cl.err != nil {
			c.logger.Debug("Abandoned call failed", slog.String("method", cl.method), slog.Any("error", cl.err))
		}
		return nil
	}

	c.logger.Debug("Received event", slog.String("guid", msg.GUID), slog.String("method", msg.Method))

	switch msg.Method {
	case protocol.MethodCreate:
		return c.handleCreate(msg)
	case protocol.MethodAdopt:
		return c.handleAdopt(msg)
	case protocol.MethodDispose:
		return c.handleDispose(msg)
	}

	owner, err := c.lookup(msg.GUID, msg.Method)
	if err != nil {
		return err
	}
	params := msg.ParamsOrEmpty()
	if h, ok := owner.object.(EventHandler); ok {
		h.OnEvent(msg.Method, params)
	} else {
		owner.Emit(msg.Method, params)
	}
	owner.resolveWaiters(msg.Method, params)
	return nil
}

func (c *Connection) lookup(guid, method string) (*ChannelOwner, error) {
	c.objectsMu.RLock()
	owner, ok := c.objects[guid]
	c.objectsMu.RUnlock()
	if !ok {
		return nil, &DesyncError{Reason: "message for unknown object " + method, GUID: guid}
	}
	return owner, nil
}

func (c *Connection) handleCreate(msg *protocol.Message) error {
	var params protocol.CreateParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return &DesyncError{Reason: "malformed __create__", GUID: msg.GUID, Err: err}
	}
	parent, err := c.lookup(msg.GUID, msg.Method)
	if err != nil {
		return err
	}

	c.objectsMu.RLock()
	_, exists := c.objects[params.GUID]
	c.objectsMu.RUnlock()
	if exists {
		return &DesyncError{Reason: "duplicate object", GUID: params.GUID}
	}

	owner := newChannelOwner(c, parent, params.Type, params.GUID, params.Initializer)
	if factory, ok := c.registry.Lookup(params.Type); ok {
		obj, err := factory(owner)
		if err != nil {
			parent.removeChild(owner.guid)
			return &DesyncError{Reason: "creating " + params.Type, GUID: params.GUID, Err: err}
		}
		owner.object = obj
	} else {
		c.logger.Debug("Unknown object type, using generic proxy", slog.String("type", params.Type), slog.String("guid", params.GUID))
	}

	c.objectsMu.Lock()
	c.objects[owner.guid] = owner
	waiters := c.objectWaiters[owner.guid]
	delete(c.objectWaiters, owner.guid)
	c.objectsMu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	return nil
}

func (c *Connection) handleAdopt(msg *protocol.Message) error {
	var params protocol.AdoptParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return &DesyncError{Reason: "malformed __adopt__", GUID: msg.GUID, Err: err}
	}
	parent, err := c.lookup(msg.GUID, msg.Method)
	if err != nil {
		return err
	}
	child, err := c.lookup(params.GUID, msg.Method)
	if err != nil {
		return err
	}
	child.adopt(parent)
	return nil
}

func (c *Connection) handleDispose(msg *protocol.Message) error {
	owner, err := c.lookup(msg.GUID, msg.Method)
	if err != nil {
		return err
	}
	if owner == c.root {
		return &DesyncError{Reason: "dispose of root object", GUID: msg.GUID}
	}

	disposed := owner.dispose()

	c.objectsMu.Lock()
	for _, o := range disposed {
		delete(c.objects, o.guid)
	}
	c.objectsMu.Unlock()
	return nil
}
