// Package drivertest provides an in-process fake driver speaking the framed protocol.
package drivertest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/networkteam/pwire/protocol"
	"github.com/networkteam/pwire/transport"
)

// HandlerFunc answers a call automatically. A returned error is sent as an error response.
type HandlerFunc func(call *protocol.Message) (result any, err error)

// Error is a driver error with a name, e.g. TimeoutError.
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	return e.Name + ": " + e.Message
}

// Driver is the driver side of a connection.
type Driver struct {
	t         testing.TB
	transport *transport.Transport

	clientReader io.Reader
	clientWriter io.WriteCloser

	calls chan *protocol.Message

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	// Timeout bounds Expect and NextCall.
	Timeout time.Duration
}

// New creates a fake driver. The client side streams are returned by ClientStreams.
func New(t testing.TB) *Driver {
	t.Helper()

	driverReader, clientWriter := io.Pipe()
	clientReader, driverWriter := io.Pipe()

	d := &Driver{
		t:            t,
		transport:    transport.New(driverReader, driverWriter),
		clientReader: clientReader,
		clientWriter: clientWriter,
		calls:        make(chan *protocol.Message, 1000),
		handlers:     make(map[string]HandlerFunc),
		Timeout:      2 * time.Second,
	}

	go d.readLoop()

	t.Cleanup(func() {
		_ = d.transport.Close()
	})

	return d
}

// ClientStreams returns the streams a client connection reads from and writes to.
func (d *Driver) ClientStreams() (io.Reader, io.WriteCloser) {
	return d.clientReader, d.clientWriter
}

func (d *Driver) readLoop() {
	defer close(d.calls)
	for {
		payload, err := d.transport.Receive(context.Background())
		if err != nil {
			return
		}
		msg, err := protocol.Decode(payload)
		if err != nil {
			d.t.Errorf("fake driver received malformed frame: %v", err)
			return
		}

		d.mu.RLock()
		handler, ok := d.handlers[msg.Method]
		d.mu.RUnlock()
		if !ok {
			d.calls <- msg
			continue
		}

		result, err := handler(msg)
		if err != nil {
			payload := &protocol.ErrorPayload{Name: "Error", Message: err.Error()}
			var driverErr *Error
			if errors.As(err, &driverErr) {
				payload = &protocol.ErrorPayload{Name: driverErr.Name, Message: driverErr.Message}
			}
			d.send(&protocol.Message{ID: msg.ID, Error: payload})
			continue
		}
		d.Respond(msg, result)
	}
}

// Handle answers every call of method with fn instead of queueing it for Expect.
// A nil fn removes the handler again.
func (d *Driver) Handle(method string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fn == nil {
		delete(d.handlers, method)
		return
	}
	d.handlers[method] = fn
}

// NextCall returns the next unhandled call. It fails the test on timeout.
func (d *Driver) NextCall() *protocol.Message {
	d.t.Helper()
	select {
	case msg, ok := <-d.calls:
		if !ok {
			d.t.Fatal("fake driver closed while waiting for a call")
		}
		return msg
	case <-time.After(d.Timeout):
		d.t.Fatal("timed out waiting for a call")
	}
	return nil
}

// Expect returns the next unhandled call and fails the test if its method differs.
func (d *Driver) Expect(method string) *protocol.Message {
	d.t.Helper()
	msg := d.NextCall()
	if msg.Method != method {
		d.t.Fatalf("expected call %q, got %q (guid %q)", method, msg.Method, msg.GUID)
	}
	return msg
}

// Respond sends a successful response to call.
func (d *Driver) Respond(call *protocol.Message, result any) {
	d.t.Helper()
	raw := json.RawMessage(`{}`)
	if result != nil {
		raw = d.marshal(result)
	}
	d.send(&protocol.Message{ID: call.ID, Result: raw})
}

// RespondError sends an error response to call.
func (d *Driver) RespondError(call *protocol.Message, name, message string, log ...string) {
	d.send(&protocol.Message{
		ID:    call.ID,
		Error: &protocol.ErrorPayload{Name: name, Message: message},
		Log:   log,
	})
}

// Create announces a new remote object under parent.
func (d *Driver) Create(parent, typ, guid string, initializer any) {
	d.t.Helper()
	if initializer == nil {
		initializer = map[string]any{}
	}
	d.Event(parent, protocol.MethodCreate, map[string]any{
		"type":        typ,
		"guid":        guid,
		"initializer": initializer,
	})
}

// Dispose announces the disposal of a remote object.
func (d *Driver) Dispose(guid string) {
	d.Event(guid, protocol.MethodDispose, map[string]any{})
}

// Adopt moves guid under parent.
func (d *Driver) Adopt(parent, guid string) {
	d.Event(parent, protocol.MethodAdopt, map[string]any{"guid": guid})
}

// Event sends an event for guid. Nil params are omitted from the frame.
func (d *Driver) Event(guid, method string, params any) {
	d.t.Helper()
	msg := &protocol.Message{GUID: guid, Method: method}
	if params != nil {
		msg.Params = d.marshal(params)
	}
	d.send(msg)
}

// SendRaw sends payload as one frame. Frames sent after Exit are dropped.
func (d *Driver) SendRaw(payload []byte) {
	_ = d.transport.Send(payload)
}

// Exit simulates the driver process dying.
func (d *Driver) Exit() {
	_ = d.transport.Close()
}

func (d *Driver) send(msg *protocol.Message) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		d.t.Errorf("fake driver cannot encode message: %v", err)
		return
	}
	d.SendRaw(payload)
}

func (d *Driver) marshal(v any) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	raw, err := json.Marshal(v)
	if err != nil {
		d.t.Errorf("fake driver cannot marshal %T: %v", v, err)
		return json.RawMessage(`{}`)
	}
	return raw
}
