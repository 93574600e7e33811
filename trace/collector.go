package trace

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/networkteam/pwire/protocol"
)

// Frame is one traced protocol message.
type Frame struct {
	ID        uuid.UUID
	Direction protocol.Direction
	Time      time.Time

	// CallID is the correlation id of calls and responses, 0 for events.
	CallID int
	GUID   string
	Method string
	// Error is the driver error message of a failed response.
	Error string
	// Duration is the time between a call and its response.
	Duration time.Duration

	Payload *Payload
}

// Identity implements Identifiable.
func (f Frame) Identity() uuid.UUID {
	return f.ID
}

// IsResponse reports whether the frame answers a call.
func (f Frame) IsResponse() bool {
	return f.Direction == protocol.DirectionReceive && f.CallID != 0
}

// Options configures a Collector.
type Options struct {
	// MaxPayloadSize is the maximum number of payload bytes kept per frame. 0 keeps everything.
	MaxPayloadSize int
	// NotifierOptions are options for notification about new frames.
	// Default: nil, will use DefaultNotifierOptions()
	NotifierOptions *NotifierOptions
}

// DefaultOptions returns the default collector options.
func DefaultOptions() Options {
	return Options{
		MaxPayloadSize: 64 << 10,
	}
}

type sentCall struct {
	guid   string
	method string
	time   time.Time
}

// Collector records the protocol traffic of a connection.
// It implements connection.FrameObserver.
type Collector struct {
	frames   *LookupRing[Frame, uuid.UUID]
	notifier *Notifier[Frame]
	options  Options

	mu sync.Mutex
	// calls awaiting a response, at most as many as frames are kept.
	calls map[int]sentCall
}

// NewCollector creates a collector keeping capacity frames with default options.
func NewCollector(capacity uint64) *Collector {
	return NewCollectorWithOptions(capacity, DefaultOptions())
}

// NewCollectorWithOptions creates a collector with the specified options.
func NewCollectorWithOptions(capacity uint64, options Options) *Collector {
	notifierOptions := DefaultNotifierOptions()
	if options.NotifierOptions != nil {
		notifierOptions = *options.NotifierOptions
	}

	return &Collector{
		frames:   NewLookupRing[Frame, uuid.UUID](capacity),
		notifier: NewNotifierWithOptions[Frame](notifierOptions),
		options:  options,
		calls:    make(map[int]sentCall),
	}
}

// ObserveFrame records a message. Responses are annotated with the GUID and method of their call.
func (c *Collector) ObserveFrame(direction protocol.Direction, msg *protocol.Message, payload []byte) {
	now := time.Now()
	frame := Frame{
		ID:        uuid.Must(uuid.NewV7()),
		Direction: direction,
		Time:      now,
		CallID:    msg.ID,
		GUID:      msg.GUID,
		Method:    msg.Method,
		Payload:   NewPayload(payload, c.options.MaxPayloadSize),
	}

	c.mu.Lock()
	switch {
	case direction == protocol.DirectionSend && msg.ID != 0:
		if uint64(len(c.calls)) >= c.frames.Cap() {
			c.evictOldestCall()
		}
		c.calls[msg.ID] = sentCall{guid: msg.GUID, method: msg.Method, time: now}
	case direction == protocol.DirectionReceive && msg.ID != 0:
		if call, ok := c.calls[msg.ID]; ok {
			delete(c.calls, msg.ID)
			frame.GUID = call.guid
			frame.Method = call.method
			frame.Duration = now.Sub(call.time)
		}
	}
	c.mu.Unlock()

	if msg.Error != nil {
		frame.Error = msg.Error.Message
	}

	c.frames.Add(frame)
	c.notifier.Notify(frame)
}

// evictOldestCall forgets the call with the lowest id. Its response is no longer annotated.
func (c *Collector) evictOldestCall() {
	oldest := -1
	for id := range c.calls {
		if oldest == -1 || id < oldest {
			oldest = id
		}
	}
	delete(c.calls, oldest)
}

// Tail returns up to n of the most recent frames, oldest first.
func (c *Collector) Tail(n int) []Frame {
	return c.frames.Last(uint64(n))
}

// Lookup returns a frame by id if it is still held.
func (c *Collector) Lookup(id uuid.UUID) (Frame, bool) {
	return c.frames.Lookup(id)
}

// Subscribe returns a channel receiving newly traced frames.
func (c *Collector) Subscribe(ctx context.Context) <-chan Frame {
	return c.notifier.Subscribe(ctx)
}

// Clear drops all traced frames.
func (c *Collector) Clear() {
	c.frames.Clear()
	c.mu.Lock()
	clear(c.calls)
	c.mu.Unlock()
}

// Dropped returns how many frames live subscribers missed.
func (c *Collector) Dropped() uint64 {
	return c.notifier.Dropped()
}

// Close releases resources used by the collector. Calls without a response are forgotten.
func (c *Collector) Close() {
	c.mu.Lock()
	clear(c.calls)
	c.mu.Unlock()
	c.notifier.Close()
}
