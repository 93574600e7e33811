package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Send after the transport was closed.
var ErrClosed = errors.New("transport closed")

// Options configures a Transport.
type Options struct {
	// InboundQueueSize is the number of decoded frames buffered for Poll/Receive.
	InboundQueueSize int
	// OutboundQueueSize is the number of frames buffered for the writer.
	OutboundQueueSize int
	// MaxFrameSize is the largest accepted inbound frame in bytes. 0 means no limit.
	MaxFrameSize uint32
	// Logger receives I/O failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default transport options.
func DefaultOptions() Options {
	return Options{
		InboundQueueSize:  64,
		OutboundQueueSize: 64,
		MaxFrameSize:      256 << 20,
	}
}

// Transport moves frames over a pair of byte streams, typically the stdout and stdin of the driver.
//
// One goroutine reads frames into a bounded inbound queue, another drains a bounded
// outbound queue. Both preserve FIFO order.
type Transport struct {
	r io.Reader
	w io.WriteCloser

	in  chan []byte
	out chan []byte

	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	errOnce   sync.Once
	mu        sync.RWMutex
	err       error
}

// New creates a transport with default options and starts its goroutines.
func New(r io.Reader, w io.WriteCloser) *Transport {
	return NewWithOptions(r, w, DefaultOptions())
}

// NewWithOptions creates a transport with the specified options and starts its goroutines.
func NewWithOptions(r io.Reader, w io.WriteCloser, options Options) *Transport {
	defaults := DefaultOptions()
	if options.InboundQueueSize <= 0 {
		options.InboundQueueSize = defaults.InboundQueueSize
	}
	if options.OutboundQueueSize <= 0 {
		options.OutboundQueueSize = defaults.OutboundQueueSize
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Transport{
		r:      r,
		w:      w,
		in:     make(chan []byte, options.InboundQueueSize),
		out:    make(chan []byte, options.OutboundQueueSize),
		logger: logger.With("component", "pwire.transport"),
		done:   make(chan struct{}),
	}

	go t.readLoop(options.MaxFrameSize)
	go t.writeLoop()

	return t
}

// Send enqueues a frame for delivery. It blocks while the outbound queue is full.
func (t *Transport) Send(payload []byte) error {
	select {
	case <-t.done:
		return t.closedErr()
	default:
	}
	select {
	case t.out <- payload:
		return nil
	case <-t.done:
		return t.closedErr()
	}
}

// Poll returns the next inbound frame. It returns nil, nil if no frame arrived within timeout,
// and the terminal error once the transport is done and the queue is drained.
func (t *Transport) Poll(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload, ok := <-t.in:
		if !ok {
			return nil, t.closedErr()
		}
		return payload, nil
	case <-timer.C:
		return nil, nil
	case <-t.done:
		return t.drain()
	}
}

// Receive blocks until the next inbound frame, ctx is done or the transport terminated.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case payload, ok := <-t.in:
		if !ok {
			return nil, t.closedErr()
		}
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return t.drain()
	}
}

// drain returns a frame that was queued before termination, otherwise the terminal error.
// The reader may still be blocked when the input stream cannot be closed.
func (t *Transport) drain() ([]byte, error) {
	select {
	case payload, ok := <-t.in:
		if ok {
			return payload, nil
		}
	default:
	}
	return nil, t.closedErr()
}

// Done is closed when the transport terminated, either by Close or an I/O failure.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns the cause of termination, or nil while the transport is running.
// After a regular Close it returns ErrClosed.
func (t *Transport) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Close stops both goroutines and closes the streams. It is safe to call multiple times.
func (t *Transport) Close() error {
	t.terminate(ErrClosed)
	return nil
}

func (t *Transport) closedErr() error {
	if err := t.Err(); err != nil && !errors.Is(err, ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return ErrClosed
}

func (t *Transport) terminate(cause error) {
	t.errOnce.Do(func() {
		t.mu.Lock()
		t.err = cause
		t.mu.Unlock()
	})
	t.closeOnce.Do(func() {
		close(t.done)
		if err := t.w.Close(); err != nil {
			t.logger.Debug("Closing output stream failed", slog.Any("error", err))
		}
		if c, ok := t.r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				t.logger.Debug("Closing input stream failed", slog.Any("error", err))
			}
		}
	})
}

func (t *Transport) readLoop(maxFrameSize uint32) {
	defer close(t.in)

	reader := bufio.NewReader(t.r)
	for {
		payload, err := ReadFrame(reader, maxFrameSize)
		if err != nil {
			select {
			case <-t.done:
				// Closed locally, read errors are expected.
			default:
				if errors.Is(err, io.EOF) {
					t.logger.Debug("Driver closed the connection")
				} else {
					t.logger.Error("Reading frame failed", slog.Any("error", err))
				}
				t.terminate(fmt.Errorf("reading frame: %w", err))
			}
			return
		}

		select {
		case t.in <- payload:
		case <-t.done:
			return
		}
	}
}

func (t *Transport) writeLoop() {
	writer := bufio.NewWriter(t.w)
	for {
		select {
		case payload := <-t.out:
			err := WriteFrame(writer, payload)
			// Flush only when nothing else is queued.
			if err == nil && len(t.out) == 0 {
				err = writer.Flush()
			}
			if err != nil {
				t.failWrite(err)
				return
			}
		case <-t.done:
			return
		}
	}
}

func (t *Transport) failWrite(err error) {
	select {
	case <-t.done:
		return
	default:
	}
	t.logger.Error("Writing frame failed", slog.Any("error", err))
	t.terminate(fmt.Errorf("writing frame: %w", err))
}
