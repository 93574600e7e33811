// Package pwire is a client for the Playwright driver protocol.
//
// It starts the driver, speaks its framed JSON protocol over stdio and exposes the
// remote objects as typed Go values. Every frame can be traced and inspected live
// through an HTTP handler.
package pwire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	slogmulti "github.com/samber/slog-multi"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/driver"
	"github.com/networkteam/pwire/inspector"
	"github.com/networkteam/pwire/trace"
	"github.com/networkteam/pwire/transport"
)

const (
	// DefaultTraceCapacity is the number of protocol frames kept for the inspector.
	DefaultTraceCapacity = 1000
	// DefaultLogCapacity is the number of client log records kept for the inspector.
	DefaultLogCapacity = 1000
	// DefaultSDKLanguage is announced in the initialize handshake.
	DefaultSDKLanguage = "javascript"
)

// Instance is a connected Playwright driver.
type Instance struct {
	driver     *driver.Driver
	conn       *connection.Connection
	playwright *Playwright

	trace *trace.Collector
	logs  *trace.LogCollector

	logger *slog.Logger
}

type Options struct {
	// Driver configures the driver process.
	// Default: nil, will use driver.OptionsFromEnv()
	Driver *driver.Options

	// Logger receives client logs. It is fanned out to the log collector of the inspector.
	// Default: nil, will use slog.Default()
	Logger *slog.Logger

	// TraceCapacity is the maximum number of protocol frames to keep.
	// Default: 0, will use DefaultTraceCapacity
	TraceCapacity uint64
	// TraceOptions are the options for the frame collector.
	// Default: nil, will use trace.DefaultOptions()
	TraceOptions *trace.Options

	// LogCapacity is the maximum number of client log records to keep.
	// Default: 0, will use DefaultLogCapacity
	LogCapacity uint64

	// SDKLanguage is announced to the driver.
	// Default: DefaultSDKLanguage
	SDKLanguage string
	// Registry maps remote object types to factories.
	// Default: nil, will use connection.DefaultRegistry
	Registry *connection.Registry
	// Transport are the options for the framed stdio transport.
	// Default: nil, will use transport.DefaultOptions()
	Transport *transport.Options

	// DefaultTimeout is inherited by all browsers, contexts and pages.
	// Default: 0, will use DefaultTimeout
	DefaultTimeout time.Duration
}

// Run starts the driver and connects to it with default options.
func Run(ctx context.Context) (*Instance, error) {
	return RunWithOptions(ctx, Options{})
}

// RunWithOptions starts the driver and connects to it.
func RunWithOptions(ctx context.Context, options Options) (*Instance, error) {
	driverOptions := driver.OptionsFromEnv()
	if options.Driver != nil {
		driverOptions = *options.Driver
	}
	if driverOptions.Logger == nil {
		driverOptions.Logger = options.Logger
	}

	d := driver.New(driverOptions)
	if err := d.Start(ctx); err != nil {
		return nil, err
	}
	stdout, err := d.Stdout()
	if err != nil {
		_ = d.Stop()
		return nil, err
	}
	stdin, err := d.Stdin()
	if err != nil {
		_ = d.Stop()
		return nil, err
	}

	return connect(ctx, stdout, stdin, options, d)
}

// Connect speaks the protocol over the streams of an already running driver:
// r is its stdout, w its stdin.
func Connect(ctx context.Context, r io.Reader, w io.WriteCloser, options Options) (*Instance, error) {
	return connect(ctx, r, w, options, nil)
}

func connect(ctx context.Context, r io.Reader, w io.WriteCloser, options Options, d *driver.Driver) (*Instance, error) {
	traceCapacity := options.TraceCapacity
	if traceCapacity == 0 {
		traceCapacity = DefaultTraceCapacity
	}
	traceOptions := trace.DefaultOptions()
	if options.TraceOptions != nil {
		traceOptions = *options.TraceOptions
	}
	logCapacity := options.LogCapacity
	if logCapacity == 0 {
		logCapacity = DefaultLogCapacity
	}
	baseLogger := options.Logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	i := &Instance{
		driver: d,
		trace:  trace.NewCollectorWithOptions(traceCapacity, traceOptions),
		logs:   trace.NewLogCollector(logCapacity),
	}
	i.logger = slog.New(
		slogmulti.Fanout(
			baseLogger.Handler(),
			trace.NewLogHandler(i.logs, slog.LevelDebug),
		),
	)

	i.conn = connection.NewWithOptions(r, w, connection.Options{
		Logger:    i.logger,
		Registry:  options.Registry,
		Observer:  i.trace,
		Transport: options.Transport,
	})
	if d != nil {
		go i.watchDriver()
	}

	sdkLanguage := options.SDKLanguage
	if sdkLanguage == "" {
		sdkLanguage = DefaultSDKLanguage
	}
	obj, err := i.conn.Initialize(ctx, sdkLanguage)
	if err != nil {
		i.Close()
		return nil, fmt.Errorf("initializing connection: %w", i.withDriverError(err))
	}
	pw, ok := obj.(*Playwright)
	if !ok {
		i.Close()
		return nil, fmt.Errorf("initializing connection: got %T instead of *Playwright, is the registry missing pwire.Register?", obj)
	}
	i.playwright = pw
	if options.DefaultTimeout > 0 {
		pw.Timeouts().SetDefaultTimeout(options.DefaultTimeout)
	}

	i.logger.Debug("Connected to driver",
		slog.Int("objects", len(i.conn.Objects())),
		slog.String("sdkLanguage", sdkLanguage),
	)

	return i, nil
}

// watchDriver closes the connection when the driver process exits.
func (i *Instance) watchDriver() {
	select {
	case <-i.driver.Exited():
		_ = i.conn.Close()
	case <-i.conn.Done():
	}
}

func (i *Instance) withDriverError(err error) error {
	if i.driver == nil {
		return err
	}
	if exitErr := i.driver.ExitErr(); exitErr != nil {
		return fmt.Errorf("%w: %w", err, exitErr)
	}
	return err
}

// Playwright returns the root object of the driver.
func (i *Instance) Playwright() *Playwright {
	return i.playwright
}

func (i *Instance) Chromium() *BrowserType {
	return i.playwright.Chromium()
}

func (i *Instance) Firefox() *BrowserType {
	return i.playwright.Firefox()
}

func (i *Instance) WebKit() *BrowserType {
	return i.playwright.WebKit()
}

// Connection returns the underlying protocol connection.
func (i *Instance) Connection() *connection.Connection {
	return i.conn
}

// Trace returns the collector of protocol frames.
func (i *Instance) Trace() *trace.Collector {
	return i.trace
}

// Logs returns the collector of client log records.
func (i *Instance) Logs() *trace.LogCollector {
	return i.logs
}

// Logger returns the logger used by the connection, fanned out to the log collector.
func (i *Instance) Logger() *slog.Logger {
	return i.logger
}

// Err returns why the connection terminated, nil while it is open.
func (i *Instance) Err() error {
	err := i.conn.Err()
	if err == nil {
		return nil
	}
	return i.withDriverError(err)
}

// InspectorHandler returns an http.Handler serving the protocol inspector.
// pathPrefix is where the handler is mounted, e.g. "/_pwire".
func (i *Instance) InspectorHandler(pathPrefix string, opts ...inspector.HandlerOption) http.Handler {
	return inspector.NewHandler(
		inspector.Sources{
			Frames:  i.trace,
			Logs:    i.logs,
			Objects: i.conn,
		},
		append([]inspector.HandlerOption{inspector.WithPathPrefix(pathPrefix)}, opts...)...,
	)
}

// Close closes the connection and stops the driver.
func (i *Instance) Close() {
	// Stop first so the driver exit is not reported as unexpected.
	if i.driver != nil {
		if err := i.driver.Stop(); err != nil {
			i.logger.Warn("Stopping driver failed", slog.Any("error", err))
		}
	}
	_ = i.conn.Close()
	i.trace.Close()
	i.logs.Close()
}
