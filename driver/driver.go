// Package driver starts and supervises the Playwright driver process.
package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/networkteam/pwire/trace"
)

var (
	// ErrNotStarted is returned when the driver streams are requested before Start.
	ErrNotStarted = errors.New("driver not started")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("driver already started")
)

// ExitError reports an exit of the driver process together with the last lines it wrote to stderr.
type ExitError struct {
	Err    error
	Stderr []string
}

func (e *ExitError) Error() string {
	var sb strings.Builder
	sb.WriteString("driver exited")
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if len(e.Stderr) > 0 {
		sb.WriteString("\nstderr:\n")
		sb.WriteString(strings.Join(e.Stderr, "\n"))
	}
	return sb.String()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Driver is a running (or not yet started) Playwright driver process.
type Driver struct {
	options Options
	logger  *slog.Logger

	stderrTail *trace.Ring[string]

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stopped bool

	exited  chan struct{}
	exitErr error
}

// New creates a driver with the given options. Zero values are filled from DefaultOptions.
func New(options Options) *Driver {
	defaults := DefaultOptions()
	if options.StderrTail == 0 {
		options.StderrTail = defaults.StderrTail
	}
	if options.StopTimeout == 0 {
		options.StopTimeout = defaults.StopTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{
		options:    options,
		logger:     logger.With(slog.String("component", "pwire.driver")),
		stderrTail: trace.NewRing[string](options.StderrTail),
		exited:     make(chan struct{}),
	}
}

// Start launches the driver process. The driver is installed through playwright-go first
// unless explicit node and cli.js paths are configured.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd, err := d.command(ctx)
	if err != nil {
		return err
	}
	cmd.Env = d.Environment()
	cmd.Stderr = &lineWriter{onLine: d.stderrLine}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	// The read end stays ours so no buffered output is lost when Wait returns.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW

	if err := cmd.Start(); err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return fmt.Errorf("starting driver: %w", err)
	}
	_ = stdoutW.Close()

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = stdoutR

	d.logger.Debug("Started driver", slog.String("path", cmd.Path), slog.Int("pid", cmd.Process.Pid))

	go d.wait()

	return nil
}

func (d *Driver) command(ctx context.Context) (*exec.Cmd, error) {
	if d.options.NodePath != "" && d.options.CLIPath != "" {
		return exec.Command(d.options.NodePath, d.options.CLIPath, "run-driver"), nil
	}

	runOptions := &playwright.RunOptions{
		DriverDirectory:     d.options.DriverDirectory,
		SkipInstallBrowsers: d.options.SkipBrowserDownload,
		Browsers:            d.options.Browsers,
		Stdout:              io.Discard,
		Stderr:              d.stderrWriter(),
	}
	if !d.options.SkipInstall {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := playwright.Install(runOptions); err != nil {
			return nil, fmt.Errorf("installing driver: %w", err)
		}
	}
	pw, err := playwright.NewDriver(runOptions)
	if err != nil {
		return nil, fmt.Errorf("locating driver: %w", err)
	}
	return pw.Command("run-driver"), nil
}

// Environment returns the environment of the driver process.
func (d *Driver) Environment() []string {
	env := append(os.Environ(),
		"PW_LANG_NAME=go",
		"PW_LANG_NAME_VERSION="+strings.TrimPrefix(runtime.Version(), "go"),
	)
	if d.options.SkipBrowserDownload {
		env = append(env, "PLAYWRIGHT_SKIP_BROWSER_DOWNLOAD=1")
	}
	if d.options.BrowsersPath != "" {
		env = append(env, "PLAYWRIGHT_BROWSERS_PATH="+d.options.BrowsersPath)
	}
	if d.options.DownloadHost != "" {
		env = append(env, "PLAYWRIGHT_DOWNLOAD_HOST="+d.options.DownloadHost)
	}
	return append(env, d.options.Env...)
}

// Stdin returns the stream the client writes frames to.
func (d *Driver) Stdin() (io.WriteCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil {
		return nil, ErrNotStarted
	}
	return d.stdin, nil
}

// Stdout returns the stream the client reads frames from.
func (d *Driver) Stdout() (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil {
		return nil, ErrNotStarted
	}
	return d.stdout, nil
}

// Stop closes the driver's stdin and waits for it to exit, killing it after StopTimeout.
// It is safe to call more than once.
func (d *Driver) Stop() error {
	d.mu.Lock()
	if d.cmd == nil || d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	cmd := d.cmd
	stdin := d.stdin
	d.mu.Unlock()

	_ = stdin.Close()

	select {
	case <-d.exited:
	case <-time.After(d.options.StopTimeout):
		d.logger.Warn("Driver did not exit, killing it", slog.Int("pid", cmd.Process.Pid))
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("killing driver: %w", err)
		}
		<-d.exited
	}

	return nil
}

// Exited is closed when the driver process has exited.
func (d *Driver) Exited() <-chan struct{} {
	return d.exited
}

// ExitErr returns why the driver exited. It is nil while the driver runs and after a requested Stop.
func (d *Driver) ExitErr() error {
	select {
	case <-d.exited:
	default:
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exitErr
}

// IsRunning reports whether the process was started and has not exited.
func (d *Driver) IsRunning() bool {
	d.mu.Lock()
	started := d.cmd != nil
	d.mu.Unlock()
	if !started {
		return false
	}

	select {
	case <-d.exited:
		return false
	default:
		return true
	}
}

// StderrTail returns the last lines the driver wrote to stderr.
func (d *Driver) StderrTail() []string {
	return d.stderrTail.Last(d.stderrTail.Cap())
}

func (d *Driver) wait() {
	err := d.cmd.Wait()

	d.mu.Lock()
	if !d.stopped {
		d.exitErr = &ExitError{Err: err, Stderr: d.StderrTail()}
		d.logger.Error("Driver exited unexpectedly", slog.Any("error", err))
	} else {
		d.logger.Debug("Driver stopped")
	}
	d.mu.Unlock()

	close(d.exited)
}

func (d *Driver) stderrLine(line string) {
	d.stderrTail.Add(line)
	if d.options.Stderr != nil {
		_, _ = fmt.Fprintln(d.options.Stderr, line)
	}
}

func (d *Driver) stderrWriter() io.Writer {
	if d.options.Stderr != nil {
		return d.options.Stderr
	}
	return io.Discard
}

// lineWriter splits written bytes into lines.
type lineWriter struct {
	onLine func(string)
	buf    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line, keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.onLine(strings.TrimRight(line, "\r\n"))
	}
}
