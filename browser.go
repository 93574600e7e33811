package pwire

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/protocol"
)

// Browser is a launched browser instance.
type Browser struct {
	channel     *connection.ChannelOwner
	timeouts    *TimeoutSettings
	browserType *BrowserType

	name    string
	version string

	mu        sync.Mutex
	contexts  []*BrowserContext
	connected bool
}

func newBrowser(owner *connection.ChannelOwner) (connection.Object, error) {
	var init struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := owner.DecodeInitializer(&init); err != nil {
		return nil, err
	}

	b := &Browser{
		channel:   owner,
		timeouts:  newTimeoutSettings(inheritedTimeouts(owner)),
		name:      init.Name,
		version:   init.Version,
		connected: true,
	}
	if bt, ok := owner.Parent().Object().(*BrowserType); ok {
		b.browserType = bt
	}
	return b, nil
}

func (b *Browser) Channel() *connection.ChannelOwner {
	return b.channel
}

func (b *Browser) timeoutSettings() *TimeoutSettings {
	return b.timeouts
}

func (b *Browser) OnEvent(method string, params json.RawMessage) {
	switch method {
	case "close":
		b.didClose()
	default:
		b.channel.Emit(method, params)
	}
}

func (b *Browser) OnDispose() {
	b.didClose()
}

func (b *Browser) didClose() {
	b.mu.Lock()
	wasConnected := b.connected
	b.connected = false
	b.mu.Unlock()

	if wasConnected {
		b.channel.Emit("disconnected", b)
	}
}

// BrowserType returns the type that launched the browser.
func (b *Browser) BrowserType() *BrowserType {
	return b.browserType
}

// Name returns the browser name, e.g. chromium.
func (b *Browser) Name() string {
	return b.name
}

// Version returns the browser version.
func (b *Browser) Version() string {
	return b.version
}

// IsConnected reports whether the browser is still running.
func (b *Browser) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Contexts returns the open browser contexts.
func (b *Browser) Contexts() []*BrowserContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*BrowserContext(nil), b.contexts...)
}

func (b *Browser) addContext(c *BrowserContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contexts = append(b.contexts, c)
}

func (b *Browser) removeContext(c *BrowserContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contexts = lo.Without(b.contexts, c)
}

// Viewport is a page size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BrowserNewContextOptions configures Browser.NewContext.
type BrowserNewContextOptions struct {
	Viewport          *Viewport
	NoViewport        bool
	UserAgent         string
	Locale            string
	TimezoneID        string
	BaseURL           string
	IgnoreHTTPSErrors bool
	JavaScriptEnabled *bool
	ExtraHTTPHeaders  map[string]string
}

type newContextParams struct {
	Viewport          *Viewport   `json:"viewport,omitempty"`
	NoDefaultViewport bool        `json:"noDefaultViewport,omitempty"`
	UserAgent         string      `json:"userAgent,omitempty"`
	Locale            string      `json:"locale,omitempty"`
	TimezoneID        string      `json:"timezoneId,omitempty"`
	BaseURL           string      `json:"baseURL,omitempty"`
	IgnoreHTTPSErrors bool        `json:"ignoreHTTPSErrors,omitempty"`
	JavaScriptEnabled *bool       `json:"javaScriptEnabled,omitempty"`
	ExtraHTTPHeaders  []nameValue `json:"extraHTTPHeaders,omitempty"`
}

// NewContext creates an isolated browser context.
func (b *Browser) NewContext(ctx context.Context, options BrowserNewContextOptions) (*BrowserContext, error) {
	params := newContextParams{
		Viewport:          options.Viewport,
		NoDefaultViewport: options.NoViewport,
		UserAgent:         options.UserAgent,
		Locale:            options.Locale,
		TimezoneID:        options.TimezoneID,
		BaseURL:           options.BaseURL,
		IgnoreHTTPSErrors: options.IgnoreHTTPSErrors,
		JavaScriptEnabled: options.JavaScriptEnabled,
		ExtraHTTPHeaders:  toNameValues(options.ExtraHTTPHeaders),
	}
	bc, err := sendForObject[*BrowserContext](ctx, b.channel, "newContext", params, "context")
	if err != nil {
		return nil, err
	}
	if bc == nil {
		return nil, errNoObject("newContext", "context")
	}
	return bc, nil
}

// NewPage creates a page in a new context. Closing the page closes the context.
func (b *Browser) NewPage(ctx context.Context, options BrowserNewContextOptions) (*Page, error) {
	bc, err := b.NewContext(ctx, options)
	if err != nil {
		return nil, err
	}
	page, err := bc.NewPage(ctx)
	if err != nil {
		_ = bc.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	page.setOwnedContext(bc)
	return page, nil
}

// Close closes all contexts and the browser. Closing a disconnected browser is a no-op.
func (b *Browser) Close(ctx context.Context) error {
	if !b.IsConnected() {
		return nil
	}
	_, err := b.channel.Send(ctx, "close", nil)
	if err != nil && !isClosedError(err) {
		return err
	}
	return nil
}

// OnDisconnected registers fn for when the browser closes or crashes.
func (b *Browser) OnDisconnected(fn func(*Browser)) (remove func()) {
	return b.channel.On("disconnected", func(payload any) {
		fn(payload.(*Browser))
	})
}

// SetDefaultTimeout sets the timeout inherited by new contexts and pages.
func (b *Browser) SetDefaultTimeout(d time.Duration) {
	b.timeouts.SetDefaultTimeout(d)
}

// isClosedError reports errors caused by the target or the connection going away.
func isClosedError(err error) bool {
	return errors.Is(err, protocol.ErrTargetClosed) ||
		errors.Is(err, connection.ErrConnectionClosed) ||
		errors.Is(err, connection.ErrObjectDisposed)
}
