package pwire

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/protocol"
)

// Page is a browser tab.
type Page struct {
	channel   *connection.ChannelOwner
	timeouts  *TimeoutSettings
	context   *BrowserContext
	mainFrame *Frame

	mu           sync.Mutex
	frames       []*Frame
	routes       []*routeHandler
	closed       bool
	ownedContext *BrowserContext
}

func newPage(owner *connection.ChannelOwner) (connection.Object, error) {
	var init struct {
		MainFrame *protocol.ObjectRef `json:"mainFrame"`
		IsClosed  bool                `json:"isClosed"`
	}
	if err := owner.DecodeInitializer(&init); err != nil {
		return nil, err
	}
	mainFrame, err := objectFromRef[*Frame](owner.Connection(), init.MainFrame)
	if err != nil {
		return nil, err
	}
	if mainFrame == nil {
		return nil, errNoObject("Page", "mainFrame")
	}

	p := &Page{
		channel:   owner,
		timeouts:  newTimeoutSettings(inheritedTimeouts(owner)),
		mainFrame: mainFrame,
		frames:    []*Frame{mainFrame},
		closed:    init.IsClosed,
	}
	mainFrame.setPage(p)

	if bc, ok := owner.Parent().Object().(*BrowserContext); ok {
		p.context = bc
		bc.addPage(p)
	}
	return p, nil
}

func (p *Page) Channel() *connection.ChannelOwner {
	return p.channel
}

func (p *Page) timeoutSettings() *TimeoutSettings {
	return p.timeouts
}

func (p *Page) OnEvent(method string, params json.RawMessage) {
	switch method {
	case "close":
		p.didClose()
	case "frameAttached":
		if frame, ok := eventObject[*Frame](p.channel, method, params, "frame"); ok {
			frame.setPage(p)
			p.mu.Lock()
			p.frames = append(p.frames, frame)
			p.mu.Unlock()
			p.channel.Emit("frameattached", frame)
		}
	case "frameDetached":
		if frame, ok := eventObject[*Frame](p.channel, method, params, "frame"); ok {
			frame.setDetached()
			p.mu.Lock()
			p.frames = lo.Without(p.frames, frame)
			p.mu.Unlock()
			p.channel.Emit("framedetached", frame)
		}
	case "route":
		if route, ok := eventObject[*Route](p.channel, method, params, "route"); ok {
			p.channel.Schedule(func() {
				p.handleRoute(route)
			})
		}
	case "console":
		msg, err := consoleMessageFromEvent(p.channel.Connection(), params)
		if err != nil {
			p.channel.Connection().Logger().Warn("Dropping console event", slog.Any("error", err))
			return
		}
		if msg.page == nil {
			msg.page = p
		}
		p.channel.Emit("console", msg)
	case "crash":
		p.channel.Emit("crash", p)
	default:
		p.channel.Emit(method, params)
	}
}

func (p *Page) OnDispose() {
	p.didClose()
}

func (p *Page) didClose() {
	p.mu.Lock()
	wasClosed := p.closed
	p.closed = true
	p.mu.Unlock()
	if wasClosed {
		return
	}

	if p.context != nil {
		p.context.removePage(p)
	}
	p.channel.Emit("close", p)
}

func (p *Page) setOwnedContext(bc *BrowserContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ownedContext = bc
}

func (p *Page) handleRoute(route *Route) {
	p.mu.Lock()
	routes := p.routes
	p.mu.Unlock()

	if runRouteHandlers(routes, route) {
		return
	}
	if p.context != nil {
		p.context.handleRoute(route)
		return
	}
	route.continueFallback()
}

// Context returns the browser context of the page.
func (p *Page) Context() *BrowserContext {
	return p.context
}

// MainFrame returns the top level frame.
func (p *Page) MainFrame() *Frame {
	return p.mainFrame
}

// Frames returns the attached frames, the main frame first.
func (p *Page) Frames() []*Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Frame(nil), p.frames...)
}

// URL returns the URL of the main frame.
func (p *Page) URL() string {
	return p.mainFrame.URL()
}

// IsClosed reports whether the page was closed.
func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SetDefaultTimeout sets the timeout of actions on this page.
func (p *Page) SetDefaultTimeout(d time.Duration) {
	p.timeouts.SetDefaultTimeout(d)
}

// SetDefaultNavigationTimeout sets the timeout of navigations on this page.
func (p *Page) SetDefaultNavigationTimeout(d time.Duration) {
	p.timeouts.SetDefaultNavigationTimeout(d)
}

// Goto navigates the main frame.
func (p *Page) Goto(ctx context.Context, url string, options GotoOptions) (*Response, error) {
	return p.mainFrame.Goto(ctx, url, options)
}

// Reload reloads the page.
func (p *Page) Reload(ctx context.Context, options GotoOptions) (*Response, error) {
	return sendForObject[*Response](ctx, p.channel, "reload", map[string]any{
		"waitUntil": lo.CoalesceOrEmpty(options.WaitUntil, "load"),
		"timeout":   milliseconds(options.Timeout, p.timeouts.NavigationTimeout()),
	}, "response")
}

func (p *Page) Title(ctx context.Context) (string, error) {
	return p.mainFrame.Title(ctx)
}

func (p *Page) Content(ctx context.Context) (string, error) {
	return p.mainFrame.Content(ctx)
}

func (p *Page) SetContent(ctx context.Context, html string, options GotoOptions) error {
	return p.mainFrame.SetContent(ctx, html, options)
}

// Evaluate runs expression in the main frame.
func (p *Page) Evaluate(ctx context.Context, expression string, arg any) (any, error) {
	return p.mainFrame.Evaluate(ctx, expression, arg)
}

// EvaluateHandle runs expression in the main frame and returns a handle to the result.
func (p *Page) EvaluateHandle(ctx context.Context, expression string, arg any) (*JSHandle, error) {
	return p.mainFrame.EvaluateHandle(ctx, expression, arg)
}

func (p *Page) Click(ctx context.Context, selector string, options ClickOptions) error {
	return p.mainFrame.Click(ctx, selector, options)
}

func (p *Page) Fill(ctx context.Context, selector, value string, options FillOptions) error {
	return p.mainFrame.Fill(ctx, selector, value, options)
}

func (p *Page) TextContent(ctx context.Context, selector string) (*string, error) {
	return p.mainFrame.TextContent(ctx, selector)
}

func (p *Page) QuerySelector(ctx context.Context, selector string) (*ElementHandle, error) {
	return p.mainFrame.QuerySelector(ctx, selector)
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, options WaitForSelectorOptions) (*ElementHandle, error) {
	return p.mainFrame.WaitForSelector(ctx, selector, options)
}

// Screenshot captures the viewport, or the full page with FullPage.
func (p *Page) Screenshot(ctx context.Context, options ScreenshotOptions) ([]byte, error) {
	var binary []byte
	timeout := milliseconds(options.Timeout, p.timeouts.Timeout())
	if err := p.channel.SendReturning(ctx, "screenshot", options.params(timeout), "binary", &binary); err != nil {
		return nil, err
	}
	return binary, nil
}

// Route intercepts requests matching url, a glob string, a *regexp.Regexp or a func(string) bool.
// Handlers run on the listener goroutine and must continue, fulfill or abort the route.
// Later routes take precedence.
func (p *Page) Route(ctx context.Context, url any, handler func(*Route)) error {
	matcher, err := newURLMatcher(url)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.routes = append([]*routeHandler{{matcher: matcher, handler: handler}}, p.routes...)
	routes := p.routes
	p.mu.Unlock()

	return p.updateInterceptionPatterns(ctx, routes)
}

// Unroute removes all handlers registered for url.
func (p *Page) Unroute(ctx context.Context, url any) error {
	p.mu.Lock()
	p.routes = withoutRoutes(p.routes, url)
	routes := p.routes
	p.mu.Unlock()

	return p.updateInterceptionPatterns(ctx, routes)
}

func (p *Page) updateInterceptionPatterns(ctx context.Context, routes []*routeHandler) error {
	_, err := p.channel.Send(ctx, "setNetworkInterceptionPatterns", map[string]any{
		"patterns": interceptionPatterns(routes),
	})
	return err
}

// PageCloseOptions configures Page.Close.
type PageCloseOptions struct {
	RunBeforeUnload bool
}

// Close closes the page, and its context if the page was created by Browser.NewPage.
func (p *Page) Close(ctx context.Context, options PageCloseOptions) error {
	_, err := p.channel.Send(ctx, "close", map[string]any{"runBeforeUnload": options.RunBeforeUnload})
	if err != nil && !isClosedError(err) {
		return err
	}

	p.mu.Lock()
	owned := p.ownedContext
	p.mu.Unlock()
	if owned != nil {
		return owned.Close(ctx)
	}
	return nil
}

// ExpectEvent registers a waiter for the next protocol event of the page.
// Register it before triggering the action.
func (p *Page) ExpectEvent(event string) *connection.EventWaiter {
	return p.channel.ExpectEvent(event)
}

// OnClose registers fn for when the page closes.
func (p *Page) OnClose(fn func(*Page)) (remove func()) {
	return p.channel.On("close", func(payload any) {
		fn(payload.(*Page))
	})
}

// OnConsole registers fn for console messages of the page.
func (p *Page) OnConsole(fn func(*ConsoleMessage)) (remove func()) {
	return p.channel.On("console", func(payload any) {
		fn(payload.(*ConsoleMessage))
	})
}

// OnDialog registers fn for dialogs. The handler must accept or dismiss the dialog;
// dialogs without handlers are dismissed.
func (p *Page) OnDialog(fn func(*Dialog)) (remove func()) {
	return p.channel.On("dialog", func(payload any) {
		fn(payload.(*Dialog))
	})
}

// OnFrameNavigated registers fn for committed navigations of any frame of the page.
func (p *Page) OnFrameNavigated(fn func(*Frame)) (remove func()) {
	return p.channel.On("framenavigated", func(payload any) {
		fn(payload.(*Frame))
	})
}

// OnRequest registers fn for requests issued by the page.
func (p *Page) OnRequest(fn func(*Request)) (remove func()) {
	return p.channel.On("request", func(payload any) {
		fn(payload.(*Request))
	})
}

// OnResponse registers fn for responses received by the page.
func (p *Page) OnResponse(fn func(*Response)) (remove func()) {
	return p.channel.On("response", func(payload any) {
		fn(payload.(*Response))
	})
}
