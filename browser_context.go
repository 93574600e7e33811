package pwire

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/networkteam/pwire/connection"
)

// BrowserContext is an isolated browser session with its own pages, cookies and storage.
type BrowserContext struct {
	channel  *connection.ChannelOwner
	timeouts *TimeoutSettings
	browser  *Browser

	mu     sync.Mutex
	pages  []*Page
	routes []*routeHandler
	closed bool
}

func newBrowserContext(owner *connection.ChannelOwner) (connection.Object, error) {
	bc := &BrowserContext{
		channel:  owner,
		timeouts: newTimeoutSettings(inheritedTimeouts(owner)),
	}
	if b, ok := owner.Parent().Object().(*Browser); ok {
		bc.browser = b
		b.addContext(bc)
	}
	return bc, nil
}

func (c *BrowserContext) Channel() *connection.ChannelOwner {
	return c.channel
}

func (c *BrowserContext) timeoutSettings() *TimeoutSettings {
	return c.timeouts
}

func (c *BrowserContext) OnEvent(method string, params json.RawMessage) {
	switch method {
	case "page":
		if page, ok := eventObject[*Page](c.channel, method, params, "page"); ok {
			c.channel.Emit("page", page)
		}
	case "close":
		c.didClose()
	case "console":
		msg, err := consoleMessageFromEvent(c.channel.Connection(), params)
		if err != nil {
			c.channel.Connection().Logger().Warn("Dropping console event", slog.Any("error", err))
			return
		}
		c.emitConsole(msg)
	case "dialog":
		if dialog, ok := eventObject[*Dialog](c.channel, method, params, "dialog"); ok {
			c.dispatchDialog(dialog)
		}
	case "route":
		if route, ok := eventObject[*Route](c.channel, method, params, "route"); ok {
			c.channel.Schedule(func() {
				c.handleRoute(route)
			})
		}
	case "request", "requestFinished", "requestFailed":
		if request, ok := eventObject[*Request](c.channel, method, params, "request"); ok {
			event := requestEvents[method]
			c.channel.Emit(event, request)
			if page := c.pageFromEvent(params); page != nil {
				page.channel.Emit(event, request)
			}
		}
	case "response":
		if response, ok := eventObject[*Response](c.channel, method, params, "response"); ok {
			c.channel.Emit("response", response)
			if page := c.pageFromEvent(params); page != nil {
				page.channel.Emit("response", response)
			}
		}
	default:
		c.channel.Emit(method, params)
	}
}

// requestEvents maps protocol events to the names emitted to listeners.
var requestEvents = map[string]string{
	"request":         "request",
	"requestFinished": "requestfinished",
	"requestFailed":   "requestfailed",
}

func (c *BrowserContext) OnDispose() {
	c.didClose()
}

func (c *BrowserContext) pageFromEvent(params json.RawMessage) *Page {
	page, _ := eventObject[*Page](c.channel, "page", params, "page")
	return page
}

func (c *BrowserContext) emitConsole(msg *ConsoleMessage) {
	c.channel.Emit("console", msg)
	if msg.page != nil {
		msg.page.channel.Emit("console", msg)
	}
}

// dispatchDialog hands a dialog to the page or context listeners and dismisses it if there are none.
func (c *BrowserContext) dispatchDialog(dialog *Dialog) {
	handled := c.channel.Emit("dialog", dialog)
	if dialog.page != nil {
		handled = dialog.page.channel.Emit("dialog", dialog) || handled
	}
	if !handled {
		dialog.dismissNoWait()
	}
}

func (c *BrowserContext) didClose() {
	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	c.mu.Unlock()
	if wasClosed {
		return
	}

	if c.browser != nil {
		c.browser.removeContext(c)
	}
	c.channel.Emit("close", c)
}

func (c *BrowserContext) addPage(p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = append(c.pages, p)
}

func (c *BrowserContext) removePage(p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = lo.Without(c.pages, p)
}

// Browser returns the owning browser, nil for persistent contexts.
func (c *BrowserContext) Browser() *Browser {
	return c.browser
}

// Pages returns the open pages.
func (c *BrowserContext) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

// NewPage opens a new page.
func (c *BrowserContext) NewPage(ctx context.Context) (*Page, error) {
	page, err := sendForObject[*Page](ctx, c.channel, "newPage", nil, "page")
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, errNoObject("newPage", "page")
	}
	return page, nil
}

// Cookie is a browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// Cookies returns the cookies of the context, limited to urls if given.
func (c *BrowserContext) Cookies(ctx context.Context, urls ...string) ([]Cookie, error) {
	var cookies []Cookie
	params := map[string]any{"urls": lo.Ternary(urls == nil, []string{}, urls)}
	if err := c.channel.SendReturning(ctx, "cookies", params, "cookies", &cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

// AddCookies adds cookies to the context.
func (c *BrowserContext) AddCookies(ctx context.Context, cookies ...Cookie) error {
	_, err := c.channel.Send(ctx, "addCookies", map[string]any{"cookies": cookies})
	return err
}

// ClearCookies removes all cookies.
func (c *BrowserContext) ClearCookies(ctx context.Context) error {
	_, err := c.channel.Send(ctx, "clearCookies", nil)
	return err
}

// AddInitScript adds a script evaluated in every new document before page scripts.
func (c *BrowserContext) AddInitScript(ctx context.Context, script string) error {
	_, err := c.channel.Send(ctx, "addInitScript", map[string]any{"source": script})
	return err
}

// Route intercepts requests of all pages matching url. See Page.Route for url forms.
func (c *BrowserContext) Route(ctx context.Context, url any, handler func(*Route)) error {
	matcher, err := newURLMatcher(url)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.routes = append([]*routeHandler{{matcher: matcher, handler: handler}}, c.routes...)
	routes := c.routes
	c.mu.Unlock()

	return c.updateInterceptionPatterns(ctx, routes)
}

// Unroute removes all handlers registered for url.
func (c *BrowserContext) Unroute(ctx context.Context, url any) error {
	c.mu.Lock()
	c.routes = withoutRoutes(c.routes, url)
	routes := c.routes
	c.mu.Unlock()

	return c.updateInterceptionPatterns(ctx, routes)
}

func (c *BrowserContext) updateInterceptionPatterns(ctx context.Context, routes []*routeHandler) error {
	_, err := c.channel.Send(ctx, "setNetworkInterceptionPatterns", map[string]any{
		"patterns": interceptionPatterns(routes),
	})
	return err
}

func (c *BrowserContext) handleRoute(route *Route) {
	c.mu.Lock()
	routes := c.routes
	c.mu.Unlock()

	if !runRouteHandlers(routes, route) {
		route.continueFallback()
	}
}

// Close closes all pages of the context.
func (c *BrowserContext) Close(ctx context.Context) error {
	_, err := c.channel.Send(ctx, "close", nil)
	if err != nil && !isClosedError(err) {
		return err
	}
	return nil
}

// SetDefaultTimeout sets the timeout of actions in all pages of the context.
func (c *BrowserContext) SetDefaultTimeout(d time.Duration) {
	c.timeouts.SetDefaultTimeout(d)
}

// SetDefaultNavigationTimeout sets the navigation timeout in all pages of the context.
func (c *BrowserContext) SetDefaultNavigationTimeout(d time.Duration) {
	c.timeouts.SetDefaultNavigationTimeout(d)
}

// OnPage registers fn for new pages, including popups.
func (c *BrowserContext) OnPage(fn func(*Page)) (remove func()) {
	return c.channel.On("page", func(payload any) {
		fn(payload.(*Page))
	})
}

// OnClose registers fn for when the context closes.
func (c *BrowserContext) OnClose(fn func(*BrowserContext)) (remove func()) {
	return c.channel.On("close", func(payload any) {
		fn(payload.(*BrowserContext))
	})
}

// OnConsole registers fn for console messages of all pages.
func (c *BrowserContext) OnConsole(fn func(*ConsoleMessage)) (remove func()) {
	return c.channel.On("console", func(payload any) {
		fn(payload.(*ConsoleMessage))
	})
}

// OnDialog registers fn for dialogs of all pages. The handler must accept or dismiss the dialog.
func (c *BrowserContext) OnDialog(fn func(*Dialog)) (remove func()) {
	return c.channel.On("dialog", func(payload any) {
		fn(payload.(*Dialog))
	})
}

// OnRequest registers fn for requests issued by any page.
func (c *BrowserContext) OnRequest(fn func(*Request)) (remove func()) {
	return c.channel.On("request", func(payload any) {
		fn(payload.(*Request))
	})
}

// OnResponse registers fn for responses received by any page.
func (c *BrowserContext) OnResponse(fn func(*Response)) (remove func()) {
	return c.channel.On("response", func(payload any) {
		fn(payload.(*Response))
	})
}
