package pwire_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkteam/pwire"
	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/internal/drivertest"
	"github.com/networkteam/pwire/protocol"
)

const (
	browserGUID = "browser@1"
	contextGUID = "browser-context@1"
	frameGUID   = "frame@1"
	pageGUID    = "page@1"
)

type fixture struct {
	t      *testing.T
	driver *drivertest.Driver
	inst   *pwire.Instance
}

func newFixture(t *testing.T, options pwire.Options) *fixture {
	t.Helper()

	d := drivertest.New(t)
	d.HandleInitialize()
	d.Handle("launch", func(call *protocol.Message) (any, error) {
		d.Create(call.GUID, "Browser", browserGUID, map[string]any{"name": "chromium", "version": "130.0.6723.31"})
		return map[string]any{"browser": protocol.ObjectRef{GUID: browserGUID}}, nil
	})
	d.Handle("newContext", func(call *protocol.Message) (any, error) {
		d.Create(call.GUID, "BrowserContext", contextGUID, map[string]any{"isChromium": true})
		return map[string]any{"context": protocol.ObjectRef{GUID: contextGUID}}, nil
	})
	d.Handle("newPage", func(call *protocol.Message) (any, error) {
		d.Create(call.GUID, "Frame", frameGUID, map[string]any{"url": "about:blank", "name": "", "loadStates": []string{}})
		d.Create(call.GUID, "Page", pageGUID, map[string]any{"mainFrame": protocol.ObjectRef{GUID: frameGUID}})
		d.Event(call.GUID, "page", map[string]any{"page": protocol.ObjectRef{GUID: pageGUID}})
		return map[string]any{"page": protocol.ObjectRef{GUID: pageGUID}}, nil
	})
	d.Handle("setNetworkInterceptionPatterns", func(*protocol.Message) (any, error) {
		return nil, nil
	})

	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r, w := d.ClientStreams()
	inst, err := pwire.Connect(context.Background(), r, w, options)
	require.NoError(t, err)
	t.Cleanup(inst.Close)

	return &fixture{t: t, driver: d, inst: inst}
}

func (f *fixture) launch() *pwire.Browser {
	f.t.Helper()
	browser, err := f.inst.Chromium().Launch(context.Background(), pwire.BrowserTypeLaunchOptions{})
	require.NoError(f.t, err)
	return browser
}

func (f *fixture) newPage() (*pwire.BrowserContext, *pwire.Page) {
	f.t.Helper()
	bc, err := f.launch().NewContext(context.Background(), pwire.BrowserNewContextOptions{})
	require.NoError(f.t, err)
	page, err := bc.NewPage(context.Background())
	require.NoError(f.t, err)
	return bc, page
}

// async runs fn in the background so the test can play the driver side.
func async[T any](fn func() (T, error)) <-chan result[T] {
	ch := make(chan result[T], 1)
	go func() {
		v, err := fn()
		ch <- result[T]{v, err}
	}()
	return ch
}

type result[T any] struct {
	value T
	err   error
}

func await[T any](t *testing.T, ch <-chan result[T]) (T, error) {
	t.Helper()
	select {
	case r := <-ch:
		return r.value, r.err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	var zero T
	return zero, nil
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for listener")
	}
	var zero T
	return zero
}

func params(t *testing.T, call *protocol.Message) map[string]any {
	t.Helper()
	var p map[string]any
	require.NoError(t, json.Unmarshal(call.Params, &p))
	return p
}

func TestConnect_BrowserTypes(t *testing.T) {
	f := newFixture(t, pwire.Options{})

	assert.Equal(t, "chromium", f.inst.Chromium().Name())
	assert.Equal(t, "/opt/browsers/chromium", f.inst.Chromium().ExecutablePath())
	assert.Equal(t, "firefox", f.inst.Firefox().Name())
	assert.Equal(t, "webkit", f.inst.WebKit().Name())
	assert.Same(t, f.inst.Chromium(), f.inst.Playwright().Chromium())
}

func TestConnect_TracesHandshake(t *testing.T) {
	f := newFixture(t, pwire.Options{})

	frames := f.inst.Trace().Tail(100)
	require.NotEmpty(t, frames)
	assert.Equal(t, "initialize", frames[0].Method)
	assert.Equal(t, protocol.DirectionSend, frames[0].Direction)

	last := frames[len(frames)-1]
	assert.True(t, last.IsResponse())
	assert.Equal(t, "initialize", last.Method)
}

func TestConnect_FailsWithoutPlaywrightFactory(t *testing.T) {
	d := drivertest.New(t)
	d.HandleInitialize()
	r, w := d.ClientStreams()

	_, err := pwire.Connect(context.Background(), r, w, pwire.Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: connection.NewRegistry(),
	})
	assert.ErrorContains(t, err, "pwire.Register")
}

func TestLaunch_SendsLaunchTimeout(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	f.driver.Handle("launch", nil)

	headless := false
	pending := async(func() (*pwire.Browser, error) {
		return f.inst.Chromium().Launch(context.Background(), pwire.BrowserTypeLaunchOptions{
			Headless: &headless,
			Args:     []string{"--no-sandbox"},
			Env:      map[string]string{"TZ": "UTC"},
		})
	})

	call := f.driver.Expect("launch")
	assert.Equal(t, drivertest.ChromiumGUID, call.GUID)
	p := params(t, call)
	assert.Equal(t, float64(180000), p["timeout"])
	assert.Equal(t, false, p["headless"])
	assert.Equal(t, []any{"--no-sandbox"}, p["args"])
	assert.Equal(t, []any{map[string]any{"name": "TZ", "value": "UTC"}}, p["env"])

	f.driver.Create(call.GUID, "Browser", browserGUID, map[string]any{"version": "130.0"})
	f.driver.Respond(call, map[string]any{"browser": protocol.ObjectRef{GUID: browserGUID}})

	browser, err := await(t, pending)
	require.NoError(t, err)
	assert.Equal(t, "130.0", browser.Version())
	assert.True(t, browser.IsConnected())
	assert.Same(t, f.inst.Chromium(), browser.BrowserType())
}

func TestBrowser_ContextsAndDisconnect(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	bc, page := f.newPage()
	browser := bc.Browser()

	assert.Equal(t, []*pwire.BrowserContext{bc}, browser.Contexts())
	assert.Equal(t, []*pwire.Page{page}, bc.Pages())
	assert.Same(t, bc, page.Context())

	disconnected := make(chan *pwire.Browser, 1)
	browser.OnDisconnected(func(b *pwire.Browser) {
		disconnected <- b
	})

	f.driver.Event(contextGUID, "close", nil)
	f.driver.Event(browserGUID, "close", nil)

	assert.Same(t, browser, receive(t, disconnected))
	assert.False(t, browser.IsConnected())
	assert.Empty(t, browser.Contexts())
	assert.NoError(t, browser.Close(context.Background()))
}

func TestBrowser_NewPageOwnsContext(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	browser := f.launch()

	page, err := browser.NewPage(context.Background(), pwire.BrowserNewContextOptions{})
	require.NoError(t, err)

	pending := async(func() (struct{}, error) {
		return struct{}{}, page.Close(context.Background(), pwire.PageCloseOptions{})
	})

	call := f.driver.Expect("close")
	assert.Equal(t, pageGUID, call.GUID)
	f.driver.Respond(call, nil)

	call = f.driver.Expect("close")
	assert.Equal(t, contextGUID, call.GUID)
	f.driver.Respond(call, nil)

	_, err = await(t, pending)
	assert.NoError(t, err)
}

func TestPage_GotoUsesNavigationTimeout(t *testing.T) {
	f := newFixture(t, pwire.Options{DefaultTimeout: 10 * time.Second})
	bc, page := f.newPage()
	bc.SetDefaultNavigationTimeout(5 * time.Second)

	pending := async(func() (*pwire.Response, error) {
		return page.Goto(context.Background(), "https://example.com/", pwire.GotoOptions{})
	})

	call := f.driver.Expect("goto")
	assert.Equal(t, frameGUID, call.GUID)
	p := params(t, call)
	assert.Equal(t, "https://example.com/", p["url"])
	assert.Equal(t, float64(5000), p["timeout"])
	f.driver.Respond(call, nil)

	response, err := await(t, pending)
	require.NoError(t, err)
	assert.Nil(t, response)

	click := async(func() (struct{}, error) {
		return struct{}{}, page.Click(context.Background(), "button", pwire.ClickOptions{})
	})
	call = f.driver.Expect("click")
	assert.Equal(t, float64(10000), params(t, call)["timeout"])
	f.driver.Respond(call, nil)
	_, err = await(t, click)
	assert.NoError(t, err)
}

func TestPage_GotoTimeoutError(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	_, page := f.newPage()

	pending := async(func() (*pwire.Response, error) {
		return page.Goto(context.Background(), "https://example.com/", pwire.GotoOptions{Timeout: time.Second})
	})

	call := f.driver.Expect("goto")
	assert.Equal(t, float64(1000), params(t, call)["timeout"])
	f.driver.RespondError(call, "TimeoutError", "page.goto: Timeout 1000ms exceeded.", `navigating to "https://example.com/"`)

	_, err := await(t, pending)
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrTimeout)
	assert.Contains(t, err.Error(), "Call log")
}

func TestPage_Evaluate(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	_, page := f.newPage()

	f.driver.Handle("evaluateExpression", func(call *protocol.Message) (any, error) {
		p := params(t, call)
		assert.Equal(t, true, p["isFunction"])
		assert.Equal(t, map[string]any{"value": map[string]any{"n": float64(41)}, "handles": []any{}}, p["arg"])
		return map[string]any{"value": map[string]any{"n": 42}}, nil
	})

	value, err := page.Evaluate(context.Background(), "x => x + 1", 41)
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestPage_EvaluateHandleAndElement(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	_, page := f.newPage()

	f.driver.Handle("querySelector", func(call *protocol.Message) (any, error) {
		f.driver.Create(call.GUID, "ElementHandle", "handle@1", map[string]any{"preview": "JSHandle@<button>"})
		return map[string]any{"element": protocol.ObjectRef{GUID: "handle@1"}}, nil
	})
	f.driver.Handle("getAttribute", func(call *protocol.Message) (any, error) {
		assert.Equal(t, "handle@1", call.GUID)
		return map[string]any{"value": "submit"}, nil
	})

	element, err := page.QuerySelector(context.Background(), "button")
	require.NoError(t, err)
	require.NotNil(t, element)
	assert.Equal(t, "JSHandle@<button>", element.String())
	assert.Same(t, element, element.AsElement())

	value, err := element.GetAttribute(context.Background(), "type")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "submit", *value)

	f.driver.Handle("evaluateExpression", func(call *protocol.Message) (any, error) {
		arg := params(t, call)["arg"].(map[string]any)
		assert.Equal(t, []any{map[string]any{"guid": "handle@1"}}, arg["handles"])
		return map[string]any{"value": map[string]any{"s": "BUTTON"}}, nil
	})
	tag, err := page.Evaluate(context.Background(), "el => el.tagName", element)
	require.NoError(t, err)
	assert.Equal(t, "BUTTON", tag)
}

func TestPage_EvaluateHandleWithoutHandleFails(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	_, page := f.newPage()

	f.driver.Handle("evaluateExpressionHandle", func(call *protocol.Message) (any, error) {
		return map[string]any{}, nil
	})

	handle, err := page.EvaluateHandle(context.Background(), "() => window", nil)
	assert.Nil(t, handle)
	assert.ErrorContains(t, err, "evaluateExpressionHandle: result has no handle")
}

func TestPage_ConsoleFromContextEvent(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	bc, page := f.newPage()

	pageMessages := make(chan *pwire.ConsoleMessage, 1)
	page.OnConsole(func(msg *pwire.ConsoleMessage) {
		pageMessages <- msg
	})
	contextMessages := make(chan *pwire.ConsoleMessage, 1)
	bc.OnConsole(func(msg *pwire.ConsoleMessage) {
		contextMessages <- msg
	})

	f.driver.Event(contextGUID, "console", map[string]any{
		"type":     "log",
		"text":     "hello",
		"args":     []any{},
		"location": map[string]any{"url": "https://example.com/app.js", "lineNumber": 3, "columnNumber": 7},
		"page":     protocol.ObjectRef{GUID: pageGUID},
	})

	msg := receive(t, pageMessages)
	assert.Equal(t, "log", msg.Type())
	assert.Equal(t, "hello", msg.Text())
	assert.Equal(t, 3, msg.Location().LineNumber)
	assert.Same(t, page, msg.Page())
	assert.Same(t, msg, receive(t, contextMessages))
}

func TestDialog_UnhandledIsDismissed(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	f.newPage()

	f.driver.Create(pageGUID, "Dialog", "dialog@1", map[string]any{
		"type":    "alert",
		"message": "Are you sure?",
		"page":    protocol.ObjectRef{GUID: pageGUID},
	})
	f.driver.Event(contextGUID, "dialog", map[string]any{"dialog": protocol.ObjectRef{GUID: "dialog@1"}})

	call := f.driver.Expect("dismiss")
	assert.Equal(t, "dialog@1", call.GUID)
}

func TestDialog_HandlerMayAccept(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	_, page := f.newPage()

	accepted := make(chan error, 1)
	page.OnDialog(func(d *pwire.Dialog) {
		assert.Equal(t, "prompt", d.Type())
		assert.Equal(t, "Name?", d.Message())
		accepted <- d.Accept(context.Background(), "Ada")
	})

	f.driver.Create(pageGUID, "Dialog", "dialog@1", map[string]any{
		"type":    "prompt",
		"message": "Name?",
		"page":    protocol.ObjectRef{GUID: pageGUID},
	})
	f.driver.Event(contextGUID, "dialog", map[string]any{"dialog": protocol.ObjectRef{GUID: "dialog@1"}})

	call := f.driver.Expect("accept")
	assert.Equal(t, "Ada", params(t, call)["promptText"])
	f.driver.Respond(call, nil)

	assert.NoError(t, receive(t, accepted))
}

func (f *fixture) routeRequest(url string) {
	f.driver.Create(contextGUID, "Request", "request@1", map[string]any{
		"url":          url,
		"method":       "GET",
		"resourceType": "image",
		"headers":      []any{map[string]any{"name": "Accept", "value": "image/png"}},
		"frame":        protocol.ObjectRef{GUID: frameGUID},
	})
	f.driver.Create(contextGUID, "Route", "route@1", map[string]any{"request": protocol.ObjectRef{GUID: "request@1"}})
	f.driver.Event(pageGUID, "route", map[string]any{"route": protocol.ObjectRef{GUID: "route@1"}})
}

func TestRoute_MatchingHandlerFulfills(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	_, page := f.newPage()

	handled := make(chan error, 1)
	err := page.Route(context.Background(), "**/*.png", func(route *pwire.Route) {
		assert.Equal(t, "image/png", route.Request().Headers()["accept"])
		handled <- route.Fulfill(context.Background(), pwire.RouteFulfillOptions{
			ContentType: "image/png",
			Body:        []byte("png"),
		})
	})
	require.NoError(t, err)

	f.routeRequest("https://example.com/static/logo.png")

	call := f.driver.Expect("fulfill")
	assert.Equal(t, "route@1", call.GUID)
	p := params(t, call)
	assert.Equal(t, float64(200), p["status"])
	assert.Equal(t, "cG5n", p["body"])
	f.driver.Respond(call, nil)

	assert.NoError(t, receive(t, handled))
}

func TestRoute_UnmatchedContinues(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	_, page := f.newPage()

	require.NoError(t, page.Route(context.Background(), "**/*.png", func(route *pwire.Route) {
		t.Error("handler must not be called")
	}))

	f.routeRequest("https://example.com/index.html")

	call := f.driver.Expect("continue")
	assert.Equal(t, "route@1", call.GUID)
	assert.Equal(t, true, params(t, call)["isFallback"])
}

func TestPage_CloseEvent(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	bc, page := f.newPage()

	closed := make(chan *pwire.Page, 1)
	page.OnClose(func(p *pwire.Page) {
		closed <- p
	})

	f.driver.Event(pageGUID, "close", nil)

	assert.Same(t, page, receive(t, closed))
	assert.True(t, page.IsClosed())
	assert.Empty(t, bc.Pages())
}

func TestFrame_NavigatedUpdatesURL(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	_, page := f.newPage()

	navigated := make(chan *pwire.Frame, 1)
	page.OnFrameNavigated(func(frame *pwire.Frame) {
		navigated <- frame
	})

	f.driver.Event(frameGUID, "navigated", map[string]any{"url": "https://example.com/", "name": ""})

	assert.Same(t, page.MainFrame(), receive(t, navigated))
	assert.Equal(t, "https://example.com/", page.URL())
	assert.Same(t, page, page.MainFrame().Page())
}

func TestPage_ExpectEvent(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	_, page := f.newPage()

	waiter := page.ExpectEvent("crash")
	f.driver.Event(pageGUID, "crash", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := waiter.Wait(ctx)
	assert.NoError(t, err)
}

func TestInstance_DriverExitFailsCalls(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	_, page := f.newPage()

	pending := async(func() (string, error) {
		return page.Title(context.Background())
	})
	f.driver.Expect("title")
	f.driver.Exit()

	_, err := await(t, pending)
	require.Error(t, err)
	assert.True(t, errors.Is(err, connection.ErrConnectionClosed))
	assert.Error(t, f.inst.Err())
}

func TestInstance_InspectorHandler(t *testing.T) {
	f := newFixture(t, pwire.Options{})
	f.newPage()

	handler := f.inst.InspectorHandler("/_pwire")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/objects", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"guid":"page@1"`)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "newPage")
}
