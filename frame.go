package pwire

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/protocol"
)

// Frame is a document in a page, the main frame or an iframe.
type Frame struct {
	channel     *connection.ChannelOwner
	parentFrame *Frame

	mu         sync.Mutex
	page       *Page
	url        string
	name       string
	loadStates []string
	detached   bool
}

func newFrame(owner *connection.ChannelOwner) (connection.Object, error) {
	var init struct {
		URL         string              `json:"url"`
		Name        string              `json:"name"`
		ParentFrame *protocol.ObjectRef `json:"parentFrame"`
		LoadStates  []string            `json:"loadStates"`
	}
	if err := owner.DecodeInitializer(&init); err != nil {
		return nil, err
	}
	parentFrame, err := objectFromRef[*Frame](owner.Connection(), init.ParentFrame)
	if err != nil {
		return nil, err
	}
	return &Frame{
		channel:     owner,
		parentFrame: parentFrame,
		url:         init.URL,
		name:        init.Name,
		loadStates:  init.LoadStates,
	}, nil
}

func (f *Frame) Channel() *connection.ChannelOwner {
	return f.channel
}

func (f *Frame) timeoutSettings() *TimeoutSettings {
	if page := f.Page(); page != nil {
		return page.timeouts
	}
	return nil
}

func (f *Frame) OnEvent(method string, params json.RawMessage) {
	switch method {
	case "navigated":
		var event struct {
			URL   string `json:"url"`
			Name  string `json:"name"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(params, &event); err != nil {
			return
		}
		if event.Error == "" {
			f.mu.Lock()
			f.url = event.URL
			f.name = event.Name
			f.mu.Unlock()
		}
		f.channel.Emit("navigated", params)
		if page := f.Page(); page != nil && event.Error == "" {
			page.channel.Emit("framenavigated", f)
		}
	case "loadstate":
		var event struct {
			Add    string `json:"add"`
			Remove string `json:"remove"`
		}
		if err := json.Unmarshal(params, &event); err != nil {
			return
		}
		f.mu.Lock()
		if event.Add != "" && !slices.Contains(f.loadStates, event.Add) {
			f.loadStates = append(f.loadStates, event.Add)
		}
		if event.Remove != "" {
			f.loadStates = lo.Without(f.loadStates, event.Remove)
		}
		f.mu.Unlock()
		f.channel.Emit("loadstate", event.Add)
	default:
		f.channel.Emit(method, params)
	}
}

func (f *Frame) setPage(p *Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.page = p
}

func (f *Frame) setDetached() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = true
}

// Page returns the page containing the frame.
func (f *Frame) Page() *Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

// ParentFrame returns the parent frame, nil for main frames.
func (f *Frame) ParentFrame() *Frame {
	return f.parentFrame
}

func (f *Frame) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// Name returns the name attribute of the frame element.
func (f *Frame) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

// LoadStates returns the reached load states, e.g. load and domcontentloaded.
func (f *Frame) LoadStates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.loadStates)
}

// IsDetached reports whether the frame was removed from its page.
func (f *Frame) IsDetached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detached
}

func (f *Frame) timeouts() *TimeoutSettings {
	return timeoutsOf(f.channel)
}

// GotoOptions configures navigations.
type GotoOptions struct {
	// WaitUntil is load, domcontentloaded, networkidle or commit. Default: load
	WaitUntil string
	Referer   string
	Timeout   time.Duration
}

type gotoParams struct {
	URL       string  `json:"url"`
	WaitUntil string  `json:"waitUntil,omitempty"`
	Referer   string  `json:"referer,omitempty"`
	Timeout   float64 `json:"timeout"`
}

// Goto navigates the frame and returns the main resource response.
// The response is nil for navigations to about:blank or within the same document.
func (f *Frame) Goto(ctx context.Context, url string, options GotoOptions) (*Response, error) {
	return sendForObject[*Response](ctx, f.channel, "goto", gotoParams{
		URL:       url,
		WaitUntil: options.WaitUntil,
		Referer:   options.Referer,
		Timeout:   milliseconds(options.Timeout, f.timeouts().NavigationTimeout()),
	}, "response")
}

// Title returns the document title.
func (f *Frame) Title(ctx context.Context) (string, error) {
	var title string
	err := f.channel.SendReturning(ctx, "title", nil, "value", &title)
	return title, err
}

// Content returns the serialized document.
func (f *Frame) Content(ctx context.Context) (string, error) {
	var content string
	err := f.channel.SendReturning(ctx, "content", nil, "value", &content)
	return content, err
}

// SetContent replaces the document with html.
func (f *Frame) SetContent(ctx context.Context, html string, options GotoOptions) error {
	_, err := f.channel.Send(ctx, "setContent", map[string]any{
		"html":      html,
		"waitUntil": lo.CoalesceOrEmpty(options.WaitUntil, "load"),
		"timeout":   milliseconds(options.Timeout, f.timeouts().NavigationTimeout()),
	})
	return err
}

// Evaluate runs expression in the frame and returns its value. Functions are called with arg.
func (f *Frame) Evaluate(ctx context.Context, expression string, arg any) (any, error) {
	return evaluate(ctx, f.channel, "evaluateExpression", expression, arg)
}

// EvaluateHandle is like Evaluate but returns a handle to the result.
func (f *Frame) EvaluateHandle(ctx context.Context, expression string, arg any) (*JSHandle, error) {
	return evaluateHandle(ctx, f.channel, "evaluateExpressionHandle", expression, arg)
}

// ClickOptions configures clicks.
type ClickOptions struct {
	// Button is left, right or middle. Default: left
	Button     string
	ClickCount int
	Delay      time.Duration
	Force      bool
	Trial      bool
	Timeout    time.Duration
}

func (o ClickOptions) params(selector string, timeout float64) map[string]any {
	params := map[string]any{"timeout": timeout}
	if selector != "" {
		params["selector"] = selector
		params["strict"] = true
	}
	if o.Button != "" {
		params["button"] = o.Button
	}
	if o.ClickCount > 0 {
		params["clickCount"] = o.ClickCount
	}
	if o.Delay > 0 {
		params["delay"] = float64(o.Delay.Milliseconds())
	}
	if o.Force {
		params["force"] = true
	}
	if o.Trial {
		params["trial"] = true
	}
	return params
}

// Click clicks the element matching selector.
func (f *Frame) Click(ctx context.Context, selector string, options ClickOptions) error {
	timeout := milliseconds(options.Timeout, f.timeouts().Timeout())
	_, err := f.channel.Send(ctx, "click", options.params(selector, timeout))
	return err
}

// FillOptions configures Fill.
type FillOptions struct {
	Force   bool
	Timeout time.Duration
}

type fillParams struct {
	Selector string  `json:"selector,omitempty"`
	Strict   bool    `json:"strict,omitempty"`
	Value    string  `json:"value"`
	Force    bool    `json:"force,omitempty"`
	Timeout  float64 `json:"timeout"`
}

// Fill replaces the value of the input matching selector.
func (f *Frame) Fill(ctx context.Context, selector, value string, options FillOptions) error {
	_, err := f.channel.Send(ctx, "fill", fillParams{
		Selector: selector,
		Strict:   true,
		Value:    value,
		Force:    options.Force,
		Timeout:  milliseconds(options.Timeout, f.timeouts().Timeout()),
	})
	return err
}

// TextContent returns the textContent of the element matching selector, nil if it has none.
func (f *Frame) TextContent(ctx context.Context, selector string) (*string, error) {
	var value *string
	err := f.channel.SendReturning(ctx, "textContent", map[string]any{
		"selector": selector,
		"strict":   true,
		"timeout":  milliseconds(0, f.timeouts().Timeout()),
	}, "value", &value)
	return value, err
}

// QuerySelector returns the first element matching selector, nil if there is none.
func (f *Frame) QuerySelector(ctx context.Context, selector string) (*ElementHandle, error) {
	return sendForObject[*ElementHandle](ctx, f.channel, "querySelector", map[string]any{
		"selector": selector,
	}, "element")
}

// WaitForSelectorOptions configures WaitForSelector.
type WaitForSelectorOptions struct {
	// State is attached, detached, visible or hidden. Default: visible
	State   string
	Timeout time.Duration
}

// WaitForSelector waits for an element matching selector to reach a state.
// The element is nil when waiting for detached or hidden.
func (f *Frame) WaitForSelector(ctx context.Context, selector string, options WaitForSelectorOptions) (*ElementHandle, error) {
	return sendForObject[*ElementHandle](ctx, f.channel, "waitForSelector", map[string]any{
		"selector": selector,
		"strict":   true,
		"state":    lo.CoalesceOrEmpty(options.State, "visible"),
		"timeout":  milliseconds(options.Timeout, f.timeouts().Timeout()),
	}, "element")
}

// ScreenshotOptions configures screenshots.
type ScreenshotOptions struct {
	// Type is png or jpeg. Default: png
	Type     string
	Quality  int
	FullPage bool
	Timeout  time.Duration
}

func (o ScreenshotOptions) params(timeout float64) map[string]any {
	params := map[string]any{
		"type":    lo.CoalesceOrEmpty(o.Type, "png"),
		"timeout": timeout,
	}
	if o.Quality > 0 {
		params["quality"] = o.Quality
	}
	if o.FullPage {
		params["fullPage"] = true
	}
	return params
}
