package pwire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/protocol"
)

// JSHandle references a value living in the page.
type JSHandle struct {
	channel *connection.ChannelOwner
	element *ElementHandle

	mu      sync.Mutex
	preview string
}

var _ protocol.Handle = (*JSHandle)(nil)

func newJSHandle(owner *connection.ChannelOwner) *JSHandle {
	var init struct {
		Preview string `json:"preview"`
	}
	decodeInitializer(owner, &init)
	return &JSHandle{channel: owner, preview: init.Preview}
}

func newJSHandleObject(owner *connection.ChannelOwner) (connection.Object, error) {
	return newJSHandle(owner), nil
}

func asJSHandle(obj connection.Object) (*JSHandle, error) {
	switch h := obj.(type) {
	case nil:
		return nil, errors.New("no handle")
	case *JSHandle:
		return h, nil
	case *ElementHandle:
		return h.JSHandle, nil
	default:
		return nil, fmt.Errorf("object %s is %T, not a handle", obj.Channel().GUID(), obj)
	}
}

func (h *JSHandle) Channel() *connection.ChannelOwner {
	return h.channel
}

// HandleGUID implements protocol.Handle so handles can be passed to Evaluate.
func (h *JSHandle) HandleGUID() string {
	return h.channel.GUID()
}

func (h *JSHandle) OnEvent(method string, params json.RawMessage) {
	if method == "previewUpdated" {
		var preview string
		if err := connection.DecodeField(params, "preview", &preview); err == nil {
			h.mu.Lock()
			h.preview = preview
			h.mu.Unlock()
		}
		return
	}
	h.channel.Emit(method, params)
}

func (h *JSHandle) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.preview
}

// AsElement returns the handle as an element, nil if it does not reference a DOM element.
func (h *JSHandle) AsElement() *ElementHandle {
	return h.element
}

// Evaluate calls expression with the referenced value as first argument and arg as second.
func (h *JSHandle) Evaluate(ctx context.Context, expression string, arg any) (any, error) {
	return evaluate(ctx, h.channel, "evaluateExpression", expression, arg)
}

// EvaluateHandle is like Evaluate but returns a handle to the result.
func (h *JSHandle) EvaluateHandle(ctx context.Context, expression string, arg any) (*JSHandle, error) {
	return evaluateHandle(ctx, h.channel, "evaluateExpressionHandle", expression, arg)
}

// JSONValue returns a copy of the referenced value.
func (h *JSHandle) JSONValue(ctx context.Context) (any, error) {
	var value protocol.SerializedValue
	if err := h.channel.SendReturning(ctx, "jsonValue", nil, "value", &value); err != nil {
		return nil, err
	}
	return protocol.ParseValue(&value, nil)
}

// Dispose releases the referenced value.
func (h *JSHandle) Dispose(ctx context.Context) error {
	_, err := h.channel.Send(ctx, "dispose", nil)
	if err != nil && !isClosedError(err) {
		return err
	}
	return nil
}

// ElementHandle references a DOM element.
type ElementHandle struct {
	*JSHandle
}

func newElementHandle(owner *connection.ChannelOwner) (connection.Object, error) {
	eh := &ElementHandle{JSHandle: newJSHandle(owner)}
	eh.element = eh
	return eh, nil
}

func (e *ElementHandle) timeout(explicit time.Duration) float64 {
	return milliseconds(explicit, timeoutsOf(e.channel).Timeout())
}

// Click scrolls the element into view and clicks it.
func (e *ElementHandle) Click(ctx context.Context, options ClickOptions) error {
	_, err := e.channel.Send(ctx, "click", options.params("", e.timeout(options.Timeout)))
	return err
}

// Fill focuses the element and replaces its value.
func (e *ElementHandle) Fill(ctx context.Context, value string, options FillOptions) error {
	_, err := e.channel.Send(ctx, "fill", fillParams{
		Value:   value,
		Force:   options.Force,
		Timeout: e.timeout(options.Timeout),
	})
	return err
}

// TextContent returns the element's textContent, nil if it has none.
func (e *ElementHandle) TextContent(ctx context.Context) (*string, error) {
	var value *string
	if err := e.channel.SendReturning(ctx, "textContent", nil, "value", &value); err != nil {
		return nil, err
	}
	return value, nil
}

// GetAttribute returns the attribute value, nil if the attribute is missing.
func (e *ElementHandle) GetAttribute(ctx context.Context, name string) (*string, error) {
	var value *string
	if err := e.channel.SendReturning(ctx, "getAttribute", map[string]any{"name": name}, "value", &value); err != nil {
		return nil, err
	}
	return value, nil
}

// Screenshot captures the element.
func (e *ElementHandle) Screenshot(ctx context.Context, options ScreenshotOptions) ([]byte, error) {
	var binary []byte
	if err := e.channel.SendReturning(ctx, "screenshot", options.params(e.timeout(options.Timeout)), "binary", &binary); err != nil {
		return nil, err
	}
	return binary, nil
}

// QuerySelector finds the first matching descendant, nil if there is none.
func (e *ElementHandle) QuerySelector(ctx context.Context, selector string) (*ElementHandle, error) {
	return sendForObject[*ElementHandle](ctx, e.channel, "querySelector", map[string]any{"selector": selector}, "element")
}

// timeoutsOf returns the settings of the page the object belongs to.
func timeoutsOf(owner *connection.ChannelOwner) *TimeoutSettings {
	if t, ok := owner.Object().(timeoutOwner); ok {
		if s := t.timeoutSettings(); s != nil {
			return s
		}
	}
	return inheritedTimeouts(owner)
}
