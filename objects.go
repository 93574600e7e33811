package pwire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/protocol"
)

const (
	// DefaultTimeout applies to actions and navigations unless overridden.
	DefaultTimeout = 30 * time.Second
	// DefaultLaunchTimeout applies to BrowserType.Launch.
	DefaultLaunchTimeout = 180 * time.Second
)

func init() {
	Register(connection.DefaultRegistry)
}

// Register adds the factories of all typed objects to r.
func Register(r *connection.Registry) {
	r.Register("Playwright", newPlaywright)
	r.Register("BrowserType", newBrowserType)
	r.Register("Browser", newBrowser)
	r.Register("BrowserContext", newBrowserContext)
	r.Register("Page", newPage)
	r.Register("Frame", newFrame)
	r.Register("JSHandle", newJSHandleObject)
	r.Register("ElementHandle", newElementHandle)
	r.Register("Request", newRequest)
	r.Register("Response", newResponse)
	r.Register("Route", newRoute)
	r.Register("Dialog", newDialog)
	r.Register("ConsoleMessage", newConsoleMessageObject)
}

// TimeoutSettings holds default timeouts. Unset values fall back to the parent settings.
type TimeoutSettings struct {
	parent *TimeoutSettings

	mu                sync.RWMutex
	timeout           time.Duration
	navigationTimeout time.Duration
}

func newTimeoutSettings(parent *TimeoutSettings) *TimeoutSettings {
	return &TimeoutSettings{parent: parent}
}

// SetDefaultTimeout sets the timeout of actions and navigations. 0 resets it.
func (s *TimeoutSettings) SetDefaultTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// SetDefaultNavigationTimeout sets the timeout of navigations. 0 resets it.
func (s *TimeoutSettings) SetDefaultNavigationTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigationTimeout = d
}

// Timeout returns the effective action timeout.
func (s *TimeoutSettings) Timeout() time.Duration {
	if s == nil {
		return DefaultTimeout
	}
	s.mu.RLock()
	timeout := s.timeout
	s.mu.RUnlock()
	if timeout > 0 {
		return timeout
	}
	return s.parent.Timeout()
}

// NavigationTimeout returns the effective navigation timeout.
func (s *TimeoutSettings) NavigationTimeout() time.Duration {
	if s == nil {
		return DefaultTimeout
	}
	s.mu.RLock()
	timeout, navigationTimeout := s.timeout, s.navigationTimeout
	s.mu.RUnlock()
	if navigationTimeout > 0 {
		return navigationTimeout
	}
	if timeout > 0 {
		return timeout
	}
	return s.parent.NavigationTimeout()
}

// timeoutOwner is implemented by objects with timeout settings.
type timeoutOwner interface {
	timeoutSettings() *TimeoutSettings
}

// inheritedTimeouts returns the settings of the closest ancestor that has them.
func inheritedTimeouts(owner *connection.ChannelOwner) *TimeoutSettings {
	for p := owner.Parent(); p != nil; p = p.Parent() {
		if t, ok := p.Object().(timeoutOwner); ok {
			if s := t.timeoutSettings(); s != nil {
				return s
			}
		}
	}
	return nil
}

// milliseconds converts an explicit timeout or the fallback to the float milliseconds the driver expects.
func milliseconds(explicit, fallback time.Duration) float64 {
	if explicit > 0 {
		return float64(explicit.Milliseconds())
	}
	return float64(fallback.Milliseconds())
}

// objectFromRef resolves a reference to a typed object. A nil reference yields the zero value.
func objectFromRef[T connection.Object](conn *connection.Connection, ref *protocol.ObjectRef) (T, error) {
	var zero T
	if ref == nil || ref.GUID == "" {
		return zero, nil
	}
	obj, ok := conn.Object(ref.GUID)
	if !ok {
		return zero, fmt.Errorf("unknown object %s", ref.GUID)
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("object %s is %T, not %T", ref.GUID, obj, zero)
	}
	return typed, nil
}

// sendForObject calls method and resolves the object referenced by field of the result.
func sendForObject[T connection.Object](ctx context.Context, owner *connection.ChannelOwner, method string, params any, field string) (T, error) {
	var zero T
	var ref *protocol.ObjectRef
	if err := owner.SendReturning(ctx, method, params, field, &ref); err != nil {
		return zero, err
	}
	obj, err := objectFromRef[T](owner.Connection(), ref)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	return obj, nil
}

func errNoObject(method, field string) error {
	return fmt.Errorf("%s: result has no %s", method, field)
}

// eventObject decodes the reference in field of event params and resolves it.
// Failures are logged and yield the zero value.
func eventObject[T connection.Object](owner *connection.ChannelOwner, event string, params json.RawMessage, field string) (T, bool) {
	var zero T
	var ref *protocol.ObjectRef
	err := connection.DecodeField(params, field, &ref)
	if err == nil {
		var obj T
		obj, err = objectFromRef[T](owner.Connection(), ref)
		if err == nil && ref != nil {
			return obj, true
		}
	}
	if err != nil {
		owner.Connection().Logger().Warn("Dropping event with unresolvable object",
			slog.String("guid", owner.GUID()),
			slog.String("event", event),
			slog.Any("error", err),
		)
	}
	return zero, false
}

// decodeInitializer logs and ignores initializer errors, leaving the zero values.
func decodeInitializer(owner *connection.ChannelOwner, v any) {
	if err := owner.DecodeInitializer(v); err != nil {
		owner.Connection().Logger().Warn("Ignoring malformed initializer", slog.String("guid", owner.GUID()), slog.Any("error", err))
	}
}

// isFunctionExpression reports whether expression is a function to be called rather than an expression to evaluate.
func isFunctionExpression(expression string) bool {
	expression = strings.TrimSpace(expression)
	return strings.HasPrefix(expression, "function") ||
		strings.HasPrefix(expression, "async ") ||
		strings.HasPrefix(expression, "async(") ||
		strings.Contains(expression, "=>")
}

type evaluateParams struct {
	Expression string                       `json:"expression"`
	IsFunction bool                         `json:"isFunction"`
	Arg        *protocol.SerializedArgument `json:"arg"`
}

func newEvaluateParams(expression string, arg any) (*evaluateParams, error) {
	serialized, err := protocol.SerializeArgument(arg)
	if err != nil {
		return nil, err
	}
	return &evaluateParams{
		Expression: expression,
		IsFunction: isFunctionExpression(expression),
		Arg:        serialized,
	}, nil
}

// evaluate runs method with evaluate params and parses the returned value.
func evaluate(ctx context.Context, owner *connection.ChannelOwner, method, expression string, arg any) (any, error) {
	params, err := newEvaluateParams(expression, arg)
	if err != nil {
		return nil, err
	}
	var value protocol.SerializedValue
	if err := owner.SendReturning(ctx, method, params, "value", &value); err != nil {
		return nil, err
	}
	return protocol.ParseValue(&value, nil)
}

// evaluateHandle runs method with evaluate params and resolves the returned handle.
func evaluateHandle(ctx context.Context, owner *connection.ChannelOwner, method, expression string, arg any) (*JSHandle, error) {
	params, err := newEvaluateParams(expression, arg)
	if err != nil {
		return nil, err
	}
	obj, err := sendForObject[connection.Object](ctx, owner, method, params, "handle")
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNoObject(method, "handle")
	}
	return asJSHandle(obj)
}

type nameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func toNameValues(m map[string]string) []nameValue {
	if len(m) == 0 {
		return nil
	}
	names := lo.Keys(m)
	slices.Sort(names)
	return lo.Map(names, func(name string, _ int) nameValue {
		return nameValue{Name: name, Value: m[name]}
	})
}

func fromNameValues(list []nameValue) map[string]string {
	result := make(map[string]string, len(list))
	for _, nv := range list {
		result[strings.ToLower(nv.Name)] = nv.Value
	}
	return result
}
