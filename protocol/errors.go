package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/samber/lo"
)

var (
	// ErrTimeout matches driver errors named TimeoutError.
	ErrTimeout = errors.New("timeout")
	// ErrTargetClosed matches driver errors reporting a closed page, context or browser.
	ErrTargetClosed = errors.New("target closed")
)

// ErrorPayload is the error of a response.
//
// The driver nests it as {"error": {"message", "name", "stack"}}; older drivers
// send the fields directly. Both shapes are accepted.
type ErrorPayload struct {
	Message string           `json:"message"`
	Name    string           `json:"name,omitempty"`
	Stack   string           `json:"stack,omitempty"`
	Value   *SerializedValue `json:"value,omitempty"`
}

type errorPayloadFields ErrorPayload

func (p *ErrorPayload) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Error *errorPayloadFields `json:"error"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	if wrapped.Error != nil {
		*p = ErrorPayload(*wrapped.Error)
		return nil
	}
	var flat errorPayloadFields
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*p = ErrorPayload(flat)
	return nil
}

func (p ErrorPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error errorPayloadFields `json:"error"`
	}{Error: errorPayloadFields(p)})
}

// Error is a command failure reported by the driver.
type Error struct {
	Name    string
	Message string
	Stack   string
	// Log holds the call log the driver attached to the response.
	Log []string
}

// NewError converts an error payload of a response into an error.
func NewError(payload *ErrorPayload, log []string) *Error {
	e := &Error{Log: log}
	if payload != nil {
		e.Name = payload.Name
		e.Message = payload.Message
		e.Stack = payload.Stack
	}
	if e.Message == "" && payload != nil && payload.Value != nil {
		if v, err := ParseValue(payload.Value, nil); err == nil {
			e.Message = fmt.Sprint(v)
		}
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Name != "" && e.Name != "Error" {
		b.WriteString(e.Name)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Log) > 0 {
		b.WriteString("\nCall log:\n")
		b.WriteString(strings.Join(lo.Map(e.Log, func(line string, _ int) string {
			return "  - " + line
		}), "\n"))
	}
	return b.String()
}

// Is supports errors.Is(err, ErrTimeout) and errors.Is(err, ErrTargetClosed).
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Name == "TimeoutError"
	case ErrTargetClosed:
		return e.Name == "TargetClosedError" ||
			strings.Contains(e.Message, "has been closed")
	}
	return false
}

// UnsupportedValueError is returned when a Go value has no serialized form.
type UnsupportedValueError struct {
	Type  reflect.Type
	Value any
	// Path locates the value inside the argument, e.g. "[2].name".
	Path string
}

func (e *UnsupportedValueError) Error() string {
	at := ""
	if e.Path != "" {
		at = " at " + e.Path
	}
	typeName := "<nil>"
	if e.Type != nil {
		typeName = e.Type.String()
	}
	return fmt.Sprintf("unsupported value%s: %s (%v)", at, typeName, e.Value)
}
