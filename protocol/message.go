package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the wire envelope exchanged with the driver.
//
// A request carries ID, GUID, Method, Params and Metadata. A response carries ID
// and either Result or Error (plus an optional call Log). Events pushed by the
// driver have no ID.
type Message struct {
	ID       int             `json:"id,omitempty"`
	GUID     string          `json:"guid"`
	Method   string          `json:"method,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *ErrorPayload   `json:"error,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
	Log      []string        `json:"log,omitempty"`
}

// Metadata is attached to every call. The driver validates its shape, so it is
// always sent as an object, even when empty.
type Metadata struct {
	WallTime int64  `json:"wallTime,omitempty"`
	APIName  string `json:"apiName,omitempty"`
	Internal bool   `json:"internal,omitempty"`
}

// ObjectRef is the {"guid": "..."} reference to a remote object used in params,
// results and initializers.
type ObjectRef struct {
	GUID string `json:"guid"`
}

// Direction tells whether a message was sent to or received from the driver.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Lifecycle methods pushed by the driver.
const (
	MethodCreate  = "__create__"
	MethodDispose = "__dispose__"
	MethodAdopt   = "__adopt__"
)

// CreateParams are the params of a __create__ message. The message GUID is the parent.
type CreateParams struct {
	Type        string          `json:"type"`
	GUID        string          `json:"guid"`
	Initializer json.RawMessage `json:"initializer"`
}

// AdoptParams are the params of an __adopt__ message. The message GUID is the new parent.
type AdoptParams struct {
	GUID string `json:"guid"`
}

// DisposeParams are the params of a __dispose__ message.
type DisposeParams struct {
	Reason string `json:"reason,omitempty"`
}

var emptyObject = json.RawMessage(`{}`)

// NewCall builds a request message. Nil params are sent as an empty object.
func NewCall(id int, guid, method string, params any) (*Message, error) {
	raw, err := MarshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshalling params of %s: %w", method, err)
	}
	return &Message{
		ID:       id,
		GUID:     guid,
		Method:   method,
		Params:   raw,
		Metadata: &Metadata{},
	}, nil
}

// MarshalParams encodes params, using {} for nil.
func MarshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return emptyObject, nil
	case json.RawMessage:
		if len(p) == 0 {
			return emptyObject, nil
		}
		return p, nil
	}
	return json.Marshal(params)
}

// IsResponse reports whether the message answers a call.
func (m *Message) IsResponse() bool {
	return m.ID != 0
}

// IsEvent reports whether the message was pushed by the driver without a call.
func (m *Message) IsEvent() bool {
	return m.ID == 0
}

// ParamsOrEmpty returns the params, or {} if none were sent.
func (m *Message) ParamsOrEmpty() json.RawMessage {
	if len(m.Params) == 0 || string(m.Params) == "null" {
		return emptyObject
	}
	return m.Params
}

// Decode parses a frame payload into a message.
func Decode(payload []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Encode serializes a message into a frame payload.
func Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}
