package pwire

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/protocol"
)

// ConsoleLocation is the source position of a console call.
type ConsoleLocation struct {
	URL          string `json:"url"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

// ConsoleMessage is a message logged through the console API of a page.
// Drivers either create it as a remote object or inline it in the console event.
type ConsoleMessage struct {
	channel *connection.ChannelOwner

	typ      string
	text     string
	args     []*JSHandle
	location ConsoleLocation
	page     *Page
}

type consoleMessageData struct {
	Type     string                `json:"type"`
	Text     string                `json:"text"`
	Args     []*protocol.ObjectRef `json:"args"`
	Location ConsoleLocation       `json:"location"`
	Page     *protocol.ObjectRef   `json:"page"`
}

func newConsoleMessageObject(owner *connection.ChannelOwner) (connection.Object, error) {
	var data consoleMessageData
	if err := owner.DecodeInitializer(&data); err != nil {
		return nil, err
	}
	msg, err := newConsoleMessage(owner.Connection(), data)
	if err != nil {
		return nil, err
	}
	msg.channel = owner
	return msg, nil
}

// consoleMessageFromEvent resolves the message of a console event, by reference or inlined.
func consoleMessageFromEvent(conn *connection.Connection, params json.RawMessage) (*ConsoleMessage, error) {
	var ref *protocol.ObjectRef
	if err := connection.DecodeField(params, "message", &ref); err != nil {
		return nil, err
	}
	if ref != nil {
		msg, err := objectFromRef[*ConsoleMessage](conn, ref)
		if err != nil {
			return nil, err
		}
		return msg, nil
	}

	var data consoleMessageData
	if err := json.Unmarshal(params, &data); err != nil {
		return nil, fmt.Errorf("decoding console event: %w", err)
	}
	return newConsoleMessage(conn, data)
}

func newConsoleMessage(conn *connection.Connection, data consoleMessageData) (*ConsoleMessage, error) {
	page, err := objectFromRef[*Page](conn, data.Page)
	if err != nil {
		return nil, err
	}
	args := make([]*JSHandle, 0, len(data.Args))
	for _, ref := range lo.Compact(data.Args) {
		obj, err := objectFromRef[connection.Object](conn, ref)
		if err != nil {
			return nil, err
		}
		handle, err := asJSHandle(obj)
		if err != nil {
			return nil, err
		}
		args = append(args, handle)
	}
	return &ConsoleMessage{
		typ:      data.Type,
		text:     data.Text,
		args:     args,
		location: data.Location,
		page:     page,
	}, nil
}

// Channel returns the remote object, nil if the message was inlined in an event.
func (m *ConsoleMessage) Channel() *connection.ChannelOwner {
	return m.channel
}

// Type returns the console method, e.g. log, error or warning.
func (m *ConsoleMessage) Type() string {
	return m.typ
}

func (m *ConsoleMessage) Text() string {
	return m.text
}

// Args returns handles to the logged values.
func (m *ConsoleMessage) Args() []*JSHandle {
	return m.args
}

func (m *ConsoleMessage) Location() ConsoleLocation {
	return m.location
}

// Page returns the page that logged the message.
func (m *ConsoleMessage) Page() *Page {
	return m.page
}

func (m *ConsoleMessage) String() string {
	return m.text
}
