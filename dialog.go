package pwire

import (
	"context"
	"log/slog"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/protocol"
)

// Dialog is an alert, confirm, prompt or beforeunload dialog.
type Dialog struct {
	channel *connection.ChannelOwner

	typ          string
	message      string
	defaultValue string
	page         *Page
}

func newDialog(owner *connection.ChannelOwner) (connection.Object, error) {
	var init struct {
		Type         string              `json:"type"`
		Message      string              `json:"message"`
		DefaultValue string              `json:"defaultValue"`
		Page         *protocol.ObjectRef `json:"page"`
	}
	if err := owner.DecodeInitializer(&init); err != nil {
		return nil, err
	}
	page, err := objectFromRef[*Page](owner.Connection(), init.Page)
	if err != nil {
		return nil, err
	}
	return &Dialog{
		channel:      owner,
		typ:          init.Type,
		message:      init.Message,
		defaultValue: init.DefaultValue,
		page:         page,
	}, nil
}

func (d *Dialog) Channel() *connection.ChannelOwner {
	return d.channel
}

// Type returns alert, beforeunload, confirm or prompt.
func (d *Dialog) Type() string {
	return d.typ
}

func (d *Dialog) Message() string {
	return d.message
}

// DefaultValue returns the default prompt value.
func (d *Dialog) DefaultValue() string {
	return d.defaultValue
}

// Page returns the page that opened the dialog.
func (d *Dialog) Page() *Page {
	return d.page
}

// Accept confirms the dialog. promptText is only used by prompts.
func (d *Dialog) Accept(ctx context.Context, promptText string) error {
	_, err := d.channel.Send(ctx, "accept", map[string]any{"promptText": promptText})
	return err
}

// Dismiss cancels the dialog.
func (d *Dialog) Dismiss(ctx context.Context) error {
	_, err := d.channel.Send(ctx, "dismiss", nil)
	return err
}

func (d *Dialog) dismissNoWait() {
	if err := d.channel.SendNoWait("dismiss", nil); err != nil {
		d.channel.Connection().Logger().Debug("Dismissing unhandled dialog failed", slog.Any("error", err))
	}
}
