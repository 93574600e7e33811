package drivertest

import (
	"github.com/networkteam/pwire/protocol"
)

// GUIDs of the objects created by HandleInitialize.
const (
	PlaywrightGUID = "playwright"
	ChromiumGUID   = "browser-type@chromium"
	FirefoxGUID    = "browser-type@firefox"
	WebKitGUID     = "browser-type@webkit"
)

// HandleInitialize answers the initialize handshake with a Playwright object and the three browser types.
func (d *Driver) HandleInitialize() {
	d.Handle("initialize", func(call *protocol.Message) (any, error) {
		for _, bt := range []struct{ guid, name string }{
			{ChromiumGUID, "chromium"},
			{FirefoxGUID, "firefox"},
			{WebKitGUID, "webkit"},
		} {
			d.Create("", "BrowserType", bt.guid, map[string]any{
				"name":           bt.name,
				"executablePath": "/opt/browsers/" + bt.name,
			})
		}
		d.Create("", "Playwright", PlaywrightGUID, map[string]any{
			"chromium": protocol.ObjectRef{GUID: ChromiumGUID},
			"firefox":  protocol.ObjectRef{GUID: FirefoxGUID},
			"webkit":   protocol.ObjectRef{GUID: WebKitGUID},
		})
		return map[string]any{
			"playwright": protocol.ObjectRef{GUID: PlaywrightGUID},
		}, nil
	})
}
