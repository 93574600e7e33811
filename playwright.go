package pwire

import (
	"context"
	"time"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/protocol"
)

// Playwright is the entry object returned by the initialize handshake.
type Playwright struct {
	channel  *connection.ChannelOwner
	timeouts *TimeoutSettings

	chromium *BrowserType
	firefox  *BrowserType
	webkit   *BrowserType
}

var _ connection.Object = (*Playwright)(nil)

func newPlaywright(owner *connection.ChannelOwner) (connection.Object, error) {
	var init struct {
		Chromium *protocol.ObjectRef `json:"chromium"`
		Firefox  *protocol.ObjectRef `json:"firefox"`
		WebKit   *protocol.ObjectRef `json:"webkit"`
	}
	if err := owner.DecodeInitializer(&init); err != nil {
		return nil, err
	}

	pw := &Playwright{
		channel:  owner,
		timeouts: newTimeoutSettings(nil),
	}
	for _, bt := range []struct {
		ref    *protocol.ObjectRef
		target **BrowserType
	}{
		{init.Chromium, &pw.chromium},
		{init.Firefox, &pw.firefox},
		{init.WebKit, &pw.webkit},
	} {
		browserType, err := objectFromRef[*BrowserType](owner.Connection(), bt.ref)
		if err != nil {
			return nil, err
		}
		if browserType != nil {
			browserType.timeouts.parent = pw.timeouts
		}
		*bt.target = browserType
	}

	return pw, nil
}

func (p *Playwright) Channel() *connection.ChannelOwner {
	return p.channel
}

func (p *Playwright) timeoutSettings() *TimeoutSettings {
	return p.timeouts
}

// Timeouts returns the settings all browsers launched through this object inherit.
func (p *Playwright) Timeouts() *TimeoutSettings {
	return p.timeouts
}

func (p *Playwright) Chromium() *BrowserType {
	return p.chromium
}

func (p *Playwright) Firefox() *BrowserType {
	return p.firefox
}

func (p *Playwright) WebKit() *BrowserType {
	return p.webkit
}

// BrowserType launches browsers of one engine.
type BrowserType struct {
	channel  *connection.ChannelOwner
	timeouts *TimeoutSettings

	name           string
	executablePath string
}

func newBrowserType(owner *connection.ChannelOwner) (connection.Object, error) {
	var init struct {
		Name           string `json:"name"`
		ExecutablePath string `json:"executablePath"`
	}
	if err := owner.DecodeInitializer(&init); err != nil {
		return nil, err
	}
	return &BrowserType{
		channel:        owner,
		timeouts:       newTimeoutSettings(nil),
		name:           init.Name,
		executablePath: init.ExecutablePath,
	}, nil
}

func (t *BrowserType) Channel() *connection.ChannelOwner {
	return t.channel
}

func (t *BrowserType) timeoutSettings() *TimeoutSettings {
	return t.timeouts
}

// Name returns chromium, firefox or webkit.
func (t *BrowserType) Name() string {
	return t.name
}

// ExecutablePath returns the path of the bundled browser executable.
func (t *BrowserType) ExecutablePath() string {
	return t.executablePath
}

// BrowserTypeLaunchOptions configures BrowserType.Launch.
type BrowserTypeLaunchOptions struct {
	// Headless defaults to true.
	Headless       *bool
	Args           []string
	Channel        string
	ExecutablePath string
	Env            map[string]string
	SlowMo         time.Duration
	// Timeout defaults to DefaultLaunchTimeout.
	Timeout time.Duration
}

type launchParams struct {
	Headless       *bool       `json:"headless,omitempty"`
	Args           []string    `json:"args,omitempty"`
	Channel        string      `json:"channel,omitempty"`
	ExecutablePath string      `json:"executablePath,omitempty"`
	Env            []nameValue `json:"env,omitempty"`
	SlowMo         float64     `json:"slowMo,omitempty"`
	Timeout        float64     `json:"timeout"`
}

// Launch starts a new browser.
func (t *BrowserType) Launch(ctx context.Context, options BrowserTypeLaunchOptions) (*Browser, error) {
	params := launchParams{
		Headless:       options.Headless,
		Args:           options.Args,
		Channel:        options.Channel,
		ExecutablePath: options.ExecutablePath,
		Env:            toNameValues(options.Env),
		SlowMo:         float64(options.SlowMo.Milliseconds()),
		Timeout:        milliseconds(options.Timeout, DefaultLaunchTimeout),
	}
	browser, err := sendForObject[*Browser](ctx, t.channel, "launch", params, "browser")
	if err != nil {
		return nil, err
	}
	if browser == nil {
		return nil, errNoObject("launch", "browser")
	}
	return browser, nil
}
