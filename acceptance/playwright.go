//go:build acceptance
// +build acceptance

package acceptance

import (
	"os"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"
)

// observeEventSource keeps the last EventSource in window._frameStream so tests can wait for the live stream.
const observeEventSource = `(() => {
	const Original = window.EventSource;
	window.EventSource = function (url, init) {
		const source = new Original(url, init);
		window._frameStream = source;
		return source;
	};
	window.EventSource.prototype = Original.prototype;
})();`

// InspectorBrowser is a Chromium driven by playwright-go that looks at the inspector.
// It does not share a driver with the pwire instance under test.
type InspectorBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewInspectorBrowser launches the browser and stops it when the test finishes.
// Set HEADLESS=false to watch the inspector while debugging.
func NewInspectorBrowser(t *testing.T) *InspectorBrowser {
	t.Helper()

	pw, err := playwright.Run()
	require.NoError(t, err, "failed to start playwright-go")

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(os.Getenv("HEADLESS") != "false"),
	})
	if err != nil {
		_ = pw.Stop()
	}
	require.NoError(t, err, "failed to launch inspector browser")

	ib := &InspectorBrowser{pw: pw, browser: browser}
	t.Cleanup(ib.close)
	return ib
}

// OpenInspector opens inspectorURL in a fresh context and waits until the frame stream is connected.
func (ib *InspectorBrowser) OpenInspector(t *testing.T, inspectorURL string) *InspectorPage {
	t.Helper()

	ctx, err := ib.browser.NewContext()
	require.NoError(t, err, "failed to create browser context")
	t.Cleanup(func() { _ = ctx.Close() })

	err = ctx.AddInitScript(playwright.Script{Content: playwright.String(observeEventSource)})
	require.NoError(t, err)

	page, err := ctx.NewPage()
	require.NoError(t, err)

	_, err = page.Goto(inspectorURL)
	require.NoError(t, err)

	ip := &InspectorPage{Page: page, InspectorURL: inspectorURL, t: t}
	ip.WaitForStream()
	return ip
}

func (ib *InspectorBrowser) close() {
	_ = ib.browser.Close()
	_ = ib.pw.Stop()
}
