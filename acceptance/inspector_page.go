//go:build acceptance
// +build acceptance

package acceptance

import (
	"fmt"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"
)

// InspectorPage provides helper methods for interacting with the pwire inspector.
// It implements the Page Object pattern for cleaner test code.
type InspectorPage struct {
	Page         playwright.Page
	InspectorURL string
	t            *testing.T
}

// WaitForStream waits until the frame stream is open.
func (ip *InspectorPage) WaitForStream() {
	ip.t.Helper()

	_, err := ip.Page.WaitForFunction(`() => window._frameStream && window._frameStream.readyState === 1`, nil, playwright.PageWaitForFunctionOptions{
		Timeout: playwright.Float(5000),
		Polling: playwright.Float(100),
	})
	require.NoError(ip.t, err, "failed to establish SSE connection")
}

// FrameCount returns the number of frames currently shown.
func (ip *InspectorPage) FrameCount() int {
	ip.t.Helper()

	count, err := ip.Page.Locator("#frame-list > li.frame").Count()
	require.NoError(ip.t, err)
	return count
}

// WaitForFrameCount waits until at least expectedCount frames are shown.
func (ip *InspectorPage) WaitForFrameCount(expectedCount int, timeout float64) {
	ip.t.Helper()

	selector := fmt.Sprintf("#frame-list > li.frame:nth-child(%d)", expectedCount)
	err := ip.Page.Locator(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(timeout),
	})
	require.NoError(ip.t, err, "failed to wait for %d frames", expectedCount)
}

// frameLocator matches frames of method, newest first.
func (ip *InspectorPage) frameLocator(method string) playwright.Locator {
	return ip.Page.Locator("#frame-list > li.frame").Filter(playwright.LocatorFilterOptions{
		Has: ip.Page.Locator(fmt.Sprintf(".method:text-is(%q)", method)),
	})
}

// WaitForFrame waits until a frame of method is shown.
func (ip *InspectorPage) WaitForFrame(method string, timeout float64) {
	ip.t.Helper()

	err := ip.frameLocator(method).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(timeout),
	})
	require.NoError(ip.t, err, "failed to wait for a %s frame", method)
}

// ClickFrame opens the newest frame of method and waits for its details.
func (ip *InspectorPage) ClickFrame(method string) {
	ip.t.Helper()

	err := ip.frameLocator(method).First().Locator("a").Click()
	require.NoError(ip.t, err, "failed to click %s frame", method)

	err = ip.Page.Locator("#frame-detail h2").WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(5000),
	})
	require.NoError(ip.t, err, "failed to wait for frame details")
}

// FrameDetailText returns the text content of the frame detail panel.
func (ip *InspectorPage) FrameDetailText() string {
	ip.t.Helper()

	text, err := ip.Page.Locator("#frame-detail").TextContent()
	require.NoError(ip.t, err)
	return text
}

// Reload reloads the inspector and waits for the stream to reconnect.
func (ip *InspectorPage) Reload() {
	ip.t.Helper()

	_, err := ip.Page.Reload()
	require.NoError(ip.t, err, "failed to reload page")
	ip.WaitForStream()
}
