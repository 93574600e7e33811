//go:build acceptance
// +build acceptance

package acceptance

import (
	"testing"
)

// TestFixtures bundles all commonly needed test fixtures.
type TestFixtures struct {
	App       *TestApp
	Browser   *InspectorBrowser
	Inspector *InspectorPage
}

// WithTestFixtures creates all fixtures, registers cleanup with t.Cleanup(), and calls the test function.
func WithTestFixtures(t *testing.T, fn func(t *testing.T, f *TestFixtures)) {
	t.Helper()

	app := NewTestApp(t)
	t.Cleanup(func() { app.Close() })

	browser := NewInspectorBrowser(t)

	fn(t, &TestFixtures{
		App:       app,
		Browser:   browser,
		Inspector: browser.OpenInspector(t, app.InspectorURL),
	})
}

// WithTestApp creates only the pwire test app, for tests that do not look at the inspector.
func WithTestApp(t *testing.T, fn func(t *testing.T, app *TestApp)) {
	t.Helper()

	app := NewTestApp(t)
	t.Cleanup(func() { app.Close() })

	fn(t, app)
}
