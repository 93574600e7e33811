//go:build acceptance
// +build acceptance

package acceptance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/networkteam/pwire"
	"github.com/networkteam/pwire/driver"
)

const formPage = `<!DOCTYPE html>
<html>
<head><title>Signup</title></head>
<body>
  <form id="signup" onsubmit="event.preventDefault(); document.getElementById('result').textContent = 'Hello ' + this.name.value;">
    <input name="name" placeholder="Name">
    <button type="submit">Sign up</button>
  </form>
  <p id="result"></p>
  <img src="/static/logo.png" alt="logo">
</body>
</html>`

const consolePage = `<!DOCTYPE html>
<html>
<head><title>Console</title></head>
<body>
  <button onclick="console.log('clicked', 42)">Log</button>
  <button onclick="document.getElementById('answer').textContent = prompt('Name?') || 'nobody'">Ask</button>
  <p id="answer"></p>
</body>
</html>`

// TestApp is a pwire instance talking to a real driver, a web app for it to browse
// and an HTTP server exposing its inspector.
type TestApp struct {
	Instance *pwire.Instance
	Browser  *pwire.Browser

	// AppServer serves the pages browsed through pwire.
	AppServer *httptest.Server
	AppURL    string

	// InspectorServer serves the inspector of Instance.
	InspectorServer *httptest.Server
	InspectorURL    string
}

// NewTestApp starts the driver, launches a headless Chromium and serves the test pages.
func NewTestApp(t *testing.T) *TestApp {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, formPage)
	})
	mux.HandleFunc("GET /console", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, consolePage)
	})
	mux.HandleFunc("GET /api/test", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	appServer := httptest.NewServer(mux)

	level := slog.LevelWarn
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	driverOptions := driver.OptionsFromEnv()
	driverOptions.Browsers = []string{"chromium"}

	inst, err := pwire.RunWithOptions(context.Background(), pwire.Options{
		Driver:         &driverOptions,
		Logger:         slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		DefaultTimeout: 10 * time.Second,
	})
	require.NoError(t, err, "failed to start pwire")

	headless := os.Getenv("HEADLESS") != "false"
	browser, err := inst.Chromium().Launch(context.Background(), pwire.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		inst.Close()
		appServer.Close()
		require.NoError(t, err, "failed to launch browser")
	}

	inspectorMux := http.NewServeMux()
	inspectorMux.Handle("/_pwire/", http.StripPrefix("/_pwire", inst.InspectorHandler("/_pwire")))
	inspectorServer := httptest.NewServer(inspectorMux)

	return &TestApp{
		Instance:        inst,
		Browser:         browser,
		AppServer:       appServer,
		AppURL:          appServer.URL,
		InspectorServer: inspectorServer,
		InspectorURL:    inspectorServer.URL + "/_pwire/",
	}
}

// NewPage opens a page in a fresh context. The context is closed with the test.
func (ta *TestApp) NewPage(t *testing.T) *pwire.Page {
	t.Helper()

	page, err := ta.Browser.NewPage(context.Background(), pwire.BrowserNewContextOptions{})
	require.NoError(t, err, "failed to open page")
	t.Cleanup(func() {
		_ = page.Close(context.Background(), pwire.PageCloseOptions{})
	})
	return page
}

// Close shuts down the browser, the driver and the servers.
func (ta *TestApp) Close() {
	ta.InspectorServer.Close()
	_ = ta.Browser.Close(context.Background())
	ta.Instance.Close()
	ta.AppServer.Close()
}
