//go:build acceptance
// +build acceptance

package acceptance

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkteam/pwire"
	"github.com/networkteam/pwire/protocol"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

// TestNavigation verifies goto, the response and the page title.
func TestNavigation(t *testing.T) {
	t.Parallel()

	WithTestApp(t, func(t *testing.T, app *TestApp) {
		ctx := context.Background()
		page := app.NewPage(t)

		response, err := page.Goto(ctx, app.AppURL+"/", pwire.GotoOptions{})
		require.NoError(t, err)
		require.NotNil(t, response)
		assert.Equal(t, 200, response.Status())
		assert.True(t, response.Ok())

		title, err := page.Title(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Signup", title)
		assert.Equal(t, app.AppURL+"/", page.URL())
	})
}

// TestFormInteraction verifies fill, click and text content.
func TestFormInteraction(t *testing.T) {
	t.Parallel()

	WithTestApp(t, func(t *testing.T, app *TestApp) {
		ctx := context.Background()
		page := app.NewPage(t)

		_, err := page.Goto(ctx, app.AppURL+"/", pwire.GotoOptions{})
		require.NoError(t, err)

		require.NoError(t, page.Fill(ctx, "input[name=name]", "Ada", pwire.FillOptions{}))
		require.NoError(t, page.Click(ctx, "button[type=submit]", pwire.ClickOptions{}))

		text, err := page.TextContent(ctx, "#result")
		require.NoError(t, err)
		require.NotNil(t, text)
		assert.Equal(t, "Hello Ada", *text)
	})
}

// TestEvaluate verifies argument serialization and value parsing against a real page.
func TestEvaluate(t *testing.T) {
	t.Parallel()

	WithTestApp(t, func(t *testing.T, app *TestApp) {
		ctx := context.Background()
		page := app.NewPage(t)

		sum, err := page.Evaluate(ctx, "([a, b]) => a + b", []any{1, 2})
		require.NoError(t, err)
		assert.Equal(t, 3, sum)

		value, err := page.Evaluate(ctx, "() => ({ pi: 3.5, nothing: null, list: ['a'], nan: NaN })", nil)
		require.NoError(t, err)
		obj, ok := value.(*protocol.Object)
		require.True(t, ok, "expected an object, got %T", value)
		pi, _ := obj.Get("pi")
		assert.Equal(t, 3.5, pi)
		list, _ := obj.Get("list")
		assert.Equal(t, []any{"a"}, list)

		handle, err := page.EvaluateHandle(ctx, "() => document.body", nil)
		require.NoError(t, err)
		assert.NotNil(t, handle.AsElement())
		require.NoError(t, handle.Dispose(ctx))
	})
}

// TestConsoleEvents verifies console messages are delivered to page listeners.
func TestConsoleEvents(t *testing.T) {
	t.Parallel()

	WithTestApp(t, func(t *testing.T, app *TestApp) {
		ctx := context.Background()
		page := app.NewPage(t)

		messages := make(chan *pwire.ConsoleMessage, 10)
		page.OnConsole(func(msg *pwire.ConsoleMessage) {
			messages <- msg
		})

		_, err := page.Goto(ctx, app.AppURL+"/console", pwire.GotoOptions{})
		require.NoError(t, err)
		require.NoError(t, page.Click(ctx, "button:has-text('Log')", pwire.ClickOptions{}))

		msg := receive(t, messages)
		assert.Equal(t, "log", msg.Type())
		assert.Equal(t, "clicked 42", msg.Text())
		assert.Len(t, msg.Args(), 2)
	})
}

// TestDialogs verifies handled prompts are answered.
func TestDialogs(t *testing.T) {
	t.Parallel()

	WithTestApp(t, func(t *testing.T, app *TestApp) {
		ctx := context.Background()
		page := app.NewPage(t)

		page.OnDialog(func(d *pwire.Dialog) {
			assert.NoError(t, d.Accept(ctx, "Ada"))
		})

		_, err := page.Goto(ctx, app.AppURL+"/console", pwire.GotoOptions{})
		require.NoError(t, err)
		require.NoError(t, page.Click(ctx, "button:has-text('Ask')", pwire.ClickOptions{}))

		text, err := page.TextContent(ctx, "#answer")
		require.NoError(t, err)
		require.NotNil(t, text)
		assert.Equal(t, "Ada", *text)
	})
}

// TestUnhandledDialogIsDismissed verifies a prompt without listener does not block the page.
func TestUnhandledDialogIsDismissed(t *testing.T) {
	t.Parallel()

	WithTestApp(t, func(t *testing.T, app *TestApp) {
		ctx := context.Background()
		page := app.NewPage(t)

		_, err := page.Goto(ctx, app.AppURL+"/console", pwire.GotoOptions{})
		require.NoError(t, err)
		require.NoError(t, page.Click(ctx, "button:has-text('Ask')", pwire.ClickOptions{}))

		text, err := page.TextContent(ctx, "#answer")
		require.NoError(t, err)
		require.NotNil(t, text)
		assert.Equal(t, "nobody", *text)
	})
}

// TestRouteFulfill verifies intercepted requests are answered by the client.
func TestRouteFulfill(t *testing.T) {
	t.Parallel()

	WithTestApp(t, func(t *testing.T, app *TestApp) {
		ctx := context.Background()
		page := app.NewPage(t)

		routed := make(chan string, 1)
		err := page.Context().Route(ctx, "**/*.png", func(route *pwire.Route) {
			routed <- route.Request().URL()
			assert.NoError(t, route.Fulfill(ctx, pwire.RouteFulfillOptions{
				ContentType: "image/png",
				Body:        []byte{0x89, 'P', 'N', 'G'},
			}))
		})
		require.NoError(t, err)

		_, err = page.Goto(ctx, app.AppURL+"/", pwire.GotoOptions{})
		require.NoError(t, err)

		assert.Equal(t, app.AppURL+"/static/logo.png", receive(t, routed))
	})
}

// TestScreenshot verifies binary results.
func TestScreenshot(t *testing.T) {
	t.Parallel()

	WithTestApp(t, func(t *testing.T, app *TestApp) {
		ctx := context.Background()
		page := app.NewPage(t)

		_, err := page.Goto(ctx, app.AppURL+"/", pwire.GotoOptions{})
		require.NoError(t, err)

		png, err := page.Screenshot(ctx, pwire.ScreenshotOptions{})
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "expected PNG data")
	})
}

// TestTimeoutError verifies driver timeouts match protocol.ErrTimeout.
func TestTimeoutError(t *testing.T) {
	t.Parallel()

	WithTestApp(t, func(t *testing.T, app *TestApp) {
		ctx := context.Background()
		page := app.NewPage(t)

		_, err := page.Goto(ctx, app.AppURL+"/", pwire.GotoOptions{})
		require.NoError(t, err)

		_, err = page.WaitForSelector(ctx, "#missing", pwire.WaitForSelectorOptions{Timeout: 500 * time.Millisecond})
		require.Error(t, err)
		assert.ErrorIs(t, err, protocol.ErrTimeout)
	})
}

// TestPageCloseEvent verifies close events and page bookkeeping.
func TestPageCloseEvent(t *testing.T) {
	t.Parallel()

	WithTestApp(t, func(t *testing.T, app *TestApp) {
		ctx := context.Background()
		page := app.NewPage(t)
		bc := page.Context()

		closed := make(chan *pwire.Page, 1)
		page.OnClose(func(p *pwire.Page) {
			closed <- p
		})

		require.NoError(t, page.Close(ctx, pwire.PageCloseOptions{}))
		assert.Same(t, page, receive(t, closed))
		assert.True(t, page.IsClosed())
		assert.NotContains(t, bc.Pages(), page)
	})
}
