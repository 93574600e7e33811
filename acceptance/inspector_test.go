//go:build acceptance
// +build acceptance

package acceptance

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkteam/pwire"
	"github.com/networkteam/pwire/connection"
)

// TestInspectorAccess verifies the inspector shows the handshake traffic.
func TestInspectorAccess(t *testing.T) {
	t.Parallel()

	WithTestFixtures(t, func(t *testing.T, f *TestFixtures) {
		f.Inspector.WaitForFrame("initialize", 5000)
		f.Inspector.WaitForFrame("launch", 5000)

		title, err := f.Inspector.Page.Title()
		require.NoError(t, err)
		assert.Equal(t, "pwire inspector", title)
	})
}

// TestInspectorRealTimeUpdates verifies new frames appear via SSE without a reload.
func TestInspectorRealTimeUpdates(t *testing.T) {
	t.Parallel()

	WithTestFixtures(t, func(t *testing.T, f *TestFixtures) {
		before := f.Inspector.FrameCount()

		page := f.App.NewPage(t)
		_, err := page.Goto(context.Background(), f.App.AppURL+"/", pwire.GotoOptions{})
		require.NoError(t, err)

		f.Inspector.WaitForFrame("goto", 10000)
		assert.Greater(t, f.Inspector.FrameCount(), before)
	})
}

// TestInspectorFrameDetails verifies clicking a frame shows its payload.
func TestInspectorFrameDetails(t *testing.T) {
	t.Parallel()

	WithTestFixtures(t, func(t *testing.T, f *TestFixtures) {
		page := f.App.NewPage(t)
		_, err := page.Goto(context.Background(), f.App.AppURL+"/", pwire.GotoOptions{})
		require.NoError(t, err)

		f.Inspector.WaitForFrame("goto", 10000)
		f.Inspector.ClickFrame("goto")

		details := f.Inspector.FrameDetailText()
		assert.Contains(t, details, "goto")
		assert.Contains(t, details, f.App.AppURL)
	})
}

// TestInspectorObjects verifies the object registry snapshot.
func TestInspectorObjects(t *testing.T) {
	t.Parallel()

	WithTestFixtures(t, func(t *testing.T, f *TestFixtures) {
		f.App.NewPage(t)

		resp, err := http.Get(f.App.InspectorURL + "objects")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var objects []connection.ObjectInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&objects))

		types := make(map[string]int)
		for _, obj := range objects {
			types[obj.Type]++
		}
		assert.Equal(t, 1, types["Playwright"])
		assert.Equal(t, 1, types["Browser"])
		assert.GreaterOrEqual(t, types["Page"], 1)
	})
}

// TestInspectorReload verifies the frame list survives a reload and the stream reconnects.
func TestInspectorReload(t *testing.T) {
	t.Parallel()

	WithTestFixtures(t, func(t *testing.T, f *TestFixtures) {
		f.Inspector.WaitForFrame("launch", 5000)
		f.Inspector.Reload()
		f.Inspector.WaitForFrame("launch", 5000)

		page := f.App.NewPage(t)
		_, err := page.Title(context.Background())
		require.NoError(t, err)
		f.Inspector.WaitForFrame("title", 5000)
	})
}
