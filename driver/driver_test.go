package driver_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkteam/pwire/driver"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("PLAYWRIGHT_NODEJS_PATH", "/usr/bin/node")
	t.Setenv("PLAYWRIGHT_DRIVER_PATH", "/opt/playwright/cli.js")
	t.Setenv("PLAYWRIGHT_DRIVER_TMPDIR", "/tmp/pw")
	t.Setenv("PLAYWRIGHT_SKIP_BROWSER_DOWNLOAD", "1")
	t.Setenv("PLAYWRIGHT_BROWSERS_PATH", "/opt/browsers")
	t.Setenv("PLAYWRIGHT_DOWNLOAD_HOST", "https://mirror.example.com")

	opts := driver.OptionsFromEnv()

	assert.Equal(t, "/usr/bin/node", opts.NodePath)
	assert.Equal(t, "/opt/playwright/cli.js", opts.CLIPath)
	assert.Equal(t, "/tmp/pw", opts.DriverDirectory)
	assert.True(t, opts.SkipBrowserDownload)
	assert.Equal(t, "/opt/browsers", opts.BrowsersPath)
	assert.Equal(t, "https://mirror.example.com", opts.DownloadHost)
	assert.Equal(t, driver.DefaultOptions().StopTimeout, opts.StopTimeout)
}

func TestOptionsFromEnv_SkipBrowserDownloadFalse(t *testing.T) {
	t.Setenv("PLAYWRIGHT_SKIP_BROWSER_DOWNLOAD", "false")

	assert.False(t, driver.OptionsFromEnv().SkipBrowserDownload)
}

func TestEnvironment(t *testing.T) {
	d := driver.New(driver.Options{
		SkipBrowserDownload: true,
		BrowsersPath:        "/opt/browsers",
		DownloadHost:        "https://mirror.example.com",
		Env:                 []string{"DEBUG=pw:protocol"},
	})

	env := d.Environment()

	assert.Contains(t, env, "PW_LANG_NAME=go")
	assert.Contains(t, env, "PLAYWRIGHT_SKIP_BROWSER_DOWNLOAD=1")
	assert.Contains(t, env, "PLAYWRIGHT_BROWSERS_PATH=/opt/browsers")
	assert.Contains(t, env, "PLAYWRIGHT_DOWNLOAD_HOST=https://mirror.example.com")
	assert.Equal(t, "DEBUG=pw:protocol", env[len(env)-1])
}

// fakeDriver starts a shell script in place of node and cli.js.
func fakeDriver(t *testing.T, script string, stderr io.Writer) *driver.Driver {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	path := filepath.Join(t.TempDir(), "cli.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	d := driver.New(driver.Options{
		NodePath:    "/bin/sh",
		CLIPath:     path,
		Stderr:      stderr,
		StopTimeout: time.Second,
	})
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func TestDriver_StreamsAndStop(t *testing.T) {
	d := fakeDriver(t, "cat\n", nil)

	_, err := d.Stdin()
	require.ErrorIs(t, err, driver.ErrNotStarted)
	assert.False(t, d.IsRunning())

	require.NoError(t, d.Start(context.Background()))
	require.ErrorIs(t, d.Start(context.Background()), driver.ErrAlreadyStarted)
	assert.True(t, d.IsRunning())

	stdin, err := d.Stdin()
	require.NoError(t, err)
	stdout, err := d.Stdout()
	require.NoError(t, err)

	_, err = stdin.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(stdout, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())

	select {
	case <-d.Exited():
	default:
		t.Fatal("driver did not exit")
	}
	assert.False(t, d.IsRunning())
	assert.NoError(t, d.ExitErr())
}

func TestDriver_UnexpectedExitKeepsStderr(t *testing.T) {
	var stderr strings.Builder
	d := fakeDriver(t, "echo 'Error: cannot find module' >&2\necho 'at node:internal' >&2\nexit 3\n", &stderr)

	require.NoError(t, d.Start(context.Background()))

	select {
	case <-d.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not exit")
	}

	err := d.ExitErr()
	require.Error(t, err)

	var exitErr *driver.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, []string{"Error: cannot find module", "at node:internal"}, exitErr.Stderr)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, stderr.String(), "cannot find module")
}
