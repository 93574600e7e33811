package driver

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Options configures how the Playwright driver is located and started.
type Options struct {
	// NodePath and CLIPath start the driver as `node <cli.js> run-driver`.
	// When either is empty the driver managed by playwright-go is used.
	NodePath string
	CLIPath  string

	// DriverDirectory is where playwright-go installs the driver. Empty uses its default cache directory.
	DriverDirectory string
	// Browsers lists the browsers installed alongside the driver. Empty installs all of them.
	Browsers []string
	// SkipInstall starts an already installed driver without checking its version.
	SkipInstall bool
	// SkipBrowserDownload installs the driver without browsers.
	SkipBrowserDownload bool

	// BrowsersPath, DownloadHost and SkipBrowserDownload are passed on to the driver process.
	BrowsersPath string
	DownloadHost string

	// Env is appended to the environment of the driver process.
	Env []string

	// Stderr receives the driver's stderr. Nil discards it; the last lines are kept for ExitErr either way.
	Stderr io.Writer
	// StderrTail is the number of stderr lines kept. Default: 50
	StderrTail uint64
	// StopTimeout is how long Stop waits for the driver to exit after closing its stdin. Default: 5s
	StopTimeout time.Duration

	// Logger is used for driver lifecycle logs. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns the default driver options.
func DefaultOptions() Options {
	return Options{
		StderrTail:  50,
		StopTimeout: 5 * time.Second,
	}
}

// OptionsFromEnv returns the default options overridden by the PLAYWRIGHT_* environment variables.
func OptionsFromEnv() Options {
	return optionsFromLookup(os.LookupEnv)
}

func optionsFromLookup(lookup func(string) (string, bool)) Options {
	opts := DefaultOptions()

	if v, ok := lookup("PLAYWRIGHT_NODEJS_PATH"); ok {
		opts.NodePath = v
	}
	if v, ok := lookup("PLAYWRIGHT_DRIVER_PATH"); ok {
		opts.CLIPath = v
	}
	if v, ok := lookup("PLAYWRIGHT_DRIVER_TMPDIR"); ok {
		opts.DriverDirectory = v
	}
	if v, ok := lookup("PLAYWRIGHT_SKIP_BROWSER_DOWNLOAD"); ok {
		skip, err := strconv.ParseBool(v)
		opts.SkipBrowserDownload = err != nil || skip
	}
	if v, ok := lookup("PLAYWRIGHT_BROWSERS_PATH"); ok {
		opts.BrowsersPath = v
	}
	if v, ok := lookup("PLAYWRIGHT_DOWNLOAD_HOST"); ok {
		opts.DownloadHost = v
	}

	return opts
}
