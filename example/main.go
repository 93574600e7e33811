package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	slogmulti "github.com/samber/slog-multi"

	"github.com/networkteam/pwire"
)

func main() {
	// 1. Set up slog, pwire adds its own log collection for the inspector

	logger := slog.New(
		slogmulti.Fanout(
			// Log info to stderr
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		),
	)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Start the driver and launch a headless browser

	inst, err := pwire.RunWithOptions(ctx, pwire.Options{
		Logger:         logger,
		DefaultTimeout: 15 * time.Second,
	})
	if err != nil {
		logger.Error("Failed to start driver", slog.Group("error", slog.String("message", err.Error())))
		os.Exit(1)
	}
	defer inst.Close()

	browser, err := inst.Chromium().Launch(ctx, pwire.BrowserTypeLaunchOptions{})
	if err != nil {
		logger.Error("Failed to launch browser", slog.Group("error", slog.String("message", err.Error())))
		os.Exit(1)
	}
	browser.OnDisconnected(func(*pwire.Browser) {
		logger.Warn("Browser disconnected")
	})

	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !browser.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// 3. Render pages on request

	http.HandleFunc("/title", func(w http.ResponseWriter, r *http.Request) {
		logger := slog.With("component", "http", "handler", "/title")

		page, err := openPage(r.Context(), browser, r.URL.Query().Get("url"))
		if err != nil {
			logger.Error("Failed to open page", slog.Any("err", err.Error()))
			http.Error(w, "Failed to open page", http.StatusBadGateway)
			return
		}
		defer closePage(page)

		title, err := page.Title(r.Context())
		if err != nil {
			logger.Error("Failed to get title", slog.Any("err", err.Error()))
			http.Error(w, "Failed to get title", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(title))
	})

	http.HandleFunc("/screenshot", func(w http.ResponseWriter, r *http.Request) {
		logger := slog.With("component", "http", "handler", "/screenshot")

		page, err := openPage(r.Context(), browser, r.URL.Query().Get("url"))
		if err != nil {
			logger.Error("Failed to open page", slog.Any("err", err.Error()))
			http.Error(w, "Failed to open page", http.StatusBadGateway)
			return
		}
		defer closePage(page)

		png, err := page.Screenshot(r.Context(), pwire.ScreenshotOptions{FullPage: true})
		if err != nil {
			logger.Error("Failed to take screenshot", slog.Any("err", err.Error()))
			http.Error(w, "Failed to take screenshot", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	})

	// 4. Mount the protocol inspector

	http.Handle("/_pwire/", http.StripPrefix("/_pwire", inst.InspectorHandler("/_pwire")))

	// Run the server

	server := &http.Server{Addr: ":1095"}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting server on :1095")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Failed to start server", slog.Group("error", slog.String("message", err.Error())))
		stop()
	}
	wg.Wait()
}

func openPage(ctx context.Context, browser *pwire.Browser, url string) (*pwire.Page, error) {
	if url == "" {
		url = "https://example.com/"
	}
	page, err := browser.NewPage(ctx, pwire.BrowserNewContextOptions{})
	if err != nil {
		return nil, err
	}
	page.OnConsole(func(msg *pwire.ConsoleMessage) {
		slog.Debug("Console message", slog.String("type", msg.Type()), slog.String("text", msg.Text()))
	})
	if _, err := page.Goto(ctx, url, pwire.GotoOptions{}); err != nil {
		closePage(page)
		return nil, err
	}
	return page, nil
}

func closePage(page *pwire.Page) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = page.Close(ctx, pwire.PageCloseOptions{})
}
