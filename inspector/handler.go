// Package inspector serves a live view of the protocol traffic of a connection.
package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/a-h/templ"
	"github.com/gofrs/uuid"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/inspector/views"
	"github.com/networkteam/pwire/trace"
)

// ObjectSource lists the remote objects of a connection. *connection.Connection implements it.
type ObjectSource interface {
	Objects() []connection.ObjectInfo
	PendingCalls() int
}

// Sources are the data shown by the inspector. Logs and Objects are optional.
type Sources struct {
	Frames  *trace.Collector
	Logs    *trace.LogCollector
	Objects ObjectSource
}

type Handler struct {
	sources Sources
	options handlerOptions

	mux http.Handler
}

// NewHandler creates an inspector handler.
func NewHandler(sources Sources, opts ...HandlerOption) *Handler {
	options := handlerOptions{
		TruncateAfter: 200,
		LogLimit:      500,
	}
	for _, opt := range opts {
		opt(&options)
	}
	options.PathPrefix = strings.TrimSuffix(options.PathPrefix, "/")

	mux := http.NewServeMux()
	handler := &Handler{
		sources: sources,
		options: options,
		mux:     setHandlerOptions(options, mux),
	}

	mux.HandleFunc("GET /{$}", handler.root)
	mux.HandleFunc("GET /frame/{frameId}", handler.getFrameDetails)
	mux.HandleFunc("GET /frames-sse", handler.getFramesSSE)
	mux.HandleFunc("GET /objects", handler.getObjects)
	mux.HandleFunc("GET /logs", handler.getLogs)

	return handler
}

func setHandlerOptions(options handlerOptions, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := views.WithHandlerOptions(r.Context(), views.HandlerOptions{
			PathPrefix:    options.PathPrefix,
			TruncateAfter: options.TruncateAfter,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	var selected *trace.Frame
	if idStr := r.URL.Query().Get("id"); idStr != "" {
		frameID, err := uuid.FromString(idStr)
		if err != nil {
			http.Error(w, "Invalid frame id", http.StatusBadRequest)
			return
		}
		frame, exists := h.sources.Frames.Lookup(frameID)
		if !exists {
			http.Redirect(w, r, h.options.PathPrefix+"/", http.StatusTemporaryRedirect)
			return
		}
		selected = &frame
	}

	props := views.InspectorProps{
		SelectedFrame: selected,
		Frames:        h.recentFrames(),
		DroppedFrames: h.sources.Frames.Dropped(),
	}
	if h.sources.Objects != nil {
		props.ObjectCount = len(h.sources.Objects.Objects())
		props.PendingCalls = h.sources.Objects.PendingCalls()
	}

	templ.Handler(views.Inspector(props)).ServeHTTP(w, r)
}

func (h *Handler) getFrameDetails(w http.ResponseWriter, r *http.Request) {
	frameID, err := uuid.FromString(r.PathValue("frameId"))
	if err != nil {
		http.Error(w, "Invalid frame id", http.StatusBadRequest)
		return
	}
	frame, exists := h.sources.Frames.Lookup(frameID)
	if !exists {
		http.Error(w, "Frame not found", http.StatusNotFound)
		return
	}

	templ.Handler(views.FrameDetail(frame)).ServeHTTP(w, r)
}

// getFramesSSE streams new frames as rendered list items.
func (h *Handler) getFramesSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frameCh := h.sources.Frames.Subscribe(ctx)

	fmt.Fprintf(w, "event: keepalive\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frameCh:
			if !ok {
				return
			}

			fmt.Fprintf(w, "event: new-frame\ndata: ")
			if err := views.FrameListItem(frame, nil).Render(ctx, w); err != nil {
				return
			}
			fmt.Fprintf(w, "\n\n")
			flusher.Flush()
		}
	}
}

func (h *Handler) getObjects(w http.ResponseWriter, r *http.Request) {
	objects := []connection.ObjectInfo{}
	if h.sources.Objects != nil {
		objects = h.sources.Objects.Objects()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(objects); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) getLogs(w http.ResponseWriter, r *http.Request) {
	if h.sources.Logs == nil {
		http.Error(w, "Log collection is disabled", http.StatusNotFound)
		return
	}
	records := h.sources.Logs.Tail(h.options.LogLimit)
	slices.Reverse(records)

	templ.Handler(views.LogList(records)).ServeHTTP(w, r)
}

func (h *Handler) recentFrames() []trace.Frame {
	frames := h.sources.Frames.Tail(h.options.TruncateAfter)
	slices.Reverse(frames)
	return frames
}
