package inspector

// handlerOptions holds configuration for a Handler.
type handlerOptions struct {
	// PathPrefix is where the handler is mounted (e.g. "/_pwire").
	PathPrefix string
	// TruncateAfter limits the number of frames shown in the frame list.
	TruncateAfter int
	// LogLimit limits the number of log records shown.
	LogLimit int
}

// HandlerOption configures a Handler.
type HandlerOption func(*handlerOptions)

// WithPathPrefix sets the path prefix where the handler is mounted, e.g. "/_pwire".
// It is used for generating URLs in the inspector.
func WithPathPrefix(prefix string) HandlerOption {
	return func(o *handlerOptions) {
		o.PathPrefix = prefix
	}
}

// WithTruncateAfter limits the number of frames shown in the frame list.
// Default is 200.
func WithTruncateAfter(limit int) HandlerOption {
	return func(o *handlerOptions) {
		o.TruncateAfter = limit
	}
}

// WithLogLimit limits the number of log records shown.
// Default is 500.
func WithLogLimit(limit int) HandlerOption {
	return func(o *handlerOptions) {
		o.LogLimit = limit
	}
}
