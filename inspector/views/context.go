//go:generate go run github.com/a-h/templ/cmd/templ generate

package views

import "context"

type HandlerOptions struct {
	// PathPrefix is where the inspector is mounted, without trailing slash.
	PathPrefix string
	// TruncateAfter is the number of frames shown in the list.
	TruncateAfter int
}

type handlerOptionsKey struct{}

// WithHandlerOptions stores options for components rendered during a request.
func WithHandlerOptions(ctx context.Context, opts HandlerOptions) context.Context {
	return context.WithValue(ctx, handlerOptionsKey{}, opts)
}

func MustGetHandlerOptions(ctx context.Context) HandlerOptions {
	opts, ok := ctx.Value(handlerOptionsKey{}).(HandlerOptions)
	if !ok {
		panic("handler options not set in context")
	}
	return opts
}

func path(ctx context.Context, p string) string {
	return MustGetHandlerOptions(ctx).PathPrefix + p
}
