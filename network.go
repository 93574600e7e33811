package pwire

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/samber/lo"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/protocol"
)

// Request is a network request issued by a page.
type Request struct {
	channel *connection.ChannelOwner

	url                 string
	method              string
	resourceType        string
	postData            []byte
	headers             map[string]string
	isNavigationRequest bool
	frame               *Frame
	redirectedFrom      *Request
}

func newRequest(owner *connection.ChannelOwner) (connection.Object, error) {
	var init struct {
		URL                 string              `json:"url"`
		Method              string              `json:"method"`
		ResourceType        string              `json:"resourceType"`
		PostData            string              `json:"postData"`
		Headers             []nameValue         `json:"headers"`
		IsNavigationRequest bool                `json:"isNavigationRequest"`
		Frame               *protocol.ObjectRef `json:"frame"`
		RedirectedFrom      *protocol.ObjectRef `json:"redirectedFrom"`
	}
	if err := owner.DecodeInitializer(&init); err != nil {
		return nil, err
	}

	r := &Request{
		channel:             owner,
		url:                 init.URL,
		method:              init.Method,
		resourceType:        init.ResourceType,
		headers:             fromNameValues(init.Headers),
		isNavigationRequest: init.IsNavigationRequest,
	}
	if init.PostData != "" {
		postData, err := base64.StdEncoding.DecodeString(init.PostData)
		if err != nil {
			return nil, err
		}
		r.postData = postData
	}

	conn := owner.Connection()
	var err error
	// Frames of service worker requests are unknown to the client.
	r.frame, _ = objectFromRef[*Frame](conn, init.Frame)
	if r.redirectedFrom, err = objectFromRef[*Request](conn, init.RedirectedFrom); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Request) Channel() *connection.ChannelOwner {
	return r.channel
}

func (r *Request) URL() string {
	return r.url
}

func (r *Request) Method() string {
	return r.method
}

// ResourceType returns the type as seen by the rendering engine, e.g. document or xhr.
func (r *Request) ResourceType() string {
	return r.resourceType
}

// PostData returns the request body, nil if there is none.
func (r *Request) PostData() []byte {
	return r.postData
}

// Headers returns the request headers with lower-cased names.
func (r *Request) Headers() map[string]string {
	return r.headers
}

func (r *Request) IsNavigationRequest() bool {
	return r.isNavigationRequest
}

// Frame returns the frame that issued the request, nil for service worker requests.
func (r *Request) Frame() *Frame {
	return r.frame
}

// RedirectedFrom returns the request that was redirected to this one.
func (r *Request) RedirectedFrom() *Request {
	return r.redirectedFrom
}

// Response returns the response, nil if none was received.
func (r *Request) Response(ctx context.Context) (*Response, error) {
	return sendForObject[*Response](ctx, r.channel, "response", nil, "response")
}

// Response is the response to a Request.
type Response struct {
	channel *connection.ChannelOwner

	url        string
	status     int
	statusText string
	headers    map[string]string
	request    *Request
}

func newResponse(owner *connection.ChannelOwner) (connection.Object, error) {
	var init struct {
		URL        string              `json:"url"`
		Status     int                 `json:"status"`
		StatusText string              `json:"statusText"`
		Headers    []nameValue         `json:"headers"`
		Request    *protocol.ObjectRef `json:"request"`
	}
	if err := owner.DecodeInitializer(&init); err != nil {
		return nil, err
	}
	request, err := objectFromRef[*Request](owner.Connection(), init.Request)
	if err != nil {
		return nil, err
	}

	return &Response{
		channel:    owner,
		url:        init.URL,
		status:     init.Status,
		statusText: init.StatusText,
		headers:    fromNameValues(init.Headers),
		request:    request,
	}, nil
}

func (r *Response) Channel() *connection.ChannelOwner {
	return r.channel
}

func (r *Response) URL() string {
	return r.url
}

func (r *Response) Status() int {
	return r.status
}

func (r *Response) StatusText() string {
	return r.statusText
}

// Ok reports a 2xx status.
func (r *Response) Ok() bool {
	return r.status == 0 || (r.status >= 200 && r.status <= 299)
}

// Headers returns the response headers with lower-cased names.
func (r *Response) Headers() map[string]string {
	return r.headers
}

func (r *Response) Request() *Request {
	return r.request
}

// Frame returns the frame that issued the request.
func (r *Response) Frame() *Frame {
	if r.request == nil {
		return nil
	}
	return r.request.frame
}

// Body returns the response body.
func (r *Response) Body(ctx context.Context) ([]byte, error) {
	var body []byte
	if err := r.channel.SendReturning(ctx, "body", nil, "binary", &body); err != nil {
		return nil, err
	}
	return body, nil
}

// Text returns the response body as a string.
func (r *Response) Text(ctx context.Context) (string, error) {
	body, err := r.Body(ctx)
	return string(body), err
}

// Route is an intercepted request waiting for a decision.
type Route struct {
	channel *connection.ChannelOwner
	request *Request
}

func newRoute(owner *connection.ChannelOwner) (connection.Object, error) {
	var init struct {
		Request *protocol.ObjectRef `json:"request"`
	}
	if err := owner.DecodeInitializer(&init); err != nil {
		return nil, err
	}
	request, err := objectFromRef[*Request](owner.Connection(), init.Request)
	if err != nil {
		return nil, err
	}
	return &Route{channel: owner, request: request}, nil
}

func (r *Route) Channel() *connection.ChannelOwner {
	return r.channel
}

// Request returns the intercepted request.
func (r *Route) Request() *Request {
	return r.request
}

// RouteContinueOptions overrides parts of a continued request.
type RouteContinueOptions struct {
	URL      string
	Method   string
	Headers  map[string]string
	PostData []byte
}

type continueParams struct {
	URL        string      `json:"url,omitempty"`
	Method     string      `json:"method,omitempty"`
	Headers    []nameValue `json:"headers,omitempty"`
	PostData   []byte      `json:"postData,omitempty"`
	IsFallback bool        `json:"isFallback"`
}

// Continue sends the request to the network, optionally modified.
func (r *Route) Continue(ctx context.Context, options RouteContinueOptions) error {
	_, err := r.channel.Send(ctx, "continue", continueParams{
		URL:      options.URL,
		Method:   options.Method,
		Headers:  toNameValues(options.Headers),
		PostData: options.PostData,
	})
	return err
}

// continueFallback lets an unhandled request through without waiting.
func (r *Route) continueFallback() {
	if err := r.channel.SendNoWait("continue", continueParams{IsFallback: true}); err != nil {
		r.channel.Connection().Logger().Debug("Continuing unhandled route failed", slog.Any("error", err))
	}
}

// Abort fails the request with errorCode, e.g. failed or blockedbyclient. Empty means failed.
func (r *Route) Abort(ctx context.Context, errorCode string) error {
	if errorCode == "" {
		errorCode = "failed"
	}
	_, err := r.channel.Send(ctx, "abort", map[string]any{"errorCode": errorCode})
	return err
}

// RouteFulfillOptions describes a mocked response.
type RouteFulfillOptions struct {
	// Status defaults to 200.
	Status      int
	Headers     map[string]string
	ContentType string
	Body        []byte
}

type fulfillParams struct {
	Status   int         `json:"status"`
	Headers  []nameValue `json:"headers"`
	Body     string      `json:"body"`
	IsBase64 bool        `json:"isBase64"`
}

// Fulfill answers the request without hitting the network.
func (r *Route) Fulfill(ctx context.Context, options RouteFulfillOptions) error {
	status := options.Status
	if status == 0 {
		status = http.StatusOK
	}
	headers := lo.Assign(options.Headers)
	if options.ContentType != "" {
		headers["content-type"] = options.ContentType
	}

	params := fulfillParams{
		Status:   status,
		Headers:  toNameValues(headers),
		Body:     base64.StdEncoding.EncodeToString(options.Body),
		IsBase64: true,
	}
	if params.Headers == nil {
		params.Headers = []nameValue{}
	}
	_, err := r.channel.Send(ctx, "fulfill", params)
	return err
}
