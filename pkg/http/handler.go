package http

import "context"

// Handler produces the response for one request. A returned error is
// reported to the client as 500 Internal Server Error.
type Handler interface {
	ServeHTTP(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// ServeHTTP calls f(ctx, req).
func (f HandlerFunc) ServeHTTP(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
