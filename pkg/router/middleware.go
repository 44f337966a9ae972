package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"answer/pkg/http"
)

// Middleware wraps a Handler to add processing before or after it runs.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares so that the first one is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// LoggingMiddleware logs one line per request. The logger attached to the
// request context (see zerolog.Ctx) is preferred over logger when present.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.ServeHTTP(ctx, req)

			l := &logger
			if cl := zerolog.Ctx(ctx); cl.GetLevel() != zerolog.Disabled {
				l = cl
			}
			ev := l.Info()
			if err != nil {
				ev = l.Error().Err(err)
			}
			ev = ev.Str("method", req.Method).
				Str("path", req.Path()).
				Dur("duration", time.Since(start))
			if resp != nil {
				ev = ev.Int("status", resp.Status()).Int("bytes", len(resp.Body))
			}
			if id := RequestIDFromContext(ctx); id != "" {
				ev = ev.Str("request_id", id)
			}
			ev.Msg("request")
			return resp, err
		})
	}
}

// PanicError is returned by RecoveryMiddleware when a handler panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("router: handler panic: %v", e.Value)
}

// RecoveryMiddleware turns a handler panic into a *PanicError, which the
// server reports as 500 Internal Server Error.
func RecoveryMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(ctx context.Context, req *http.Request) (resp *http.Response, err error) {
			defer func() {
				if rec := recover(); rec != nil {
					resp, err = nil, &PanicError{Value: rec, Stack: debug.Stack()}
				}
			}()
			return next.ServeHTTP(ctx, req)
		})
	}
}

// TimeoutMiddleware bounds the handler context by timeout. A handler that
// returns after the deadline has passed yields 503 Service Unavailable.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			resp, err := next.ServeHTTP(ctx, req)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return http.Error(http.StatusServiceUnavailable), nil
			}
			return resp, err
		})
	}
}

// withOwnHeader returns a shallow copy of resp with a private header map.
// Handlers may return the same Response to many requests.
func withOwnHeader(resp *http.Response) *http.Response {
	r := *resp
	r.Header = make(http.Header, len(resp.Header)+3)
	for k, v := range resp.Header {
		r.Header[k] = v
	}
	return &r
}

type requestIDKey struct{}

var requestSeq atomic.Uint64

// RequestIDMiddleware propagates the X-Request-Id header, generating one
// when the client sent none, and echoes it on the response.
func RequestIDMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
			id := req.Header.Get(http.HeaderXRequestID)
			if id == "" {
				id = generateRequestID()
			}
			resp, err := next.ServeHTTP(context.WithValue(ctx, requestIDKey{}, id), req)
			if resp != nil {
				resp = withOwnHeader(resp)
				resp.Header.Set(http.HeaderXRequestID, id)
			}
			return resp, err
		})
	}
}

// RequestIDFromContext returns the id assigned by RequestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func generateRequestID() string {
	return time.Now().UTC().Format("20060102150405.000000") + "-" + strconv.FormatUint(requestSeq.Add(1), 10)
}

// CORSMiddleware adds permissive CORS headers and answers preflight
// requests itself.
func CORSMiddleware(allowOrigin string) Middleware {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	set := func(h http.Header) {
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
			if req.Method == http.MethodOptions {
				resp := &http.Response{StatusCode: http.StatusNoContent, Header: make(http.Header)}
				set(resp.Header)
				return resp, nil
			}
			resp, err := next.ServeHTTP(ctx, req)
			if resp != nil {
				resp = withOwnHeader(resp)
				set(resp.Header)
			}
			return resp, err
		})
	}
}
