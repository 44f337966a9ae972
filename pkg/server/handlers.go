package server

import (
	"context"
	"strconv"

	"answer/pkg/http"
)

// HealthHandler returns a handler for liveness checks.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		resp := http.NewResponse([]byte(`{"status":"healthy"}`))
		resp.ContentType = "application/json"
		return resp, nil
	})
}

// ReadyHandler returns a handler for readiness checks. It reports 503 once
// the server has begun shutting down.
func (s *Server) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		status, state := http.StatusOK, "ready"
		if s.closing.Load() {
			status, state = http.StatusServiceUnavailable, "shutting_down"
		}
		body := `{"status":"` + state + `","connections":` + strconv.Itoa(s.ActiveConns()) + `}`
		resp := http.Text(status, body)
		resp.ContentType = "application/json"
		return resp, nil
	})
}
