package router

import (
	"context"
	"sort"
	"strings"

	"answer/pkg/http"
)

// Methods dispatches on the request method. HEAD falls back to the GET
// handler; any other unknown method gets 405 with an Allow header.
type Methods map[string]http.Handler

// ServeHTTP implements http.Handler.
func (m Methods) ServeHTTP(ctx context.Context, req *http.Request) (*http.Response, error) {
	h, ok := m[req.Method]
	if !ok && req.Method == http.MethodHead {
		h, ok = m[http.MethodGet]
	}
	if !ok {
		resp := http.Error(http.StatusMethodNotAllowed)
		resp.Header.Set("Allow", m.allow())
		return resp, nil
	}
	return h.ServeHTTP(ctx, req)
}

func (m Methods) allow() string {
	methods := make([]string, 0, len(m)+1)
	for method := range m {
		methods = append(methods, method)
	}
	if _, ok := m[http.MethodGet]; ok {
		if _, ok := m[http.MethodHead]; !ok {
			methods = append(methods, http.MethodHead)
		}
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
