package router

import (
	"context"
	"sort"
	"strings"
)

type paramsKey struct{}

// Params holds the named captures accumulated while resolving a path.
type Params map[string]string

// Get returns the value of the parameter with the given name, or "".
func (p Params) Get(name string) string {
	return p[name]
}

// Has reports whether the parameter was captured.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// String renders the parameters as name=value pairs sorted by name.
func (p Params) String() string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name + "=" + p[name])
	}
	return b.String()
}

// WithParams returns a copy of ctx carrying params.
func WithParams(ctx context.Context, params Params) context.Context {
	return context.WithValue(ctx, paramsKey{}, params)
}

// ParamsFromContext returns the parameters stored by WithParams.
func ParamsFromContext(ctx context.Context) (Params, bool) {
	params, ok := ctx.Value(paramsKey{}).(Params)
	return params, ok
}

// Param is shorthand for looking up one parameter in ctx.
func Param(ctx context.Context, name string) string {
	params, _ := ParamsFromContext(ctx)
	return params.Get(name)
}
