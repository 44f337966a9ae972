package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"answer/pkg/http"
)

var (
	// ErrNotFound reports that no pattern matched at some nesting level.
	ErrNotFound = errors.New("route not found")
	// ErrAmbiguousRoute reports that two or more patterns at one level
	// matched the same longest prefix.
	ErrAmbiguousRoute = errors.New("ambiguous route")
	// ErrNotCompiled is returned by Match before Compile succeeded.
	ErrNotCompiled = errors.New("router: table not compiled")
)

// RouteError describes a failed resolution.
type RouteError struct {
	Path      string   // full path being resolved
	Remaining string   // unconsumed suffix at the failing level
	Patterns  []string // tied patterns, for ErrAmbiguousRoute
	Err       error
}

func (e *RouteError) Error() string {
	msg := fmt.Sprintf("router: %v for %q", e.Err, e.Path)
	if e.Remaining != e.Path {
		msg += fmt.Sprintf(" at %q", e.Remaining)
	}
	if len(e.Patterns) > 0 {
		msg += " (patterns " + strings.Join(e.Patterns, ", ") + ")"
	}
	return msg
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// Match is the result of a successful resolution.
type Match struct {
	Handler http.Handler
	Params  Params
	// Pattern is the concatenation of the patterns matched at each level.
	Pattern string
}

// entry binds one pattern to either a handler or a nested table.
type entry struct {
	pattern string
	re      *regexp.Regexp
	handler http.Handler // terminal, wrapped by Compile
	table   *Table       // nested
}

// Table is an ordered set of path patterns, each resolving to a handler or
// to a nested Table that resolves the rest of the path. A Table is built
// with Handle, HandleFunc and Mount, then frozen by Compile; after that,
// Match may be called from any number of goroutines.
type Table struct {
	entries    []*entry
	middleware []Middleware
	compiled   bool
	compiling  bool
	mounted    bool
}

// New creates an empty Table.
func New() *Table {
	return &Table{}
}

// Handle registers handler for pattern. It panics if the table is already
// compiled or the pattern is already registered.
func (t *Table) Handle(pattern string, handler http.Handler) {
	if handler == nil {
		panic("router: nil handler for " + pattern)
	}
	t.add(&entry{pattern: pattern, handler: handler})
}

// HandleFunc registers fn for pattern.
func (t *Table) HandleFunc(pattern string, fn func(ctx context.Context, req *http.Request) (*http.Response, error)) {
	t.Handle(pattern, http.HandlerFunc(fn))
}

// Mount registers sub to resolve whatever follows a match of pattern.
func (t *Table) Mount(pattern string, sub *Table) {
	if sub == nil || sub == t {
		panic("router: invalid sub-table for " + pattern)
	}
	if sub.mounted {
		panic("router: sub-table for " + pattern + " is already mounted")
	}
	if sub.compiled {
		panic("router: sub-table for " + pattern + " is already compiled")
	}
	t.add(&entry{pattern: pattern, table: sub})
	sub.mounted = true
}

// Use appends middleware applied to every handler reachable from t.
// Middleware of outer tables wraps that of inner ones.
func (t *Table) Use(middleware ...Middleware) {
	t.mustBeOpen()
	t.middleware = append(t.middleware, middleware...)
}

func (t *Table) add(e *entry) {
	t.mustBeOpen()
	for _, existing := range t.entries {
		if existing.pattern == e.pattern {
			panic("router: duplicate pattern " + e.pattern)
		}
	}
	t.entries = append(t.entries, e)
}

func (t *Table) mustBeOpen() {
	if t.compiled {
		panic("router: registration on a compiled table")
	}
}

var paramPattern = regexp.MustCompile(`(^|/):([A-Za-z_][A-Za-z0-9_]*)`)

// compilePattern turns a route pattern into a regexp anchored at the start
// of the remaining path. ":name" segments capture one path segment; a
// trailing "/*" captures the rest of the path as "wildcard".
func compilePattern(pattern string) (*regexp.Regexp, error) {
	expr := paramPattern.ReplaceAllString(pattern, "${1}(?P<${2}>[^/]+)")
	if strings.HasSuffix(expr, "/*") {
		expr = strings.TrimSuffix(expr, "/*") + "(?P<wildcard>/.*)"
	}
	re, err := regexp.Compile("^(?:" + expr + ")")
	if err != nil {
		return nil, fmt.Errorf("router: pattern %q: %w", pattern, err)
	}
	return re, nil
}

// Compile compiles every pattern reachable from t and applies middleware.
// It must be called once, on the outermost table, before serving.
func (t *Table) Compile() error {
	if t.compiled {
		return nil
	}
	if t.mounted {
		return errors.New("router: Compile called on a mounted table")
	}
	return t.compile(nil)
}

func (t *Table) compile(outer []Middleware) error {
	if t.compiling {
		return errors.New("router: table mounted inside itself")
	}
	t.compiling = true
	defer func() { t.compiling = false }()

	chain := append(append([]Middleware(nil), outer...), t.middleware...)
	for _, e := range t.entries {
		re, err := compilePattern(e.pattern)
		if err != nil {
			return err
		}
		e.re = re
		if e.table != nil {
			if err := e.table.compile(chain); err != nil {
				return err
			}
			continue
		}
		e.handler = Chain(chain...)(e.handler)
	}
	t.compiled = true
	return nil
}

// Match resolves path against the table. At each level the pattern that
// consumes the longest prefix of the remaining path wins; its captures are
// merged over those of enclosing levels and, for a nested table, the
// remaining suffix is resolved there.
func (t *Table) Match(path string) (*Match, error) {
	if !t.compiled {
		return nil, ErrNotCompiled
	}
	var (
		table   = t
		rest    = path
		params  = Params{}
		matched strings.Builder
	)
	for {
		if rest == "" {
			root := table.root()
			if root == nil {
				return nil, &RouteError{Path: path, Err: ErrNotFound}
			}
			if root.table != nil {
				table = root.table
				continue
			}
			return &Match{Handler: root.handler, Params: params, Pattern: matched.String()}, nil
		}

		best, n, captures, err := table.longest(rest)
		if err != nil {
			err.Path = path
			return nil, err
		}
		if best == nil {
			return nil, &RouteError{Path: path, Remaining: rest, Err: ErrNotFound}
		}
		params = mergeParams(params, captures)
		matched.WriteString(best.pattern)
		rest = rest[n:]

		if best.table != nil {
			table = best.table
			continue
		}
		if rest != "" {
			return nil, &RouteError{Path: path, Remaining: rest, Err: ErrNotFound}
		}
		return &Match{Handler: best.handler, Params: params, Pattern: matched.String()}, nil
	}
}

// root returns the entry registered under "/", which serves an exhausted
// path.
func (t *Table) root() *entry {
	for _, e := range t.entries {
		if e.pattern == "/" {
			return e
		}
	}
	return nil
}

// longest returns the entry whose pattern consumes the longest prefix of
// path, along with the prefix length and its named captures.
func (t *Table) longest(path string) (*entry, int, Params, *RouteError) {
	var (
		best     *entry
		bestLen  = -1
		captures Params
		tied     []string
	)
	for _, e := range t.entries {
		loc := e.re.FindStringSubmatchIndex(path)
		if loc == nil {
			continue
		}
		switch n := loc[1]; {
		case n > bestLen:
			best, bestLen = e, n
			captures = submatches(e.re, path, loc)
			tied = tied[:0]
		case n == bestLen:
			if len(tied) == 0 {
				tied = append(tied, best.pattern)
			}
			tied = append(tied, e.pattern)
		}
	}
	if len(tied) > 0 {
		return nil, 0, nil, &RouteError{Remaining: path, Patterns: tied, Err: ErrAmbiguousRoute}
	}
	return best, bestLen, captures, nil
}

func submatches(re *regexp.Regexp, path string, loc []int) Params {
	var p Params
	for i, name := range re.SubexpNames() {
		if name == "" || loc[2*i] < 0 {
			continue
		}
		if p == nil {
			p = make(Params)
		}
		p[name] = path[loc[2*i]:loc[2*i+1]]
	}
	return p
}

// mergeParams returns a new map holding outer overlaid with inner.
func mergeParams(outer, inner Params) Params {
	merged := make(Params, len(outer)+len(inner))
	for k, v := range outer {
		merged[k] = v
	}
	for k, v := range inner {
		merged[k] = v
	}
	return merged
}

// Routes lists every terminal route reachable from t, in registration
// order, as the concatenation of the patterns leading to it.
func (t *Table) Routes() []string {
	var routes []string
	t.walk("", func(pattern string) { routes = append(routes, pattern) })
	return routes
}

func (t *Table) walk(prefix string, fn func(string)) {
	for _, e := range t.entries {
		if e.table != nil {
			e.table.walk(prefix+e.pattern, fn)
			continue
		}
		fn(prefix + e.pattern)
	}
}
