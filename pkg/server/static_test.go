package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"answer/pkg/http"
	"answer/pkg/router"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func get(h http.Handler, path string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	resp, err := h.ServeHTTP(context.Background(), &http.Request{Method: http.MethodGet, Target: path, Header: header})
	if err != nil {
		panic(err)
	}
	return resp
}

func TestStaticFileHandler(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<h1>home</h1>")
	writeFile(t, dir, "app.css", "body{}")
	writeFile(t, dir, "data.bin", "0123456789")
	writeFile(t, dir, "docs/index.html", "docs")
	os.Mkdir(filepath.Join(dir, "empty"), 0o755)

	h := NewStaticFileHandler(dir)

	tests := []struct {
		path        string
		status      int
		body        string
		contentType string
	}{
		{"/app.css", 200, "body{}", "text/css; charset=utf-8"},
		{"/", 200, "<h1>home</h1>", "text/html; charset=utf-8"},
		{"/docs", 200, "docs", "text/html; charset=utf-8"},
		{"/data.bin", 200, "0123456789", "application/octet-stream"},
		{"/missing.txt", 404, "Not Found\n", ""},
		{"/empty", 404, "Not Found\n", ""},
		{"/../../etc/passwd", 404, "Not Found\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := get(h, tt.path, nil)
			if resp.Status() != tt.status || string(resp.Body) != tt.body {
				t.Errorf("GET %s = %d %q, want %d %q", tt.path, resp.Status(), resp.Body, tt.status, tt.body)
			}
			if tt.contentType != "" && resp.ContentType != tt.contentType {
				t.Errorf("content type = %q, want %q", resp.ContentType, tt.contentType)
			}
		})
	}
}

func TestStaticFileHandler_IndexFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<h1>home</h1>")
	writeFile(t, dir, "default.htm", "fallback")
	h := NewStaticFileHandler(dir)

	h.SetIndexFiles([]string{"missing.html", "default.htm"})
	if resp := get(h, "/", nil); string(resp.Body) != "fallback" {
		t.Errorf("custom index = %d %q", resp.Status(), resp.Body)
	}
	h.SetIndexFiles(nil)
	if resp := get(h, "/", nil); resp.Status() != http.StatusNotFound {
		t.Errorf("directory without index files = %d", resp.Status())
	}
}

func TestStaticFileHandler_Validators(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "page.txt", "cached")
	modTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatal(err)
	}
	h := NewStaticFileHandler(dir)

	first := get(h, "/page.txt", nil)
	etag := first.Header.Get(http.HeaderETag)
	if etag == "" || !strings.HasPrefix(etag, `"`) {
		t.Fatalf("ETag = %q", etag)
	}
	if lm := first.Header.Get(http.HeaderLastModified); lm != modTime.Format(http.TimeFormat) {
		t.Errorf("Last-Modified = %q", lm)
	}
	if cc := first.Header.Get(http.HeaderCacheControl); cc != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", cc)
	}

	cases := []struct {
		name   string
		header http.Header
		status int
	}{
		{"etag match", http.Header{http.HeaderIfNoneMatch: etag}, http.StatusNotModified},
		{"etag wildcard", http.Header{http.HeaderIfNoneMatch: "*"}, http.StatusNotModified},
		{"etag mismatch", http.Header{http.HeaderIfNoneMatch: `"other"`}, http.StatusOK},
		{"not modified since", http.Header{http.HeaderIfModifiedSince: modTime.Format(http.TimeFormat)}, http.StatusNotModified},
		{"modified since", http.Header{http.HeaderIfModifiedSince: modTime.Add(-time.Hour).Format(http.TimeFormat)}, http.StatusOK},
		{"etag takes precedence", http.Header{
			http.HeaderIfNoneMatch:     `"other"`,
			http.HeaderIfModifiedSince: modTime.Format(http.TimeFormat),
		}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := get(h, "/page.txt", tc.header).Status(); got != tc.status {
				t.Errorf("status = %d, want %d", got, tc.status)
			}
		})
	}

	h.EnableETag(false)
	h.SetCacheControl("")
	plain := get(h, "/page.txt", nil)
	if plain.Header.Has(http.HeaderETag) || plain.Header.Has(http.HeaderCacheControl) {
		t.Errorf("unexpected headers: %v", plain.Header)
	}
}

func TestStaticFileHandler_Range(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data.bin", "0123456789")
	h := NewStaticFileHandler(dir)

	tests := []struct {
		spec         string
		status       int
		body         string
		contentRange string
	}{
		{"bytes=0-3", 206, "0123", "bytes 0-3/10"},
		{"bytes=7-", 206, "789", "bytes 7-9/10"},
		{"bytes=-4", 206, "6789", "bytes 6-9/10"},
		{"bytes=5-100", 206, "56789", "bytes 5-9/10"},
		{"bytes=10-", 416, "Range Not Satisfiable\n", "bytes */10"},
		{"bytes=4-2", 416, "Range Not Satisfiable\n", "bytes */10"},
		{"bytes=0-1,4-5", 416, "Range Not Satisfiable\n", "bytes */10"},
		{"items=0-1", 416, "Range Not Satisfiable\n", "bytes */10"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			resp := get(h, "/data.bin", http.Header{http.HeaderRange: tt.spec})
			if resp.Status() != tt.status {
				t.Errorf("status = %d, want %d", resp.Status(), tt.status)
			}
			if tt.status == 206 && string(resp.Body) != tt.body {
				t.Errorf("body = %q, want %q", resp.Body, tt.body)
			}
			if cr := resp.Header.Get(http.HeaderContentRange); cr != tt.contentRange {
				t.Errorf("Content-Range = %q, want %q", cr, tt.contentRange)
			}
		})
	}
}

func TestStaticFileHandler_Methods(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "abc")
	h := NewStaticFileHandler(dir)

	head, _ := h.ServeHTTP(context.Background(), &http.Request{Method: http.MethodHead, Target: "/a.txt", Header: make(http.Header)})
	if head.Status() != 200 || string(head.Body) != "abc" {
		t.Errorf("HEAD = %d %q", head.Status(), head.Body)
	}

	post, _ := h.ServeHTTP(context.Background(), &http.Request{Method: http.MethodPost, Target: "/a.txt", Header: make(http.Header)})
	if post.Status() != http.StatusMethodNotAllowed || post.Header.Get("Allow") != "GET, HEAD" {
		t.Errorf("POST = %d Allow=%q", post.Status(), post.Header.Get("Allow"))
	}
}

func TestStaticFileHandler_WildcardMount(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "js/app.js", "run()")

	table := router.New()
	table.Handle("/assets/*", NewStaticFileHandler(dir))
	if err := table.Compile(); err != nil {
		t.Fatal(err)
	}
	m, err := table.Match("/assets/js/app.js")
	if err != nil {
		t.Fatalf("Match error: %v", err)
	}
	ctx := router.WithParams(context.Background(), m.Params)
	resp, err := m.Handler.ServeHTTP(ctx, &http.Request{Method: http.MethodGet, Target: "/assets/js/app.js", Header: make(http.Header)})
	if err != nil || string(resp.Body) != "run()" {
		t.Errorf("wildcard file = %v %q", err, resp.Body)
	}
	if resp.ContentType != "application/javascript; charset=utf-8" {
		t.Errorf("content type = %q", resp.ContentType)
	}
}

func TestValidatePath(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		requested string
		want      string
	}{
		{"/a.txt", filepath.Join(root, "a.txt")},
		{"a/b.txt", filepath.Join(root, "a", "b.txt")},
		{"/../secret", filepath.Join(root, "secret")},
		{"/a/../../b", filepath.Join(root, "b")},
		{"/", root},
	}
	for _, tt := range tests {
		got, err := ValidatePath(root, tt.requested)
		if err != nil || got != tt.want {
			t.Errorf("ValidatePath(%q) = %q, %v; want %q", tt.requested, got, err, tt.want)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("ANSWERTEST_ADDR", "127.0.0.1:9000")
	t.Setenv("ANSWERTEST_SERVER_NAME", "edge")
	t.Setenv("ANSWERTEST_READ_TIMEOUT", "5s")
	t.Setenv("ANSWERTEST_DRAIN_TIMEOUT", "250ms")
	t.Setenv("ANSWERTEST_MAX_HEADER_BYTES", "8192")
	t.Setenv("ANSWERTEST_IOURING", "true")
	t.Setenv("ANSWERTEST_STATIC", "/srv/www")

	cfg, err := ConfigFromEnv("ANSWERTEST")
	if err != nil {
		t.Fatalf("ConfigFromEnv error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.ServerName != "edge" || cfg.StaticDir != "/srv/www" {
		t.Errorf("strings = %+v", cfg)
	}
	if cfg.ReadTimeout != 5*time.Second || cfg.DrainTimeout != 250*time.Millisecond || cfg.WriteTimeout != 0 {
		t.Errorf("durations = %v %v %v", cfg.ReadTimeout, cfg.DrainTimeout, cfg.WriteTimeout)
	}
	if cfg.MaxHeaderBytes != 8192 || !cfg.IOURing {
		t.Errorf("numbers = %+v", cfg)
	}

	for name, value := range map[string]string{
		"ANSWERTEST_WRITE_TIMEOUT":  "soon",
		"ANSWERTEST_MAX_BODY_BYTES": "lots",
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			if _, err := ConfigFromEnv("ANSWERTEST"); err == nil || !strings.Contains(err.Error(), name) {
				t.Errorf("error = %v, want mention of %s", err, name)
			}
		})
	}
}
