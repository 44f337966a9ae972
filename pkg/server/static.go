package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"answer/pkg/http"
	"answer/pkg/router"
)

// StaticFileHandler serves files below a root directory with validators,
// caching headers and single byte ranges.
type StaticFileHandler struct {
	dir          string
	cacheControl string
	indexFiles   []string
	useETag      bool
}

// NewStaticFileHandler creates a handler serving dir.
func NewStaticFileHandler(dir string) *StaticFileHandler {
	return &StaticFileHandler{
		dir:          dir,
		cacheControl: "public, max-age=3600",
		indexFiles:   []string{"index.html", "index.htm"},
		useETag:      true,
	}
}

// SetCacheControl sets the Cache-Control header value; empty omits it.
func (h *StaticFileHandler) SetCacheControl(value string) {
	h.cacheControl = value
}

// SetIndexFiles sets the files to try when a directory is requested.
func (h *StaticFileHandler) SetIndexFiles(files []string) {
	h.indexFiles = files
}

// EnableETag enables or disables ETag generation.
func (h *StaticFileHandler) EnableETag(enabled bool) {
	h.useETag = enabled
}

// ServeHTTP implements http.Handler. When mounted under a wildcard route,
// the captured wildcard is the file path; otherwise the request path is.
func (h *StaticFileHandler) ServeHTTP(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		resp := http.Error(http.StatusMethodNotAllowed)
		resp.Header.Set("Allow", "GET, HEAD")
		return resp, nil
	}

	rel := req.Path()
	if params, ok := router.ParamsFromContext(ctx); ok && params.Has("wildcard") {
		rel = params.Get("wildcard")
	}
	path, err := ValidatePath(h.dir, rel)
	if err != nil {
		return http.Error(http.StatusNotFound), nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		return statError(err)
	}
	if fi.IsDir() {
		for _, index := range h.indexFiles {
			indexPath := filepath.Join(path, index)
			if ifi, err := os.Stat(indexPath); err == nil && !ifi.IsDir() {
				return h.serveFile(req, indexPath)
			}
		}
		return http.Error(http.StatusNotFound), nil
	}
	return h.serveFile(req, path)
}

func statError(err error) (*http.Response, error) {
	if errors.Is(err, fs.ErrNotExist) {
		return http.Error(http.StatusNotFound), nil
	}
	if errors.Is(err, fs.ErrPermission) {
		return http.Error(http.StatusForbidden), nil
	}
	return nil, err
}

func (h *StaticFileHandler) serveFile(req *http.Request, path string) (*http.Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return statError(err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return statError(err)
	}

	resp := http.NewResponse(nil)
	resp.ContentType = contentType(path)
	if h.cacheControl != "" {
		resp.Header.Set(http.HeaderCacheControl, h.cacheControl)
	}
	modTime := fi.ModTime().UTC().Truncate(time.Second)
	resp.Header.Set(http.HeaderLastModified, modTime.Format(http.TimeFormat))

	if h.useETag {
		sum := sha256.Sum256(data)
		etag := `"` + hex.EncodeToString(sum[:8]) + `"`
		resp.Header.Set(http.HeaderETag, etag)
		if inm := req.Header.Get(http.HeaderIfNoneMatch); inm != "" {
			if inm == "*" || strings.Contains(inm, etag) {
				resp.StatusCode = http.StatusNotModified
				return resp, nil
			}
		}
	}
	if ims := req.Header.Get(http.HeaderIfModifiedSince); ims != "" && !req.Header.Has(http.HeaderIfNoneMatch) {
		if t, err := time.Parse(http.TimeFormat, ims); err == nil && !modTime.After(t) {
			resp.StatusCode = http.StatusNotModified
			return resp, nil
		}
	}

	if spec := req.Header.Get(http.HeaderRange); spec != "" {
		start, end, err := parseRange(spec, int64(len(data)))
		if err != nil {
			unsat := http.Error(http.StatusRangeNotSatisfiable)
			unsat.Header.Set(http.HeaderContentRange, fmt.Sprintf("bytes */%d", len(data)))
			return unsat, nil
		}
		resp.StatusCode = http.StatusPartialContent
		resp.Header.Set(http.HeaderContentRange, fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
		resp.Body = data[start : end+1]
		return resp, nil
	}

	resp.Body = data
	return resp, nil
}

var errBadRange = errors.New("unsatisfiable range")

// parseRange parses a single "bytes=" range against size and returns
// inclusive bounds. Multiple ranges are not supported.
func parseRange(spec string, size int64) (int64, int64, error) {
	unit, set, ok := strings.Cut(spec, "=")
	if !ok || strings.TrimSpace(unit) != "bytes" || strings.Contains(set, ",") {
		return 0, 0, errBadRange
	}
	first, last, ok := strings.Cut(strings.TrimSpace(set), "-")
	if !ok {
		return 0, 0, errBadRange
	}

	var start, end int64
	switch {
	case first == "":
		// Suffix range: the last n bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, errBadRange
		}
		start, end = max(size-n, 0), size-1
	default:
		var err error
		if start, err = strconv.ParseInt(first, 10, 64); err != nil || start < 0 {
			return 0, 0, errBadRange
		}
		end = size - 1
		if last != "" {
			if end, err = strconv.ParseInt(last, 10, 64); err != nil {
				return 0, 0, errBadRange
			}
			end = min(end, size-1)
		}
	}
	if start >= size || start > end {
		return 0, 0, errBadRange
	}
	return start, end, nil
}

// MimeTypes maps file extensions to MIME types, consulted before the
// system table.
var MimeTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript; charset=utf-8",
	".json":  "application/json",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".woff2": "font/woff2",
	".pdf":   "application/pdf",
	".txt":   "text/plain; charset=utf-8",
	".xml":   "application/xml",
	".md":    "text/markdown",
	".csv":   "text/csv",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := MimeTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ValidatePath resolves requestedPath below root and rejects anything that
// would escape it.
func ValidatePath(root, requestedPath string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root: %w", err)
	}
	// Cleaning as an absolute path removes every leading "..".
	clean := filepath.Clean("/" + filepath.FromSlash(requestedPath))
	full := filepath.Join(absRoot, clean)
	if full != absRoot && !strings.HasPrefix(full, absRoot+string(filepath.Separator)) {
		return "", errors.New("path outside root directory")
	}
	return full, nil
}
