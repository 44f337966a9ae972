package http

import (
	"errors"
	"io"
	"sort"
	"strings"
	"time"
)

// Method constants for HTTP requests.
const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodDelete  = "DELETE"
	MethodOptions = "OPTIONS"
	MethodPatch   = "PATCH"
)

// Common HTTP status codes.
const (
	StatusContinue            = 100
	StatusSwitchingProtocols  = 101
	StatusOK                  = 200
	StatusCreated             = 201
	StatusAccepted            = 202
	StatusNoContent           = 204
	StatusPartialContent      = 206
	StatusMovedPermanently    = 301
	StatusFound               = 302
	StatusSeeOther            = 303
	StatusNotModified         = 304
	StatusBadRequest          = 400
	StatusUnauthorized        = 401
	StatusForbidden           = 403
	StatusNotFound            = 404
	StatusMethodNotAllowed    = 405
	StatusRequestTimeout      = 408
	StatusRangeNotSatisfiable = 416
	StatusInternalServerError = 500
	StatusNotImplemented      = 501
	StatusBadGateway          = 502
	StatusServiceUnavailable  = 503
	StatusGatewayTimeout      = 504
)

// Protocol versions.
const (
	ProtocolHTTP10 = "HTTP/1.0"
	ProtocolHTTP11 = "HTTP/1.1"
)

// Header names (canonicalized).
const (
	HeaderAccept           = "Accept"
	HeaderCacheControl     = "Cache-Control"
	HeaderConnection       = "Connection"
	HeaderContentLength    = "Content-Length"
	HeaderContentRange     = "Content-Range"
	HeaderContentType      = "Content-Type"
	HeaderDate             = "Date"
	HeaderETag             = "Etag"
	HeaderExpect           = "Expect"
	HeaderHost             = "Host"
	HeaderIfModifiedSince  = "If-Modified-Since"
	HeaderIfNoneMatch      = "If-None-Match"
	HeaderLastModified     = "Last-Modified"
	HeaderRange            = "Range"
	HeaderServer           = "Server"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderUserAgent        = "User-Agent"
	HeaderXRequestID       = "X-Request-Id"
)

// Connection options.
const (
	ConnectionKeepAlive = "keep-alive"
	ConnectionClose     = "close"
)

const (
	// DefaultServerName is sent in the Server header unless overridden.
	DefaultServerName = "answer/0.1.0"

	// DefaultContentType is used when a Response leaves ContentType empty.
	DefaultContentType = "text/plain"

	// TimeFormat is the IMF-fixdate layout used for the Date header.
	TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

	transferEncodingChunked = "chunked"
	expectContinue          = "100-continue"
)

// Default limits, modelled on h11's 16 KiB incomplete-event cap.
const (
	DefaultMaxHeaderBytes = 16 << 10
	DefaultMaxBodyBytes   = 8 << 20
	DefaultDrainTimeout   = 5 * time.Second
)

// ErrInvalidState is returned when a Conn operation is called in a state
// that does not allow it, such as sending a response before reading a request.
var ErrInvalidState = errors.New("http: operation not valid in current connection state")

// Header represents HTTP headers as a case-insensitive key-value map.
// Keys are stored canonicalized and a later Set for the same name wins.
type Header map[string]string

// Get returns the value for the given key, case-insensitive.
// Returns empty string if key not found.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[CanonicalHeaderKey(key)]
}

// Has reports whether the header carries key.
func (h Header) Has(key string) bool {
	if h == nil {
		return false
	}
	_, ok := h[CanonicalHeaderKey(key)]
	return ok
}

// Set sets the header value, replacing any existing value.
func (h Header) Set(key, value string) {
	if h == nil {
		return
	}
	h[CanonicalHeaderKey(key)] = value
}

// Del removes the value for the given key.
func (h Header) Del(key string) {
	if h == nil {
		return
	}
	delete(h, CanonicalHeaderKey(key))
}

// Clone returns a copy of the header.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	clone := make(Header, len(h))
	for k, v := range h {
		clone[k] = v
	}
	return clone
}

// hasToken reports whether the comma-separated list under key contains
// token, compared case-insensitively.
func (h Header) hasToken(key, token string) bool {
	for _, part := range strings.Split(h.Get(key), ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// sortedKeys returns the header names in lexical order.
func (h Header) sortedKeys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteTo writes the headers to w in HTTP format, sorted by name.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, k := range h.sortedKeys() {
		cnt, err := io.WriteString(w, k+": "+h[k]+"\r\n")
		n += int64(cnt)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// CanonicalHeaderKey returns the canonical format of the header key.
// The first character and any character following a hyphen are uppercased;
// the rest are lowercased. Examples: "content-type" -> "Content-Type".
func CanonicalHeaderKey(s string) string {
	if s == "" {
		return s
	}
	result := make([]byte, len(s))
	upperNext := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case upperNext && c >= 'a' && c <= 'z':
			result[i] = c - 'a' + 'A'
		case !upperNext && c >= 'A' && c <= 'Z':
			result[i] = c - 'A' + 'a'
		default:
			result[i] = c
		}
		upperNext = c == '-'
	}
	return string(result)
}

// ProtocolError represents malformed or unframeable input. A Conn that
// returns one is closed without sending a response.
type ProtocolError struct {
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "http: " + e.Message + ": " + e.Err.Error()
	}
	return "http: " + e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// TransportError wraps a read or write failure of the underlying stream.
// It is always fatal to the connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "http: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline expiry.
func (e *TransportError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// isTokenChar returns true if the byte is a valid token character.
func isTokenChar(c byte) bool {
	return c < 0x80 && tokenChars[c]
}

// tokenChars is a lookup table for valid HTTP token characters.
var tokenChars = [256]bool{
	'!': true, '#': true, '$': true, '%': true, '&': true,
	'\'': true, '*': true, '+': true, '-': true, '.': true,
	'^': true, '_': true, '`': true, '|': true, '~': true,
	'0': true, '1': true, '2': true, '3': true, '4': true,
	'5': true, '6': true, '7': true, '8': true, '9': true,
	'A': true, 'B': true, 'C': true, 'D': true, 'E': true,
	'F': true, 'G': true, 'H': true, 'I': true, 'J': true,
	'K': true, 'L': true, 'M': true, 'N': true, 'O': true,
	'P': true, 'Q': true, 'R': true, 'S': true, 'T': true,
	'U': true, 'V': true, 'W': true, 'X': true, 'Y': true,
	'Z': true, 'a': true, 'b': true, 'c': true, 'd': true,
	'e': true, 'f': true, 'g': true, 'h': true, 'i': true,
	'j': true, 'k': true, 'l': true, 'm': true, 'n': true,
	'o': true, 'p': true, 'q': true, 'r': true, 's': true,
	't': true, 'u': true, 'v': true, 'w': true, 'x': true,
	'y': true, 'z': true,
}

// isToken checks that s is a non-empty run of token characters.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}
