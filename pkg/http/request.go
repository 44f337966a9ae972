package http

import (
	"strings"
)

// Request represents a fully received HTTP request. A Conn creates it once
// the header block and the whole body have arrived; it is not modified
// afterwards.
type Request struct {
	Method     string
	Target     string // request-target as sent, including any query
	Proto      string
	Header     Header
	Body       []byte
	RemoteAddr string
}

// Path returns the request target without its query component.
func (r *Request) Path() string {
	if i := strings.IndexByte(r.Target, '?'); i >= 0 {
		return r.Target[:i]
	}
	return r.Target
}

// ContentLength returns the Content-Length header value, or -1 if not set
// or not a plain decimal number.
func (r *Request) ContentLength() int64 {
	return parseContentLength(r.Header.Get(HeaderContentLength))
}

// UserAgent returns the User-Agent header value.
func (r *Request) UserAgent() string {
	return r.Header.Get(HeaderUserAgent)
}

// ParseRequestLine parses an HTTP request line.
// Returns method, target, and protocol.
func ParseRequestLine(line string) (string, string, string, error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", &ProtocolError{Message: "malformed request line: " + quoteLine(line)}
	}
	method, target, proto := parts[0], parts[1], parts[2]
	if !isToken(method) {
		return "", "", "", &ProtocolError{Message: "invalid method: " + quoteLine(method)}
	}
	if target == "" {
		return "", "", "", &ProtocolError{Message: "empty request target"}
	}
	maj, mnr, ok := parseHTTPVersion(proto)
	if !ok || maj != 1 || mnr > 1 {
		return "", "", "", &ProtocolError{Message: "unsupported protocol version: " + quoteLine(proto)}
	}
	return method, target, proto, nil
}

// ParseHeaderLine splits a single header field line into name and value.
func ParseHeaderLine(line string) (string, string, error) {
	if line[0] == ' ' || line[0] == '\t' {
		return "", "", &ProtocolError{Message: "obsolete line folding in header block"}
	}
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", "", &ProtocolError{Message: "malformed header: " + quoteLine(line)}
	}
	name := line[:idx]
	if !isToken(name) {
		return "", "", &ProtocolError{Message: "invalid header name: " + quoteLine(name)}
	}
	return name, strings.TrimSpace(line[idx+1:]), nil
}

// parseHTTPVersion parses "HTTP/x.y" with single-digit major and minor.
func parseHTTPVersion(v string) (int, int, bool) {
	if len(v) != len("HTTP/1.1") || !strings.HasPrefix(v, "HTTP/") || v[6] != '.' {
		return 0, 0, false
	}
	maj, mnr := v[5], v[7]
	if maj < '0' || maj > '9' || mnr < '0' || mnr > '9' {
		return 0, 0, false
	}
	return int(maj - '0'), int(mnr - '0'), true
}

func parseContentLength(cl string) int64 {
	if cl == "" {
		return -1
	}
	var n int64
	for _, c := range []byte(cl) {
		if c < '0' || c > '9' {
			return -1
		}
		if n > (1<<62)/10 {
			return -1
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

// quoteLine trims overly long input before it is embedded in an error.
func quoteLine(s string) string {
	const limit = 64
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return "\"" + s + "\""
}
