package http

import (
	"strconv"
)

// Response is what a handler hands back. The zero StatusCode means 200 and
// an empty ContentType means text/plain. Header holds additional fields;
// those override the connection defaults of the same name.
type Response struct {
	Body        []byte
	StatusCode  int
	ContentType string
	Header      Header
}

// NewResponse creates a 200 text/plain response carrying body.
func NewResponse(body []byte) *Response {
	return &Response{
		Body:        body,
		StatusCode:  StatusOK,
		ContentType: DefaultContentType,
		Header:      make(Header),
	}
}

// Text creates a plain text response with the given status.
func Text(statusCode int, text string) *Response {
	resp := NewResponse([]byte(text))
	resp.StatusCode = statusCode
	return resp
}

// Error creates a plain text response whose body is the status text.
func Error(statusCode int) *Response {
	return Text(statusCode, StatusText(statusCode)+"\n")
}

// Status returns the effective status code.
func (r *Response) Status() int {
	if r.StatusCode == 0 {
		return StatusOK
	}
	return r.StatusCode
}

// bodyAllowed reports whether a response with status may carry content.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == StatusNoContent, status == StatusNotModified:
		return false
	}
	return true
}

// header composes the final header block: defaults first, then the
// content type, then the response's own fields, then the framing fields
// that must always reflect the actual body.
func (r *Response) header(defaults Header) Header {
	h := make(Header, len(defaults)+len(r.Header)+3)
	for k, v := range defaults {
		h[k] = v
	}
	ct := r.ContentType
	if ct == "" {
		ct = DefaultContentType
	}
	h.Set(HeaderContentType, ct)
	for k, v := range r.Header {
		h.Set(k, v)
	}
	h.Del(HeaderTransferEncoding)
	status := r.Status()
	switch {
	case !bodyAllowed(status):
		h.Del(HeaderContentLength)
	default:
		h.Set(HeaderContentLength, strconv.Itoa(len(r.Body)))
	}
	return h
}

// StatusText returns the standard text for the given status code.
func StatusText(code int) string {
	switch code {
	case StatusContinue:
		return "Continue"
	case StatusSwitchingProtocols:
		return "Switching Protocols"
	case StatusOK:
		return "OK"
	case StatusCreated:
		return "Created"
	case StatusAccepted:
		return "Accepted"
	case StatusNoContent:
		return "No Content"
	case StatusPartialContent:
		return "Partial Content"
	case StatusMovedPermanently:
		return "Moved Permanently"
	case StatusFound:
		return "Found"
	case StatusSeeOther:
		return "See Other"
	case StatusNotModified:
		return "Not Modified"
	case StatusBadRequest:
		return "Bad Request"
	case StatusUnauthorized:
		return "Unauthorized"
	case StatusForbidden:
		return "Forbidden"
	case StatusNotFound:
		return "Not Found"
	case StatusMethodNotAllowed:
		return "Method Not Allowed"
	case StatusRequestTimeout:
		return "Request Timeout"
	case StatusRangeNotSatisfiable:
		return "Range Not Satisfiable"
	case StatusInternalServerError:
		return "Internal Server Error"
	case StatusNotImplemented:
		return "Not Implemented"
	case StatusBadGateway:
		return "Bad Gateway"
	case StatusServiceUnavailable:
		return "Service Unavailable"
	case StatusGatewayTimeout:
		return "Gateway Timeout"
	default:
		return "Unknown"
	}
}
