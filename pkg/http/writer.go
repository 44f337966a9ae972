package http

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"
)

// leadingHeaders are written first, in this order, when present.
var leadingHeaders = []string{
	HeaderDate,
	HeaderServer,
	HeaderContentType,
	HeaderContentLength,
	HeaderConnection,
}

// DefaultHeaders returns the Date and Server fields attached to every
// outgoing response and interim response.
func DefaultHeaders(serverName string, now time.Time) Header {
	if serverName == "" {
		serverName = DefaultServerName
	}
	return Header{
		HeaderDate:   now.UTC().Format(TimeFormat),
		HeaderServer: serverName,
	}
}

// WriteResponse serializes resp to w: status line, header block with
// defaults overridden by the response's own fields, exact Content-Length,
// then the body.
func WriteResponse(w io.Writer, resp *Response, defaults Header) error {
	bw := bufio.NewWriter(w)
	for _, ev := range responseEvents(resp, defaults, false) {
		if err := writeEvent(bw, ev); err != nil {
			return err
		}
	}
	return nil
}

// responseEvents turns resp into the event sequence a Conn sends. When
// head is set the body is suppressed but the framing fields are kept.
func responseEvents(resp *Response, defaults Header, head bool) []Event {
	status := resp.Status()
	events := []Event{{
		Kind:       EventResponse,
		StatusCode: status,
		Header:     resp.header(defaults),
	}}
	if !head && bodyAllowed(status) && len(resp.Body) > 0 {
		events = append(events, Event{Kind: EventData, Data: resp.Body})
	}
	return append(events, Event{Kind: EventEndOfMessage})
}

// writeEvent encodes one outgoing event. EventEndOfMessage flushes.
func writeEvent(w *bufio.Writer, ev Event) error {
	switch ev.Kind {
	case EventInformational, EventResponse:
		return writeHead(w, ev.StatusCode, ev.Header)
	case EventData:
		_, err := w.Write(ev.Data)
		return err
	case EventEndOfMessage:
		return w.Flush()
	default:
		return fmt.Errorf("http: cannot send %s event: %w", ev.Kind, ErrInvalidState)
	}
}

// writeHead writes the status line and header block.
func writeHead(w *bufio.Writer, status int, h Header) error {
	if status < 100 || status > 999 {
		return fmt.Errorf("http: invalid status code %d", status)
	}
	w.WriteString(ProtocolHTTP11 + " " + strconv.Itoa(status) + " " + StatusText(status) + "\r\n")
	rest := h.Clone()
	for _, k := range leadingHeaders {
		if v, ok := rest[k]; ok {
			w.WriteString(k + ": " + v + "\r\n")
			delete(rest, k)
		}
	}
	if _, err := rest.WriteTo(w); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}
