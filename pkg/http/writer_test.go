package http

import (
	"bufio"
	"bytes"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC)

func TestWriteResponse_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		resp   *Response
		status int
	}{
		{"default status", &Response{Body: []byte("hello\n")}, 200},
		{"binary body", &Response{Body: []byte{0, 1, 2, 0xff, '\r', '\n'}, StatusCode: 201}, 201},
		{"empty body", &Response{StatusCode: 404}, 404},
		{"headers", &Response{Body: []byte("{}"), ContentType: "application/json", Header: Header{"X-Trace": "abc"}}, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteResponse(&buf, tt.resp, DefaultHeaders("", fixedNow)); err != nil {
				t.Fatalf("WriteResponse error: %v", err)
			}
			got, err := nethttp.ReadResponse(bufio.NewReader(&buf), nil)
			if err != nil {
				t.Fatalf("ReadResponse error: %v", err)
			}
			defer got.Body.Close()
			if got.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", got.StatusCode, tt.status)
			}
			body, err := io.ReadAll(got.Body)
			if err != nil {
				t.Fatalf("reading body: %v", err)
			}
			if !bytes.Equal(body, tt.resp.Body) {
				t.Errorf("body = %q, want %q", body, tt.resp.Body)
			}
			if got.ContentLength != int64(len(tt.resp.Body)) {
				t.Errorf("Content-Length = %d, want %d", got.ContentLength, len(tt.resp.Body))
			}
			if got.Header.Get("Server") != DefaultServerName {
				t.Errorf("Server = %q", got.Header.Get("Server"))
			}
			if got.Header.Get("Date") != "Tue, 05 Mar 2024 14:30:00 GMT" {
				t.Errorf("Date = %q", got.Header.Get("Date"))
			}
			for k, v := range tt.resp.Header {
				if got.Header.Get(k) != v {
					t.Errorf("header %s = %q, want %q", k, got.Header.Get(k), v)
				}
			}
		})
	}
}

func TestWriteResponse_DefaultsAndOverrides(t *testing.T) {
	resp := &Response{
		Body:   []byte("abc"),
		Header: Header{"server": "custom/1.0", "content-length": "999"},
	}
	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp, DefaultHeaders("answer-test", fixedNow)); err != nil {
		t.Fatalf("WriteResponse error: %v", err)
	}
	want := "HTTP/1.1 200 OK\r\n" +
		"Date: Tue, 05 Mar 2024 14:30:00 GMT\r\n" +
		"Server: custom/1.0\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 3\r\n" +
		"\r\n" +
		"abc"
	if buf.String() != want {
		t.Errorf("wire bytes =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestResponseEvents(t *testing.T) {
	resp := Text(StatusOK, "body")

	events := responseEvents(resp, nil, false)
	kinds := make([]string, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind.String()
	}
	if strings.Join(kinds, ",") != "Response,Data,EndOfMessage" {
		t.Errorf("events = %v", kinds)
	}

	head := responseEvents(resp, nil, true)
	if len(head) != 2 || head[1].Kind != EventEndOfMessage {
		t.Errorf("HEAD events = %+v", head)
	}
	if head[0].Header.Get(HeaderContentLength) != "4" {
		t.Errorf("HEAD keeps Content-Length, got %q", head[0].Header.Get(HeaderContentLength))
	}
}

func TestResponseHeader_BodilessStatuses(t *testing.T) {
	for _, status := range []int{StatusContinue, StatusNoContent, StatusNotModified} {
		h := (&Response{StatusCode: status}).header(nil)
		if h.Has(HeaderContentLength) {
			t.Errorf("status %d should not carry Content-Length", status)
		}
	}
	events := responseEvents(&Response{StatusCode: StatusNotModified, Body: []byte("x")}, nil, false)
	for _, ev := range events {
		if ev.Kind == EventData {
			t.Errorf("304 must not carry a body")
		}
	}
}

func TestResponseConstructors(t *testing.T) {
	r := NewResponse([]byte("x"))
	if r.Status() != StatusOK || r.ContentType != DefaultContentType {
		t.Errorf("NewResponse defaults = %d %q", r.Status(), r.ContentType)
	}
	if (&Response{}).Status() != StatusOK {
		t.Errorf("zero status should mean 200")
	}
	e := Error(StatusNotFound)
	if e.StatusCode != StatusNotFound || string(e.Body) != "Not Found\n" {
		t.Errorf("Error(404) = %d %q", e.StatusCode, e.Body)
	}
	h := (&Response{Body: []byte("12345")}).header(nil)
	if n, _ := strconv.Atoi(h.Get(HeaderContentLength)); n != 5 {
		t.Errorf("Content-Length = %q", h.Get(HeaderContentLength))
	}
	if h.Get(HeaderContentType) != DefaultContentType {
		t.Errorf("Content-Type = %q", h.Get(HeaderContentType))
	}
}

func TestWriteEvent_RejectsInboundKinds(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	if err := writeEvent(bw, Event{Kind: EventRequest}); err == nil {
		t.Errorf("expected error writing a request event")
	}
	if err := writeHead(bw, 42, nil); err == nil {
		t.Errorf("expected error for invalid status")
	}
}
