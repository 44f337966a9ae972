package http

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// State is the server-side state of one HTTP/1.1 connection.
type State int

const (
	StateIdle State = iota
	StateAwaitingRequest
	StateRequestReady
	StateSendingResponse
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitingRequest:
		return "AWAITING_REQUEST"
	case StateRequestReady:
		return "REQUEST_READY"
	case StateSendingResponse:
		return "SENDING_RESPONSE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnConfig holds per-connection limits and deadlines. Zero values take
// the package defaults; zero timeouts disable the deadline.
type ConnConfig struct {
	ServerName     string
	MaxHeaderBytes int
	MaxBodyBytes   int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	DrainTimeout   time.Duration
	Now            func() time.Time

	// OnRequestStart, if set, is called from NextRequest once the first
	// byte of a request has arrived.
	OnRequestStart func()
}

func (cfg ConnConfig) withDefaults() ConnConfig {
	if cfg.ServerName == "" {
		cfg.ServerName = DefaultServerName
	}
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// recvPhase tracks where the inbound parser is within one message.
type recvPhase int

const (
	recvHead recvPhase = iota
	recvBody
	recvEnd
	recvDone
)

const readChunkSize = 4096

type closeWriter interface {
	CloseWrite() error
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Conn drives one HTTP/1.1 server connection over a byte stream. It is
// not safe for concurrent use; one goroutine owns it for its lifetime.
type Conn struct {
	stream io.ReadWriteCloser
	br     *bufio.Reader
	bw     *bufio.Writer
	cfg    ConnConfig
	remote string

	state    State
	released bool

	// Per-cycle fields, reset when a response completes.
	phase          recvPhase
	req            *Request
	keepAlive      bool
	expectContinue bool
	remaining      int64
	chunked        *chunkedReader
	bodyRead       int64

	noKeepAlive bool
}

// NewConn wraps an accepted stream. If the stream supports CloseWrite, it
// is used for the half-close performed by Shutdown; if it supports
// deadlines, the configured timeouts are applied.
func NewConn(stream io.ReadWriteCloser, cfg ConnConfig) *Conn {
	c := &Conn{
		stream: stream,
		br:     bufio.NewReaderSize(stream, readChunkSize),
		bw:     bufio.NewWriterSize(stream, readChunkSize),
		cfg:    cfg.withDefaults(),
	}
	if rc, ok := stream.(interface{ RemoteAddr() net.Addr }); ok && rc.RemoteAddr() != nil {
		c.remote = rc.RemoteAddr().String()
	}
	return c
}

// State returns the current connection state.
func (c *Conn) State() State {
	return c.state
}

// MustClose reports whether the connection can serve no further requests.
func (c *Conn) MustClose() bool {
	return c.state == StateClosing || c.state == StateClosed
}

// DisableKeepAlive makes the next response the last one on this
// connection.
func (c *Conn) DisableKeepAlive() {
	c.noKeepAlive = true
	c.keepAlive = false
}

// NextRequest blocks until a complete request has been received. It
// returns io.EOF when the peer closed the stream between messages, a
// *ProtocolError when the input cannot be framed, and a *TransportError
// when the stream fails. After any error the connection accepts no more
// requests and should be shut down.
func (c *Conn) NextRequest() (*Request, error) {
	if c.state != StateIdle {
		return nil, ErrInvalidState
	}
	c.state = StateAwaitingRequest
	if c.cfg.ReadTimeout > 0 {
		if d, ok := c.stream.(deadliner); ok {
			d.SetReadDeadline(c.cfg.Now().Add(c.cfg.ReadTimeout))
		}
	}

	if _, err := c.br.Peek(1); err != nil {
		if err == io.EOF {
			c.state = StateClosing
			return nil, io.EOF
		}
		return nil, c.fail(readError(err))
	}
	if c.cfg.OnRequestStart != nil {
		c.cfg.OnRequestStart()
	}

	ev, err := c.nextEvent()
	if err != nil {
		return nil, c.fail(err)
	}
	if ev.Kind == EventConnectionClosed {
		c.state = StateClosing
		return nil, io.EOF
	}
	req := &Request{
		Method:     ev.Method,
		Target:     ev.Target,
		Proto:      ev.Proto,
		Header:     ev.Header,
		RemoteAddr: c.remote,
	}

	var body []byte
	for {
		ev, err = c.nextEvent()
		if err != nil {
			return nil, c.fail(err)
		}
		if ev.Kind == EventEndOfMessage {
			break
		}
		body = append(body, ev.Data...)
	}
	req.Body = body

	c.req = req
	c.state = StateRequestReady
	return req, nil
}

// SendResponse writes resp for the request last returned by NextRequest
// and blocks until it is flushed. Afterwards the connection is either
// idle again or closing, see MustClose.
func (c *Conn) SendResponse(resp *Response) error {
	if c.state != StateRequestReady {
		return ErrInvalidState
	}
	if resp == nil {
		return errors.New("http: nil response")
	}
	if status := resp.Status(); status < 200 || status > 999 {
		return fmt.Errorf("http: invalid final status %d: %w", status, ErrInvalidState)
	}
	c.state = StateSendingResponse
	if c.cfg.WriteTimeout > 0 {
		if d, ok := c.stream.(deadliner); ok {
			d.SetWriteDeadline(c.cfg.Now().Add(c.cfg.WriteTimeout))
		}
	}

	events := responseEvents(resp, c.defaultHeaders(), c.req.Method == MethodHead)
	head := events[0].Header
	if head.hasToken(HeaderConnection, ConnectionClose) || c.noKeepAlive {
		c.keepAlive = false
	}
	if !c.keepAlive {
		head.Set(HeaderConnection, ConnectionClose)
	}
	for _, ev := range events {
		if err := c.send(ev); err != nil {
			return c.fail(err)
		}
	}
	return nil
}

// Shutdown closes the connection gracefully: it signals end of output,
// drains whatever the peer still sends until it closes or DrainTimeout
// passes, then releases the stream. Streams that cannot half-close are
// closed directly. Shutdown is valid in any state.
func (c *Conn) Shutdown() error {
	if c.released {
		return nil
	}
	c.released = true
	if c.state != StateClosed {
		c.state = StateClosing
	}
	defer func() { c.state = StateClosed }()

	cw, ok := c.stream.(closeWriter)
	if !ok {
		return c.stream.Close()
	}
	if err := cw.CloseWrite(); err != nil {
		c.stream.Close()
		return &TransportError{Op: "close write", Err: err}
	}
	if d, ok := c.stream.(deadliner); ok && c.cfg.DrainTimeout > 0 {
		d.SetReadDeadline(c.cfg.Now().Add(c.cfg.DrainTimeout))
	}
	io.Copy(io.Discard, c.br)
	return c.stream.Close()
}

func (c *Conn) defaultHeaders() Header {
	return DefaultHeaders(c.cfg.ServerName, c.cfg.Now())
}

// fail moves the connection to StateClosed and normalizes err.
func (c *Conn) fail(err error) error {
	c.state = StateClosed
	var pe *ProtocolError
	var te *TransportError
	if errors.As(err, &pe) || errors.As(err, &te) || errors.Is(err, ErrInvalidState) {
		return err
	}
	return &TransportError{Op: "write", Err: err}
}

// send encodes one outgoing event, enforcing which events are legal in the
// current state.
func (c *Conn) send(ev Event) error {
	switch ev.Kind {
	case EventInformational:
		if c.state != StateAwaitingRequest {
			return ErrInvalidState
		}
		if err := writeEvent(c.bw, ev); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
		if err := c.bw.Flush(); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
		return nil
	case EventResponse, EventData, EventEndOfMessage:
		if c.state != StateSendingResponse {
			return ErrInvalidState
		}
	default:
		return ErrInvalidState
	}
	if err := writeEvent(c.bw, ev); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if ev.Kind == EventEndOfMessage {
		c.finishCycle()
	}
	return nil
}

// finishCycle resets per-cycle state once a response is on the wire.
func (c *Conn) finishCycle() {
	if c.keepAlive {
		c.state = StateIdle
	} else {
		c.state = StateClosing
	}
	c.phase = recvHead
	c.req = nil
	c.keepAlive = false
	c.expectContinue = false
	c.remaining = 0
	c.chunked = nil
	c.bodyRead = 0
}

// nextEvent advances the inbound parser by one event.
func (c *Conn) nextEvent() (Event, error) {
	switch c.phase {
	case recvHead:
		return c.readHead()
	case recvBody:
		return c.readBody()
	case recvEnd:
		c.phase = recvDone
		return Event{Kind: EventEndOfMessage}, nil
	default:
		return Event{}, ErrInvalidState
	}
}

// readLine reads one line without its terminator, charging its length
// against budget.
func (c *Conn) readLine(budget *int) (string, error) {
	var line []byte
	for {
		l, more, err := c.br.ReadLine()
		if err != nil {
			return "", err
		}
		*budget -= len(l) + 2
		if *budget < 0 {
			return "", &ProtocolError{Message: "header block too large"}
		}
		if line == nil && !more {
			return string(l), nil
		}
		line = append(line, l...)
		if !more {
			return string(line), nil
		}
	}
}

// readError classifies a failure that happened while a message was being
// received.
func readError(err error) error {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &ProtocolError{Message: "connection closed mid-message", Err: err}
	}
	return &TransportError{Op: "read", Err: err}
}

func (c *Conn) readHead() (Event, error) {
	budget := c.cfg.MaxHeaderBytes
	var line string
	for line == "" {
		l, err := c.readLine(&budget)
		if err == io.EOF {
			return Event{Kind: EventConnectionClosed}, nil
		}
		if err != nil {
			return Event{}, readError(err)
		}
		line = l
	}
	method, target, proto, err := ParseRequestLine(line)
	if err != nil {
		return Event{}, err
	}

	h := make(Header)
	for {
		l, err := c.readLine(&budget)
		if err != nil {
			return Event{}, readError(err)
		}
		if l == "" {
			break
		}
		name, value, err := ParseHeaderLine(l)
		if err != nil {
			return Event{}, err
		}
		h.Set(name, value)
	}

	ambiguous, err := c.frameBody(h)
	if err != nil {
		return Event{}, err
	}
	c.keepAlive = proto == ProtocolHTTP11 &&
		!h.hasToken(HeaderConnection, ConnectionClose) &&
		!ambiguous && !c.noKeepAlive
	c.expectContinue = c.phase == recvBody && proto == ProtocolHTTP11 &&
		strings.EqualFold(h.Get(HeaderExpect), expectContinue)

	return Event{Kind: EventRequest, Method: method, Target: target, Proto: proto, Header: h}, nil
}

// frameBody decides how the request body is delimited. It reports whether
// the framing was ambiguous, in which case the connection must not be
// reused.
func (c *Conn) frameBody(h Header) (bool, error) {
	te, cl := h.Get(HeaderTransferEncoding), h.Get(HeaderContentLength)
	switch {
	case te != "":
		if !strings.EqualFold(strings.TrimSpace(te), transferEncodingChunked) {
			return false, &ProtocolError{Message: "unsupported transfer coding: " + quoteLine(te)}
		}
		c.chunked = &chunkedReader{c: c}
		c.phase = recvBody
		return cl != "", nil
	case cl != "":
		n := parseContentLength(cl)
		if n < 0 {
			return false, &ProtocolError{Message: "invalid Content-Length: " + quoteLine(cl)}
		}
		if n > c.cfg.MaxBodyBytes {
			return false, &ProtocolError{Message: "request body too large"}
		}
		c.remaining = n
		if n > 0 {
			c.phase = recvBody
		} else {
			c.phase = recvEnd
		}
	default:
		c.phase = recvEnd
	}
	return false, nil
}

func (c *Conn) readBody() (Event, error) {
	if c.expectContinue {
		c.expectContinue = false
		if c.br.Buffered() == 0 {
			ev := Event{Kind: EventInformational, StatusCode: StatusContinue, Header: c.defaultHeaders()}
			if err := c.send(ev); err != nil {
				return Event{}, err
			}
		}
	}

	if c.chunked != nil {
		data, err := c.chunked.next()
		if err != nil {
			return Event{}, readError(err)
		}
		if data == nil {
			c.phase = recvDone
			return Event{Kind: EventEndOfMessage}, nil
		}
		if c.bodyRead += int64(len(data)); c.bodyRead > c.cfg.MaxBodyBytes {
			return Event{}, &ProtocolError{Message: "request body too large"}
		}
		return Event{Kind: EventData, Data: data}, nil
	}

	n := c.remaining
	if n > readChunkSize {
		n = readChunkSize
	}
	buf := make([]byte, n)
	m, err := c.br.Read(buf)
	if m > 0 {
		c.remaining -= int64(m)
		if c.remaining == 0 {
			c.phase = recvEnd
		}
		return Event{Kind: EventData, Data: buf[:m]}, nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return Event{}, readError(err)
}
