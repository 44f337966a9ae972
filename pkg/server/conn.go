package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"answer/pkg/http"
	"answer/pkg/router"
)

// HandlerError is a failure inside application handler code. A returned
// error is answered with 500 and the connection stays usable; a panic
// aborts the connection.
type HandlerError struct {
	Method string
	Path   string
	Err    error
	Panic  any
	Stack  []byte
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("server: panic serving %s %s: %v", e.Method, e.Path, e.Panic)
	}
	return fmt.Sprintf("server: handler for %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

var errNilResponse = errors.New("handler returned no response")

// ServeConn runs the request loop for one connection until the peer closes
// it, a response ends it, or it fails. The stream is always shut down and
// released before ServeConn returns. A clean end of the connection yields
// nil; otherwise the *http.ProtocolError, *http.TransportError or
// *HandlerError that ended it is returned.
func (s *Server) ServeConn(ctx context.Context, stream io.ReadWriteCloser) error {
	id := s.nextConn.Add(1)
	ccfg := s.cfg.connConfig()
	cs := &connStatus{stream: stream, remote: remoteAddr(stream), opened: time.Now(), readTimeout: ccfg.ReadTimeout}
	ccfg.OnRequestStart = cs.requestStarted
	c := http.NewConn(stream, ccfg)
	s.conns.Store(id, cs)
	defer func() {
		s.conns.Delete(id)
		if s.closing.Load() {
			s.releaseRing()
		}
	}()

	log := s.log.With().Uint64("conn", id).Str("remote", cs.remote).Logger()
	ctx = log.WithContext(ctx)
	log.Debug().Msg("connection opened")

	err := s.serveRequests(ctx, c, cs, &log)
	if serr := c.Shutdown(); serr != nil && err == nil {
		log.Debug().Err(serr).Msg("shutdown failed")
	}
	log.Debug().Dur("age", time.Since(cs.opened)).Msg("connection closed")
	return err
}

func (s *Server) serveRequests(ctx context.Context, c *http.Conn, cs *connStatus, log *zerolog.Logger) error {
	for {
		cs.setIdle()
		if s.closing.Load() {
			return nil
		}
		req, err := c.NextRequest()
		if err != nil {
			return s.readFailed(err, log)
		}

		resp, err := s.handle(ctx, req)
		if err != nil {
			var he *HandlerError
			if errors.As(err, &he) && he.Panic != nil {
				log.Error().Err(err).Bytes("stack", he.Stack).Msg("handler panicked, aborting connection")
				return err
			}
			log.Error().Err(err).Str("method", req.Method).Str("path", req.Path()).Msg("request failed")
		}

		if s.closing.Load() {
			c.DisableKeepAlive()
		}
		if err := c.SendResponse(resp); err != nil {
			log.Debug().Err(err).Msg("sending response failed")
			return err
		}
		if c.MustClose() {
			return nil
		}
	}
}

// readFailed classifies an error from NextRequest.
func (s *Server) readFailed(err error, log *zerolog.Logger) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	var te *http.TransportError
	if errors.As(err, &te) && te.Timeout() {
		if s.closing.Load() {
			return nil
		}
		log.Debug().Err(err).Msg("read timed out")
		return err
	}
	var pe *http.ProtocolError
	if errors.As(err, &pe) {
		log.Warn().Err(err).Msg("malformed request, closing connection")
		return err
	}
	log.Debug().Err(err).Msg("read failed")
	return err
}

// handle resolves and runs the handler for req. It always returns a
// response to send, except for a panic, which returns a nil response and
// a *HandlerError carrying the panic value.
func (s *Server) handle(ctx context.Context, req *http.Request) (resp *http.Response, err error) {
	m, err := s.table.Match(req.Path())
	h := s.notFound
	switch {
	case err == nil:
		h = m.Handler
		ctx = router.WithParams(ctx, m.Params)
	case errors.Is(err, router.ErrNotFound):
	default:
		return http.Error(http.StatusInternalServerError), fmt.Errorf("route table: %w", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = &HandlerError{Method: req.Method, Path: req.Path(), Panic: rec, Stack: debug.Stack()}
		}
	}()
	resp, err = h.ServeHTTP(ctx, req)
	switch {
	case err != nil:
	case resp == nil:
		err = errNilResponse
	case resp.Status() < 200 || resp.Status() > 999:
		err = fmt.Errorf("invalid response status %d", resp.Status())
	}
	if err != nil {
		return http.Error(http.StatusInternalServerError), &HandlerError{Method: req.Method, Path: req.Path(), Err: err}
	}
	return resp, nil
}

func remoteAddr(stream io.ReadWriteCloser) string {
	if nc, ok := stream.(net.Conn); ok && nc.RemoteAddr() != nil {
		return nc.RemoteAddr().String()
	}
	return ""
}
