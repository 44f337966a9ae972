package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"answer/pkg/http"
	"answer/pkg/router"
	"answer/pkg/transport"
)

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown
// or Close.
var ErrServerClosed = errors.New("server: closed")

const shutdownPollInterval = 50 * time.Millisecond

// Server accepts connections and runs one request loop per connection
// against a compiled route table.
type Server struct {
	cfg      Config
	log      zerolog.Logger
	table    *router.Table
	notFound http.Handler
	ring     *transport.Ring
	ringOnce sync.Once

	baseCtx context.Context
	cancel  context.CancelFunc

	conns    *xsync.MapOf[uint64, *connStatus]
	nextConn atomic.Uint64
	closing  atomic.Bool

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
}

// connStatus is the registry entry of one live connection.
type connStatus struct {
	stream      io.Closer
	remote      string
	opened      time.Time
	readTimeout time.Duration

	// mu guards idle and interrupted. A connection is idle from the end of
	// one response until the first byte of the next request arrives.
	mu          sync.Mutex
	idle        bool
	interrupted bool
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

func (cs *connStatus) setIdle() {
	cs.mu.Lock()
	cs.idle, cs.interrupted = true, false
	cs.mu.Unlock()
}

// requestStarted marks the connection busy. If an interrupt raced with the
// arrival of the request, the read deadline it set is lifted again.
func (cs *connStatus) requestStarted() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.idle = false
	if !cs.interrupted {
		return
	}
	cs.interrupted = false
	if d, ok := cs.stream.(readDeadliner); ok {
		var deadline time.Time
		if cs.readTimeout > 0 {
			deadline = time.Now().Add(cs.readTimeout)
		}
		d.SetReadDeadline(deadline)
	}
}

// interruptIdle wakes the connection if it is blocked waiting for its next
// request.
func (cs *connStatus) interruptIdle() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.idle {
		return
	}
	cs.interrupted = true
	if d, ok := cs.stream.(readDeadliner); ok {
		d.SetReadDeadline(time.Now())
	} else {
		cs.stream.Close()
	}
}

// New creates a server for table, compiling it if needed.
func New(cfg Config, table *router.Table) (*Server, error) {
	cfg = cfg.withDefaults()
	if table == nil {
		return nil, errors.New("server: nil route table")
	}
	if err := table.Compile(); err != nil {
		return nil, fmt.Errorf("server: compiling routes: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		log:       *cfg.Logger,
		table:     table,
		notFound:  http.HandlerFunc(notFound),
		conns:     xsync.NewMapOf[uint64, *connStatus](),
		listeners: make(map[net.Listener]struct{}),
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	if cfg.StaticDir != "" {
		s.notFound = NewStaticFileHandler(cfg.StaticDir)
	}
	if cfg.IOURing {
		ring, err := transport.NewRing(transport.DefaultRingEntries)
		if err != nil {
			s.log.Warn().Err(err).Msg("io_uring disabled, using standard sockets")
		} else {
			s.ring = ring
		}
	}
	return s, nil
}

func notFound(ctx context.Context, req *http.Request) (*http.Response, error) {
	return http.Error(http.StatusNotFound), nil
}

// ListenAndServe listens on the configured TCP address and serves it.
func (s *Server) ListenAndServe() error {
	if s.closing.Load() {
		return ErrServerClosed
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server is shut down, serving
// each one on its own goroutine. It always returns a non-nil error.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	s.log.Info().Str("addr", ln.Addr().String()).Bool("io_uring", s.ring != nil).Msg("serving")

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		backoff = 0
		go s.serveAccepted(nc)
	}
}

func (s *Server) serveAccepted(nc net.Conn) {
	var stream io.ReadWriteCloser = nc
	if tc, ok := nc.(*net.TCPConn); ok && s.ring != nil {
		rc, err := s.ring.Conn(tc)
		if err != nil {
			s.log.Warn().Err(err).Msg("io_uring wrap failed, using standard socket")
		} else {
			stream = rc
		}
	}
	s.ServeConn(s.baseCtx, stream)
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, ln)
}

func (s *Server) closeListeners() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		delete(s.listeners, ln)
	}
	return errors.Join(errs...)
}

// Shutdown stops accepting, lets in-flight requests finish with
// Connection: close, wakes idle connections so they close gracefully, and
// waits until every connection is gone or ctx is done. Remaining
// connections are then closed forcibly and ctx.Err() is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing.Store(true)
	s.mu.Unlock()

	err := s.closeListeners()
	s.interruptIdle()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for s.conns.Size() > 0 {
		select {
		case <-ctx.Done():
			s.closeConns()
			s.finish()
			return ctx.Err()
		case <-ticker.C:
			s.interruptIdle()
		}
	}
	s.finish()
	return err
}

// Close closes all listeners and connections immediately.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closing.Store(true)
	s.mu.Unlock()

	err := s.closeListeners()
	s.closeConns()
	s.finish()
	return err
}

func (s *Server) finish() {
	s.cancel()
	s.releaseRing()
}

// releaseRing closes the io_uring once the server is closing and no
// connection can still have operations in flight on it.
func (s *Server) releaseRing() {
	if s.ring == nil || !s.closing.Load() || s.conns.Size() > 0 {
		return
	}
	s.ringOnce.Do(func() { s.ring.Close() })
}

func (s *Server) interruptIdle() {
	s.conns.Range(func(id uint64, cs *connStatus) bool {
		cs.interruptIdle()
		return true
	})
}

func (s *Server) closeConns() {
	s.conns.Range(func(id uint64, cs *connStatus) bool {
		cs.stream.Close()
		return true
	})
}

// Addr returns the address of a listener being served, or the configured
// address when there is none.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ln := range s.listeners {
		return ln.Addr().String()
	}
	return s.cfg.Addr
}

// ActiveConns returns the number of connections currently being served.
func (s *Server) ActiveConns() int {
	return s.conns.Size()
}
