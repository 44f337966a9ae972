//go:build linux

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/iceber/iouring-go"
)

const ringBufferSize = 16 << 10

// Ring is a shared io_uring instance serving any number of connections.
type Ring struct {
	iour *iouring.IOURing
}

// NewRing sets up an io_uring with the given submission queue depth.
func NewRing(entries uint) (*Ring, error) {
	if entries == 0 {
		entries = DefaultRingEntries
	}
	iour, err := iouring.New(entries)
	if err != nil {
		return nil, fmt.Errorf("transport: io_uring setup: %w", err)
	}
	return &Ring{iour: iour}, nil
}

// Close tears down the ring. Connections obtained from it must be closed
// first.
func (r *Ring) Close() error {
	return r.iour.Close()
}

// Conn wraps an accepted TCP connection so that its reads and writes are
// submitted to the ring. The TCPConn keeps ownership of the descriptor.
func (r *Ring) Conn(c *net.TCPConn) (net.Conn, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return nil, err
	}
	fd := -1
	if err := raw.Control(func(s uintptr) { fd = int(s) }); err != nil {
		return nil, err
	}
	return &RingConn{
		TCPConn: c,
		ring:    r,
		fd:      fd,
		rbuf:    make([]byte, ringBufferSize),
		rwake:   make(chan struct{}, 1),
		wwake:   make(chan struct{}, 1),
	}, nil
}

// RingConn is a TCP connection whose Read and Write go through io_uring.
// Deadlines are enforced while waiting for completions; an operation that
// times out stays in flight and a later Read collects its result.
type RingConn struct {
	*net.TCPConn
	ring *Ring
	fd   int

	rbuf  []byte              // kernel receive target
	rdata []byte              // received, not yet returned
	rpend chan iouring.Result // outstanding receive
	werr  error               // sticky write failure

	readDeadline  atomic.Int64
	writeDeadline atomic.Int64
	rwake         chan struct{}
	wwake         chan struct{}
	closed        atomic.Bool
}

func (c *RingConn) Read(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(c.rdata) == 0 {
		if c.rpend == nil {
			ch := make(chan iouring.Result, 1)
			if _, err := c.ring.iour.SubmitRequest(iouring.Recv(c.fd, c.rbuf, 0), ch); err != nil {
				return 0, c.opError("read", err)
			}
			c.rpend = ch
		}
		n, err := c.wait(c.rpend, &c.readDeadline, c.rwake)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, c.opError("read", err)
		}
		c.rpend = nil
		if err != nil {
			return 0, c.opError("read", err)
		}
		if n == 0 {
			return 0, io.EOF
		}
		c.rdata = c.rbuf[:n]
	}
	n := copy(p, c.rdata)
	c.rdata = c.rdata[n:]
	return n, nil
}

func (c *RingConn) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}
	if c.werr != nil {
		return 0, c.werr
	}
	written := 0
	for written < len(p) {
		// The kernel may still reference buf after a timeout, so each
		// submission gets its own copy.
		buf := append([]byte(nil), p[written:]...)
		ch := make(chan iouring.Result, 1)
		if _, err := c.ring.iour.SubmitRequest(iouring.Send(c.fd, buf, 0), ch); err != nil {
			return written, c.opError("write", err)
		}
		n, err := c.wait(ch, &c.writeDeadline, c.wwake)
		if err != nil {
			c.werr = c.opError("write", err)
			return written, c.werr
		}
		if n <= 0 {
			c.werr = c.opError("write", io.ErrShortWrite)
			return written, c.werr
		}
		written += n
	}
	return written, nil
}

// wait blocks for one completion, honouring the deadline. Deadline changes
// made while waiting take effect immediately.
func (c *RingConn) wait(ch chan iouring.Result, deadline *atomic.Int64, wake chan struct{}) (int, error) {
	for {
		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if d := deadline.Load(); d != 0 {
			left := time.Until(time.Unix(0, d))
			if left <= 0 {
				return 0, os.ErrDeadlineExceeded
			}
			timer = time.NewTimer(left)
			timeout = timer.C
		}
		select {
		case res := <-ch:
			if timer != nil {
				timer.Stop()
			}
			return res.ReturnInt()
		case <-timeout:
			return 0, os.ErrDeadlineExceeded
		case <-wake:
			if timer != nil {
				timer.Stop()
			}
		}
	}
}

func (c *RingConn) opError(op string, err error) error {
	return &net.OpError{Op: op, Net: "tcp", Source: c.LocalAddr(), Addr: c.RemoteAddr(), Err: err}
}

// SetDeadline sets both the read and write deadlines.
func (c *RingConn) SetDeadline(t time.Time) error {
	c.SetReadDeadline(t)
	return c.SetWriteDeadline(t)
}

// SetReadDeadline bounds the current and future Read calls.
func (c *RingConn) SetReadDeadline(t time.Time) error {
	c.readDeadline.Store(unixNano(t))
	notify(c.rwake)
	return nil
}

// SetWriteDeadline bounds the current and future Write calls.
func (c *RingConn) SetWriteDeadline(t time.Time) error {
	c.writeDeadline.Store(unixNano(t))
	notify(c.wwake)
	return nil
}

// Close shuts the socket down, which completes any receive still in
// flight, and releases the descriptor.
func (c *RingConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return net.ErrClosed
	}
	c.TCPConn.CloseRead()
	return c.TCPConn.Close()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
