//go:build !linux

package transport

import "net"

// Ring is unavailable outside Linux.
type Ring struct{}

// NewRing always fails with ErrUnsupported.
func NewRing(entries uint) (*Ring, error) {
	return nil, ErrUnsupported
}

// Conn always fails with ErrUnsupported.
func (r *Ring) Conn(c *net.TCPConn) (net.Conn, error) {
	return nil, ErrUnsupported
}

// Close is a no-op.
func (r *Ring) Close() error {
	return nil
}
