// Package transport provides alternative byte streams for accepted
// connections. On Linux, a Ring moves socket reads and writes onto an
// io_uring submission queue while keeping the net.Conn surface the HTTP
// layer expects: deadlines, half-close and addresses.
package transport

import "errors"

// DefaultRingEntries is the submission queue depth used when none is given.
const DefaultRingEntries = 256

// ErrUnsupported is returned by NewRing where io_uring is unavailable.
var ErrUnsupported = errors.New("transport: io_uring is not supported on this platform")
