package http

import (
	"io"
	"strings"
)

// chunkedReader decodes a chunked request body on behalf of a Conn.
type chunkedReader struct {
	c    *Conn
	left int64 // bytes remaining in current chunk
	done bool
}

// next returns the next run of decoded body bytes, or nil once the last
// chunk and any trailer fields have been consumed.
func (cr *chunkedReader) next() ([]byte, error) {
	if cr.done {
		return nil, nil
	}
	for cr.left == 0 {
		budget := cr.c.cfg.MaxHeaderBytes
		line, err := cr.c.readLine(&budget)
		if err != nil {
			return nil, err
		}
		// Chunk extensions are ignored.
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = line[:idx]
		}
		size, err := parseChunkSize(strings.TrimSpace(line))
		if err != nil {
			return nil, err
		}
		if size == 0 {
			if err := cr.skipTrailer(); err != nil {
				return nil, err
			}
			cr.done = true
			return nil, nil
		}
		cr.left = size
	}

	n := cr.left
	if n > readChunkSize {
		n = readChunkSize
	}
	buf := make([]byte, n)
	m, err := cr.c.br.Read(buf)
	if m == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return nil, err
	}
	cr.left -= int64(m)
	if cr.left == 0 {
		budget := 64
		crlf, err := cr.c.readLine(&budget)
		if err != nil {
			return nil, err
		}
		if crlf != "" {
			return nil, &ProtocolError{Message: "missing CRLF after chunk data"}
		}
	}
	return buf[:m], nil
}

// skipTrailer discards trailer fields up to the terminating empty line.
func (cr *chunkedReader) skipTrailer() error {
	budget := cr.c.cfg.MaxHeaderBytes
	for {
		line, err := cr.c.readLine(&budget)
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		if _, _, err := ParseHeaderLine(line); err != nil {
			return err
		}
	}
}

func parseChunkSize(s string) (int64, error) {
	if s == "" || len(s) > 15 {
		return 0, &ProtocolError{Message: "invalid chunk size: " + quoteLine(s)}
	}
	var size int64
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			size = size*16 + int64(c-'0')
		case c >= 'a' && c <= 'f':
			size = size*16 + int64(c-'a'+10)
		case c >= 'A' && c <= 'F':
			size = size*16 + int64(c-'A'+10)
		default:
			return 0, &ProtocolError{Message: "invalid chunk size: " + quoteLine(s)}
		}
	}
	return size, nil
}
