//go:build linux

package transport

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func newRingPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ring, err := NewRing(8)
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { ring.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback unavailable: %v", err)
	}
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	accepted, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	server, err := ring.Conn(accepted.(*net.TCPConn))
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func TestRingConn_ReadWrite(t *testing.T) {
	server, client := newRingPair(t)

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	buf := make([]byte, 2)
	got := make([]byte, 0, 4)
	for len(got) < 4 {
		n, err := server.Read(buf)
		if err != nil {
			t.Fatalf("server read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != "ping" {
		t.Errorf("server read %q", got)
	}

	if _, err := server.Write([]byte("pong")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	reply := make([]byte, 4)
	if _, err := io.ReadFull(client, reply); err != nil || string(reply) != "pong" {
		t.Errorf("client read %q, %v", reply, err)
	}
}

func TestRingConn_ReadDeadline(t *testing.T) {
	server, client := newRingPair(t)

	server.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	_, err := server.Read(make([]byte, 8))
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("Read error = %v, want timeout", err)
	}

	// The receive that timed out is still pending and picks up late data.
	server.SetReadDeadline(time.Time{})
	client.Write([]byte("late"))
	buf := make([]byte, 8)
	n, err := server.Read(buf)
	if err != nil || string(buf[:n]) != "late" {
		t.Errorf("Read after deadline reset = %q, %v", buf[:n], err)
	}
}

func TestRingConn_DeadlineInterruptsBlockedRead(t *testing.T) {
	server, _ := newRingPair(t)

	done := make(chan error, 1)
	go func() {
		_, err := server.Read(make([]byte, 8))
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	server.SetReadDeadline(time.Now())

	select {
	case err := <-done:
		var ne net.Error
		if !errors.As(err, &ne) || !ne.Timeout() {
			t.Errorf("Read error = %v, want timeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read was not interrupted by the deadline")
	}
}

func TestRingConn_HalfClose(t *testing.T) {
	server, client := newRingPair(t)

	cw, ok := server.(interface{ CloseWrite() error })
	if !ok {
		t.Fatal("ring connection does not support CloseWrite")
	}
	server.Write([]byte("bye"))
	if err := cw.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}
	all, err := io.ReadAll(client)
	if err != nil || string(all) != "bye" {
		t.Errorf("client read %q, %v", all, err)
	}

	client.Close()
	if _, err := server.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("Read after peer close = %v, want io.EOF", err)
	}
	if err := server.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := server.Close(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("second Close = %v, want net.ErrClosed", err)
	}
}
