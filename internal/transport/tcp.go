package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/vdrplay/internal/monitoring"
)

// acceptPollInterval bounds how long an AwaitReady accept call can block
// before cancellation is checked.
const acceptPollInterval = 200 * time.Millisecond

// TCPServer listens on a local address and streams to the single peer that
// connects, matching how navigation applications consume a live feed. The
// peer must connect before streaming starts; that operational ordering is a
// documented requirement of the original tool.
type TCPServer struct {
	addr string

	mu       sync.Mutex
	listener *net.TCPListener
	conn     net.Conn
	closed   bool
}

// NewTCPServer creates a TCP server transport for the given bind address,
// e.g. "localhost:2947".
func NewTCPServer(addr string) *TCPServer {
	return &TCPServer{addr: addr}
}

// Open binds the listening socket.
func (t *TCPServer) Open() error {
	addr, err := net.ResolveTCPAddr("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", t.addr, err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.addr, err)
	}

	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	monitoring.Logf("awaiting client connection at %s", t.addr)
	return nil
}

// AwaitReady blocks until a peer connects. Accepts run against short
// deadlines so ctx cancellation is observed within acceptPollInterval.
// Any previously connected peer is dropped first.
func (t *TCPServer) AwaitReady(ctx context.Context) error {
	t.mu.Lock()
	ln := t.listener
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()

	if ln == nil {
		return fmt.Errorf("transport not open")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := ln.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			return fmt.Errorf("failed to set accept deadline: %w", err)
		}

		conn, err := ln.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()

		monitoring.Logf("client connected from %s", conn.RemoteAddr())
		return nil
	}
}

// Send writes one message to the connected peer.
func (t *TCPServer) Send(p []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return ErrNotReady
	}

	if _, err := conn.Write(p); err != nil {
		t.mu.Lock()
		if t.conn == conn {
			t.conn.Close()
			t.conn = nil
		}
		t.mu.Unlock()
		if isDisconnect(err) {
			return fmt.Errorf("peer dropped: %w", ErrConnectionLost)
		}
		return fmt.Errorf("write failed (%v): %w", err, ErrConnectionLost)
	}
	return nil
}

// Close releases the peer connection and the listening socket.
func (t *TCPServer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var first error
	if t.conn != nil {
		first = t.conn.Close()
		t.conn = nil
	}
	if t.listener != nil {
		if err := t.listener.Close(); err != nil && first == nil {
			first = err
		}
		t.listener = nil
	}
	return first
}

// Addr returns the bound listener address, or nil before Open. Useful when
// binding port 0.
func (t *TCPServer) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Describe implements Transport.
func (t *TCPServer) Describe() string {
	return fmt.Sprintf("tcp server %s", t.addr)
}

// isDisconnect reports whether a write error means the peer went away.
func isDisconnect(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
