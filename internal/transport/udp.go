package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/banshee-data/vdrplay/internal/monitoring"
)

// UDPEndpoint sends datagrams to a fixed destination. It is connectionless:
// AwaitReady is a no-op and a failed send loses one datagram, which is
// acceptable per UDP semantics.
type UDPEndpoint struct {
	addr string

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewUDPEndpoint creates a UDP transport targeting addr, e.g.
// "localhost:2947".
func NewUDPEndpoint(addr string) *UDPEndpoint {
	return &UDPEndpoint{addr: addr}
}

// Open resolves the destination and binds an ephemeral local socket.
func (u *UDPEndpoint) Open() error {
	dest, err := net.ResolveUDPAddr("udp", u.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", u.addr, err)
	}
	conn, err := net.DialUDP("udp", nil, dest)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", u.addr, err)
	}

	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()

	monitoring.Logf("sending datagrams to %s", u.addr)
	return nil
}

// AwaitReady is a no-op: a connectionless endpoint is always ready.
func (u *UDPEndpoint) AwaitReady(ctx context.Context) error {
	return ctx.Err()
}

// Send fires one datagram at the destination.
func (u *UDPEndpoint) Send(p []byte) error {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()

	if conn == nil {
		return ErrNotReady
	}
	if _, err := conn.Write(p); err != nil {
		return fmt.Errorf("datagram send failed: %w", err)
	}
	return nil
}

// Close releases the local socket.
func (u *UDPEndpoint) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}

// Describe implements Transport.
func (u *UDPEndpoint) Describe() string {
	return fmt.Sprintf("udp endpoint %s", u.addr)
}
