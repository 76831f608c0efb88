// Package transport abstracts the network carriers replayed messages are
// written to. Variants: a TCP server that waits for the consuming
// application to connect in, a connectionless UDP endpoint targeting a
// fixed destination, and a serial port writer.
package transport

import (
	"context"
	"errors"
)

// ErrConnectionLost indicates the TCP peer dropped mid-run. The replay
// controller decides whether to await a new peer or abort.
var ErrConnectionLost = errors.New("connection lost")

// ErrNotReady indicates Send was called before a peer was available.
var ErrNotReady = errors.New("transport not ready")

// Transport is the capability set the replay controller drives: bind,
// await a receiving endpoint, write bytes, release.
//
// A Transport owns its sockets exclusively for the run's lifetime and must
// release them on every exit path. Writes are never issued concurrently;
// the controller serializes them.
type Transport interface {
	// Open binds or dials the underlying socket. No data flows yet.
	Open() error

	// AwaitReady blocks until a receiving endpoint is available. For the
	// TCP server this means a peer has connected; for UDP and serial it
	// returns immediately. Must observe ctx cancellation with bounded
	// latency.
	AwaitReady(ctx context.Context) error

	// Send writes one encoded message. A TCP peer drop is reported as an
	// error wrapping ErrConnectionLost.
	Send(p []byte) error

	// Close releases all sockets. Safe to call more than once.
	Close() error

	// Describe returns a short human-readable endpoint description.
	Describe() string
}
