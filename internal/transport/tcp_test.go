package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPServerStreamsToConnectedPeer(t *testing.T) {
	srv := NewTCPServer("127.0.0.1:0")
	require.NoError(t, srv.Open())
	defer srv.Close()

	addr := srv.Addr().String()

	// Connect a peer while AwaitReady blocks.
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- srv.AwaitReady(ctx)
	}()

	peer, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer peer.Close()

	require.NoError(t, <-done)

	require.NoError(t, srv.Send([]byte("$GPRMC,one*00\r\n")))
	require.NoError(t, srv.Send([]byte("$GPGGA,two*00\r\n")))

	r := bufio.NewReader(peer)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "$GPRMC,one*00\r\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "$GPGGA,two*00\r\n", line)
}

func TestTCPServerSendBeforeReadyFails(t *testing.T) {
	srv := NewTCPServer("127.0.0.1:0")
	require.NoError(t, srv.Open())
	defer srv.Close()

	err := srv.Send([]byte("x"))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestTCPServerReportsConnectionLost(t *testing.T) {
	srv := NewTCPServer("127.0.0.1:0")
	require.NoError(t, srv.Open())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.AwaitReady(ctx) }()

	peer, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	require.NoError(t, <-done)

	peer.Close()

	// The first write after a peer drop may still land in the kernel
	// buffer; keep writing until the failure surfaces.
	var sendErr error
	for i := 0; i < 50; i++ {
		sendErr = srv.Send([]byte("$GPRMC,gone*00\r\n"))
		if sendErr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Error(t, sendErr)
	assert.True(t, errors.Is(sendErr, ErrConnectionLost), "err = %v, want ErrConnectionLost", sendErr)
}

func TestTCPServerAwaitReadyCancellationReleasesPort(t *testing.T) {
	srv := NewTCPServer("127.0.0.1:0")
	require.NoError(t, srv.Open())
	addr := srv.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.AwaitReady(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitReady did not observe cancellation within bounded latency")
	}

	require.NoError(t, srv.Close())

	// The port must be immediately re-bindable after release.
	relisten, err := net.Listen("tcp", addr)
	require.NoError(t, err, "port was not released on cancellation")
	relisten.Close()
}

func TestTCPServerCloseIsIdempotent(t *testing.T) {
	srv := NewTCPServer("127.0.0.1:0")
	require.NoError(t, srv.Open())
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
}
