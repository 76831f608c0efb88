package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vdrplay/internal/codec"
	"github.com/banshee-data/vdrplay/internal/transport"
	"github.com/banshee-data/vdrplay/internal/vdrlog"
)

// fakeSource is an in-memory vdrlog.Source.
type fakeSource struct {
	recs    []*vdrlog.LogRecord
	pos     int
	rewinds int
}

func (f *fakeSource) Next() (*vdrlog.LogRecord, error) {
	if f.pos >= len(f.recs) {
		return nil, io.EOF
	}
	rec := f.recs[f.pos]
	f.pos++
	return rec, nil
}

func (f *fakeSource) Rewind() error {
	f.pos = 0
	f.rewinds++
	return nil
}

func (f *fakeSource) Close() error { return nil }

// sentenceSource builds a source of CRLF-terminated sentences spaced by the
// given deltas from a common start.
func sentenceSource(start time.Time, spacing time.Duration, sentences ...string) *fakeSource {
	f := &fakeSource{}
	for i, s := range sentences {
		f.recs = append(f.recs, &vdrlog.LogRecord{
			Seq:       i,
			Timestamp: start.Add(time.Duration(i) * spacing),
			Payload:   []byte(s),
			Protocol:  vdrlog.ProtocolNMEA0183,
		})
	}
	return f
}

func testConfig() Config {
	return Config{
		Transport:   TransportUDP,
		Protocol:    vdrlog.ProtocolNMEA0183,
		Port:        DefaultPort,
		Host:        "localhost",
		SpeedFactor: 1.0,
		Passes:      1,
	}
}

func TestControllerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SpeedFactor = 0

	_, err := NewController(cfg, &fakeSource{}, codec.NMEA0183{}, transport.NewMockTransport(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speed factor")
}

func TestControllerStreamsAllRecordsInOrder(t *testing.T) {
	start := time.Unix(1000, 0)
	src := sentenceSource(start, 0, "$GPRMC,a*00\r\n", "$GPGGA,b*00\r\n", "$GPVTG,c*00\r\n")
	tr := transport.NewMockTransport()

	c, err := NewController(testConfig(), src, codec.NMEA0183{}, tr, nil)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, c.State())

	st := c.Run(context.Background())
	require.NoError(t, st.Err)
	assert.Equal(t, OutcomeCompleted, st.Outcome)
	assert.Equal(t, 0, st.ExitCode())
	assert.Equal(t, StateCompleted, c.State())

	assert.Equal(t, []string{"$GPRMC,a*00\r\n", "$GPGGA,b*00\r\n", "$GPVTG,c*00\r\n"}, tr.SentStrings())
	assert.Equal(t, 1, tr.CloseCalls, "transport must be released")

	stats := c.Stats()
	assert.Equal(t, 3, stats.RecordsSent)
	assert.Equal(t, 1, stats.Passes)
	assert.Len(t, stats.SchedErrors, 3)
	assert.NotEmpty(t, stats.RunID)
}

func TestControllerMultiplePassesRewindSource(t *testing.T) {
	src := sentenceSource(time.Unix(1000, 0), 0, "$GPRMC,a*00\r\n", "$GPGGA,b*00\r\n")
	tr := transport.NewMockTransport()

	cfg := testConfig()
	cfg.Passes = 3

	c, err := NewController(cfg, src, codec.NMEA0183{}, tr, nil)
	require.NoError(t, err)

	st := c.Run(context.Background())
	assert.Equal(t, OutcomeCompleted, st.Outcome)
	assert.Equal(t, 6, c.Stats().RecordsSent)
	assert.Equal(t, 3, c.Stats().Passes)
	assert.Equal(t, 2, src.rewinds)
}

func TestControllerUDPSendFailuresAreNonFatal(t *testing.T) {
	src := sentenceSource(time.Unix(1000, 0), 0, "$A*00\r\n", "$B*00\r\n", "$C*00\r\n")
	tr := transport.NewMockTransport()
	tr.SendErrs[1] = fmt.Errorf("datagram send failed: %w", errors.New("connection refused"))

	c, err := NewController(testConfig(), src, codec.NMEA0183{}, tr, nil)
	require.NoError(t, err)

	st := c.Run(context.Background())
	assert.Equal(t, OutcomeCompleted, st.Outcome, "UDP send failures must not abort the run")

	stats := c.Stats()
	assert.Equal(t, 2, stats.RecordsSent)
	assert.Equal(t, 1, stats.SendFailures)
	assert.Equal(t, []string{"$A*00\r\n", "$C*00\r\n"}, tr.SentStrings())
}

func TestControllerReconnectsOnPeerDrop(t *testing.T) {
	src := sentenceSource(time.Unix(1000, 0), 0, "$A*00\r\n", "$B*00\r\n", "$C*00\r\n")
	tr := transport.NewMockTransport()
	tr.SendErrs[1] = fmt.Errorf("peer dropped: %w", transport.ErrConnectionLost)

	cfg := testConfig()
	cfg.Transport = TransportTCP

	c, err := NewController(cfg, src, codec.NMEA0183{}, tr, nil)
	require.NoError(t, err)

	st := c.Run(context.Background())
	require.NoError(t, st.Err)
	assert.Equal(t, OutcomeCompleted, st.Outcome)

	// Initial readiness plus one reconnect.
	assert.Equal(t, 2, tr.ReadyCalls)
	// The record that hit the dead peer is retransmitted to the new one.
	assert.Equal(t, []string{"$A*00\r\n", "$B*00\r\n", "$C*00\r\n"}, tr.SentStrings())
	assert.Equal(t, 3, c.Stats().RecordsSent)
}

func TestControllerAbortOnDisconnectPolicy(t *testing.T) {
	src := sentenceSource(time.Unix(1000, 0), 0, "$A*00\r\n", "$B*00\r\n")
	tr := transport.NewMockTransport()
	tr.SendErrs[1] = fmt.Errorf("peer dropped: %w", transport.ErrConnectionLost)

	cfg := testConfig()
	cfg.Transport = TransportTCP
	cfg.AbortOnDisconnect = true

	c, err := NewController(cfg, src, codec.NMEA0183{}, tr, nil)
	require.NoError(t, err)

	st := c.Run(context.Background())
	assert.Equal(t, OutcomeFailed, st.Outcome)
	assert.Equal(t, 1, st.ExitCode())
	assert.ErrorIs(t, st.Err, transport.ErrConnectionLost)
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 1, tr.CloseCalls)
}

func TestControllerCancellationBeforeStreaming(t *testing.T) {
	src := sentenceSource(time.Unix(1000, 0), 0, "$A*00\r\n")
	tr := transport.NewMockTransport()

	c, err := NewController(testConfig(), src, codec.NMEA0183{}, tr, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := c.Run(ctx)
	assert.Equal(t, OutcomeCancelled, st.Outcome)
	assert.Equal(t, 2, st.ExitCode())
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 1, tr.CloseCalls, "transport must be released on cancellation")
}

func TestControllerCancellationDuringPacerWait(t *testing.T) {
	// Second record is an hour out; cancel mid-wait.
	src := sentenceSource(time.Unix(1000, 0), time.Hour, "$A*00\r\n", "$B*00\r\n")
	tr := transport.NewMockTransport()

	c, err := NewController(testConfig(), src, codec.NMEA0183{}, tr, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	done := make(chan Status, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case st := <-done:
		assert.Equal(t, OutcomeCancelled, st.Outcome)
		assert.Equal(t, 1, c.Stats().RecordsSent, "first record goes out before the wait")
	case <-time.After(5 * time.Second):
		t.Fatal("cancellation was not observed during the pacer wait")
	}
}

func TestControllerTransportOpenFailure(t *testing.T) {
	src := sentenceSource(time.Unix(1000, 0), 0, "$A*00\r\n")
	tr := transport.NewMockTransport()
	tr.OpenErr = errors.New("address already in use")

	c, err := NewController(testConfig(), src, codec.NMEA0183{}, tr, nil)
	require.NoError(t, err)

	st := c.Run(context.Background())
	assert.Equal(t, OutcomeFailed, st.Outcome)
	assert.Equal(t, StateFailed, c.State())
}

func TestControllerIsSingleUse(t *testing.T) {
	src := sentenceSource(time.Unix(1000, 0), 0, "$A*00\r\n")
	c, err := NewController(testConfig(), src, codec.NMEA0183{}, transport.NewMockTransport(), nil)
	require.NoError(t, err)

	_ = c.Run(context.Background())
	st := c.Run(context.Background())
	assert.Equal(t, OutcomeFailed, st.Outcome)
}

// TestControllerReproducesTiming is the three-record scenario: records at
// 0/100/250ms replayed at 1x should take about 250ms end to end, and about
// half that at 2x.
func TestControllerReproducesTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	elapsed := func(speed float64) time.Duration {
		start := time.Unix(1000, 0)
		src := &fakeSource{recs: []*vdrlog.LogRecord{
			{Seq: 0, Timestamp: start, Payload: []byte("$A*00\r\n")},
			{Seq: 1, Timestamp: start.Add(100 * time.Millisecond), Payload: []byte("$B*00\r\n")},
			{Seq: 2, Timestamp: start.Add(250 * time.Millisecond), Payload: []byte("$C*00\r\n")},
		}}
		cfg := testConfig()
		cfg.SpeedFactor = speed

		c, err := NewController(cfg, src, codec.NMEA0183{}, transport.NewMockTransport(), nil)
		require.NoError(t, err)

		began := time.Now()
		st := c.Run(context.Background())
		require.Equal(t, OutcomeCompleted, st.Outcome)
		return time.Since(began)
	}

	full := elapsed(1.0)
	assert.InDelta(t, 250, float64(full.Milliseconds()), 80, "1x run took %v", full)

	half := elapsed(2.0)
	assert.InDelta(t, 125, float64(half.Milliseconds()), 80, "2x run took %v", half)
	assert.Less(t, half, full)
}

// TestControllerTCPScenario streams over a real loopback TCP server to a
// real peer.
func TestControllerTCPScenario(t *testing.T) {
	srv := transport.NewTCPServer("127.0.0.1:0")
	require.NoError(t, srv.Open())

	start := time.Unix(1000, 0)
	src := sentenceSource(start, 20*time.Millisecond, "$GPRMC,a*00\r\n", "$GPGGA,b*00\r\n", "$GPVTG,c*00\r\n")

	cfg := testConfig()
	cfg.Transport = TransportTCP

	c, err := NewController(cfg, src, codec.NMEA0183{}, srv, nil)
	require.NoError(t, err)

	done := make(chan Status, 1)
	ctx, cancelRun := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelRun()
	go func() { done <- c.Run(ctx) }()

	peer, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer peer.Close()

	r := bufio.NewReader(peer)
	var lines []string
	for i := 0; i < 3; i++ {
		peer.SetReadDeadline(time.Now().Add(5 * time.Second))
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, line)
	}

	st := <-done
	assert.Equal(t, OutcomeCompleted, st.Outcome)
	assert.Equal(t, []string{"$GPRMC,a*00\r\n", "$GPGGA,b*00\r\n", "$GPVTG,c*00\r\n"}, lines)
}
