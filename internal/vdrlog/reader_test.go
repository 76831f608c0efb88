package vdrlog

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vdrplay/internal/testutil"
)

const sampleLog = `received_at,protocol,msg_type,raw_data
# captured by Data Monitor in VDR mode
1700000000000,nmea0183,RMC,"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A<0D><0A>"
1700000000250,nmea0183,GGA,"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47<0D><0A>"

1700000000600,nmea0183,VTG,"$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48<0D><0A>"
`

func TestOpenParsesRecordsInOrder(t *testing.T) {
	path := testutil.WriteTempFile(t, "monitor.csv", sampleLog)

	src, err := Open(path, Options{Filter: ProtocolNMEA0183})
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 3, src.Total())

	var recs []*LogRecord
	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, i, rec.Seq)
		assert.Equal(t, ProtocolNMEA0183, rec.Protocol)
	}
	assert.Contains(t, string(recs[0].Payload), "$GPRMC")
	assert.Contains(t, string(recs[2].Payload), "$GPVTG")

	// received_at is epoch milliseconds.
	want := time.Unix(0, 1700000000250*int64(time.Millisecond))
	assert.True(t, recs[1].Timestamp.Equal(want), "timestamp = %v, want %v", recs[1].Timestamp, want)
}

func TestProtocolFilterSkipsOtherRows(t *testing.T) {
	log := `received_at,protocol,raw_data
1000,nmea0183,"$GPRMC,one*00"
2000,signalk,"{""updates"":[]}"
3000,nmea0183,"$GPRMC,two*00"
`
	path := testutil.WriteTempFile(t, "mixed.csv", log)

	src, err := Open(path, Options{Filter: ProtocolNMEA0183})
	require.NoError(t, err)
	defer src.Close()

	var payloads []string
	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		payloads = append(payloads, string(rec.Payload))
	}

	require.Len(t, payloads, 2)
	assert.Contains(t, payloads[0], "one")
	assert.Contains(t, payloads[1], "two")
}

func TestMalformedRowsAreSkippedWithWarnings(t *testing.T) {
	log := `received_at,protocol,raw_data
not-a-number,nmea0183,"$GPRMC,bad*00"
1000,nmea0183,"$GPRMC,good*00"
`
	path := testutil.WriteTempFile(t, "warn.csv", log)

	src, err := Open(path, Options{})
	require.NoError(t, err)
	defer src.Close()

	rec, err := src.Next()
	require.NoError(t, err)
	assert.Contains(t, string(rec.Payload), "good")

	_, err = src.Next()
	assert.Equal(t, io.EOF, err)

	assert.Equal(t, 1, src.WarningCount())
	require.Len(t, src.Warnings(), 1)
	assert.Contains(t, src.Warnings()[0], "bad timestamp")
}

func TestHeaderOnlyLogIsValidAndEmpty(t *testing.T) {
	path := testutil.WriteTempFile(t, "empty.csv", "received_at,protocol,raw_data\n")

	src, err := Open(path, Options{})
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 0, src.Total())
	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
}

func TestMissingColumnsIsMalformed(t *testing.T) {
	path := testutil.WriteTempFile(t, "bad.csv", "time,message\n1,2\n")

	_, err := Open(path, Options{})
	assert.True(t, errors.Is(err, ErrMalformedLog), "err = %v, want ErrMalformedLog", err)
}

func TestAllRowsGarbageIsMalformed(t *testing.T) {
	log := `received_at,protocol,raw_data
x,nmea0183,"$A"
y,nmea0183,"$B"
`
	path := testutil.WriteTempFile(t, "garbage.csv", log)

	_, err := Open(path, Options{})
	assert.True(t, errors.Is(err, ErrMalformedLog), "err = %v, want ErrMalformedLog", err)
}

func TestRewindRestartsSequence(t *testing.T) {
	path := testutil.WriteTempFile(t, "monitor.csv", sampleLog)

	src, err := Open(path, Options{})
	require.NoError(t, err)
	defer src.Close()

	first, err := src.Next()
	require.NoError(t, err)

	for {
		if _, err := src.Next(); err == io.EOF {
			break
		}
	}

	require.NoError(t, src.Rewind())

	again, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, again.Seq)
	assert.Equal(t, first.Payload, again.Payload)
}

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in   string
		want Protocol
		ok   bool
	}{
		{"0183", ProtocolNMEA0183, true},
		{"NMEA0183", ProtocolNMEA0183, true},
		{"signalk", ProtocolSignalK, true},
		{" SK ", ProtocolSignalK, true},
		{"2000", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseProtocol(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseProtocol(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
