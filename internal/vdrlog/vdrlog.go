// Package vdrlog reads timestamped marine-navigation message logs captured
// by a Data Monitor running in VDR mode, and exposes them as an ordered
// sequence of records for replay.
package vdrlog

import (
	"errors"
	"strings"
	"time"
)

// ErrMalformedLog indicates a log source with no recognizable structure:
// either the header is missing the required columns, or every data row
// failed to parse.
var ErrMalformedLog = errors.New("malformed VDR log")

// Protocol identifies the message encoding a record was captured from.
type Protocol string

const (
	// ProtocolNMEA0183 is line-oriented NMEA 0183 sentence text.
	ProtocolNMEA0183 Protocol = "0183"
	// ProtocolSignalK is SignalK delta/update JSON.
	ProtocolSignalK Protocol = "signalk"
)

// ParseProtocol maps a user-supplied protocol name to a Protocol.
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0183", "nmea0183", "nmea":
		return ProtocolNMEA0183, true
	case "signalk", "sk":
		return ProtocolSignalK, true
	}
	return "", false
}

// LogRecord is a single captured message. Records are immutable after
// creation and preserve source order: Seq is strictly increasing and matches
// the order rows appear in the log, even when timestamps are not monotonic.
type LogRecord struct {
	Seq       int
	Timestamp time.Time
	Payload   []byte
	Protocol  Protocol
}

// Source is an ordered, lazy sequence of LogRecords. Next returns io.EOF
// when the log is exhausted. Rewind restarts the sequence from the first
// record so a log can be played multiple times.
type Source interface {
	Next() (*LogRecord, error)
	Rewind() error
	Close() error
}
