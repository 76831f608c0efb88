// Package codec converts logged message payloads into the exact bytes to
// place on the wire for a target protocol.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/vdrplay/internal/vdrlog"
)

// ErrUnsupportedProtocol indicates a target protocol the codec has no
// transform for. It is surfaced at configuration time, before any socket
// opens.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// crlf is the line terminator both NMEA 0183 and the SignalK stream
// consumer expect.
var crlf = []byte("\r\n")

// escapedCRLF is the printable escape the Data Monitor writes in place of a
// trailing CR LF pair.
var escapedCRLF = []byte("<0D><0A>")

// Encoder produces wire bytes for one logged payload.
type Encoder interface {
	Encode(payload []byte) ([]byte, error)
}

// ForProtocol returns the Encoder for the given target protocol.
func ForProtocol(p vdrlog.Protocol) (Encoder, error) {
	switch p {
	case vdrlog.ProtocolNMEA0183:
		return NMEA0183{}, nil
	case vdrlog.ProtocolSignalK:
		return SignalK{}, nil
	}
	return nil, fmt.Errorf("%q: %w", p, ErrUnsupportedProtocol)
}

// NMEA0183 emits logged sentences largely verbatim. The checksum is never
// recomputed: the log holds the exact bytes a real device sent, and
// recomputation could mask them. Only the trailing terminator is touched:
// the Data Monitor's printable <0D><0A> escape, a bare LF, or a missing
// terminator all become CR LF. A payload already ending in CR LF is
// returned byte-for-byte.
type NMEA0183 struct{}

// Encode implements Encoder.
func (NMEA0183) Encode(payload []byte) ([]byte, error) {
	if bytes.HasSuffix(payload, escapedCRLF) {
		out := make([]byte, 0, len(payload))
		out = append(out, payload[:len(payload)-len(escapedCRLF)]...)
		return append(out, crlf...), nil
	}
	if bytes.HasSuffix(payload, crlf) {
		return payload, nil
	}
	trimmed := bytes.TrimRight(payload, "\r\n")
	out := make([]byte, 0, len(trimmed)+2)
	out = append(out, trimmed...)
	return append(out, crlf...), nil
}

// SignalK emits SignalK delta lines. Rows captured from a SignalK session
// already hold delta JSON and are passed through with a terminator. Rows
// holding 0183 sentence text are wrapped best-effort in a minimal delta
// envelope carrying the raw sentence; the transform is structural only and
// makes no attempt to interpret the sentence. This mode is known to be
// fragile and only works when the consumer connects before streaming
// starts.
type SignalK struct{}

type skDelta struct {
	Updates []skUpdate `json:"updates"`
}

type skUpdate struct {
	Source skSource  `json:"source"`
	Values []skValue `json:"values"`
}

type skSource struct {
	Type     string `json:"type"`
	Sentence string `json:"sentence"`
}

type skValue struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// Encode implements Encoder.
func (SignalK) Encode(payload []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		out := make([]byte, 0, len(trimmed)+2)
		out = append(out, trimmed...)
		return append(out, crlf...), nil
	}

	sentence := string(bytes.TrimRight(bytes.TrimSuffix(trimmed, escapedCRLF), "\r\n"))
	env := skDelta{
		Updates: []skUpdate{{
			Source: skSource{Type: "NMEA0183", Sentence: sentence},
			Values: []skValue{{Path: "", Value: sentence}},
		}},
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to build delta envelope: %w", err)
	}
	return append(out, crlf...), nil
}
