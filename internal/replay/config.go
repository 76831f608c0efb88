// Package replay paces and streams captured navigation messages through a
// transport, reproducing the original inter-message timing.
package replay

import (
	"fmt"

	"github.com/banshee-data/vdrplay/internal/vdrlog"
)

// TransportKind selects the carrier replayed messages are written to.
type TransportKind string

const (
	// TransportTCP runs a TCP server the consuming application connects to.
	TransportTCP TransportKind = "tcp"
	// TransportUDP sends datagrams to a fixed destination.
	TransportUDP TransportKind = "udp"
	// TransportSerial writes sentences to a serial port.
	TransportSerial TransportKind = "serial"
)

// ParseTransportKind maps a user-supplied transport name to a TransportKind.
func ParseTransportKind(s string) (TransportKind, bool) {
	switch TransportKind(s) {
	case TransportTCP, TransportUDP, TransportSerial:
		return TransportKind(s), true
	}
	return "", false
}

// DefaultPort is the port the original tool served on.
const DefaultPort = 2947

// Config is the resolved configuration for one replay run. It is read-only
// for the run's lifetime; the CLI layer builds it from flags.
type Config struct {
	Transport TransportKind
	Protocol  vdrlog.Protocol

	// Port is the local port (tcp), destination port (udp).
	Port int
	// Host is the bind interface (tcp) or destination (udp).
	Host string

	// SerialDevice and Baud apply to the serial transport only.
	SerialDevice string
	Baud         int

	// SpeedFactor scales playback: <1 slows, >1 accelerates. Must be
	// positive.
	SpeedFactor float64

	// Passes is how many times the log is played (source is rewound
	// between passes).
	Passes int

	// AbortOnDisconnect fails the run when the TCP peer drops instead of
	// awaiting a new connection.
	AbortOnDisconnect bool
}

// Validate rejects an unusable configuration before any socket is opened.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportTCP, TransportUDP:
		if c.Port < 1 || c.Port > 65535 {
			return fmt.Errorf("port %d out of range 1-65535", c.Port)
		}
	case TransportSerial:
		if c.SerialDevice == "" {
			return fmt.Errorf("serial transport requires a device path")
		}
		if c.Baud <= 0 {
			return fmt.Errorf("baud rate must be positive, got %d", c.Baud)
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	if c.Protocol != vdrlog.ProtocolNMEA0183 && c.Protocol != vdrlog.ProtocolSignalK {
		return fmt.Errorf("unknown protocol %q", c.Protocol)
	}
	if c.SpeedFactor <= 0 {
		return fmt.Errorf("speed factor must be positive, got %g", c.SpeedFactor)
	}
	if c.Passes < 1 {
		return fmt.Errorf("pass count must be at least 1, got %d", c.Passes)
	}
	return nil
}

// Addr returns the host:port endpoint for the network transports.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
