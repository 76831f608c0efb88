package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/vdrplay/internal/monitoring"
)

// SerialPorter is the minimal interface needed to write sentences to a
// serial port. The abstraction enables unit testing without real hardware.
type SerialPorter interface {
	io.Writer
	io.Closer
}

// SerialOpener opens a serial port at the given path and baud rate.
// Replaceable for tests.
type SerialOpener func(path string, baud int) (SerialPorter, error)

// OpenRealSerial opens a physical serial port via go.bug.st/serial with
// 8N1 framing, the NMEA 0183 convention.
func OpenRealSerial(path string, baud int) (SerialPorter, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(path, mode)
}

// SerialWriter replays sentences onto a serial port, NMEA 0183's classic
// carrier. Like UDP it is always ready; a write error loses one sentence.
type SerialWriter struct {
	path   string
	baud   int
	opener SerialOpener

	mu   sync.Mutex
	port SerialPorter
}

// NewSerialWriter creates a serial transport for the given device path,
// e.g. "/dev/ttyUSB0" at 4800 baud. A nil opener uses OpenRealSerial.
func NewSerialWriter(path string, baud int, opener SerialOpener) *SerialWriter {
	if opener == nil {
		opener = OpenRealSerial
	}
	return &SerialWriter{path: path, baud: baud, opener: opener}
}

// Open opens the serial port.
func (s *SerialWriter) Open() error {
	port, err := s.opener(s.path, s.baud)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	monitoring.Logf("writing to serial port %s at %d baud", s.path, s.baud)
	return nil
}

// AwaitReady is a no-op for a serial writer.
func (s *SerialWriter) AwaitReady(ctx context.Context) error {
	return ctx.Err()
}

// Send writes one sentence to the port.
func (s *SerialWriter) Send(p []byte) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return ErrNotReady
	}
	if _, err := port.Write(p); err != nil {
		return fmt.Errorf("serial write failed: %w", err)
	}
	return nil
}

// Close releases the port.
func (s *SerialWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Describe implements Transport.
func (s *SerialWriter) Describe() string {
	return fmt.Sprintf("serial port %s @ %d baud", s.path, s.baud)
}
