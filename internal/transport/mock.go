package transport

import (
	"context"
	"sync"
)

// MockTransport implements Transport for testing the replay controller
// without real sockets.
type MockTransport struct {
	mu sync.Mutex

	// Sent holds every payload successfully written.
	Sent [][]byte

	// OpenErr is returned by Open if set.
	OpenErr error

	// ReadyErrs are returned by successive AwaitReady calls; once
	// exhausted AwaitReady succeeds.
	ReadyErrs []error

	// SendErrs maps send call index (0-based) to the error to return for
	// that call. Failed sends are not recorded in Sent.
	SendErrs map[int]error

	// Counters.
	OpenCalls  int
	ReadyCalls int
	SendCalls  int
	CloseCalls int
}

// NewMockTransport creates an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{SendErrs: map[int]error{}}
}

// Open implements Transport.
func (m *MockTransport) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls++
	return m.OpenErr
}

// AwaitReady implements Transport.
func (m *MockTransport) AwaitReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadyCalls++
	if len(m.ReadyErrs) > 0 {
		err := m.ReadyErrs[0]
		m.ReadyErrs = m.ReadyErrs[1:]
		return err
	}
	return nil
}

// Send implements Transport.
func (m *MockTransport) Send(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.SendCalls
	m.SendCalls++
	if err, ok := m.SendErrs[idx]; ok {
		return err
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	m.Sent = append(m.Sent, cp)
	return nil
}

// Close implements Transport.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return nil
}

// Describe implements Transport.
func (m *MockTransport) Describe() string {
	return "mock transport"
}

// SentStrings returns the sent payloads as strings.
func (m *MockTransport) SentStrings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Sent))
	for i, p := range m.Sent {
		out[i] = string(p)
	}
	return out
}
