package transports

import (
	"io"
	"time"
)

// MockTransport implements the bus Transport interface for testing.
//
// Reads consume ReadData and report io.EOF once it runs out, which the bus
// treats as a closed line. Tests that need timeouts, split deliveries or
// other read behavior set ReadFunc instead.
type MockTransport struct {
	ReadData    []byte
	ReadErr     error
	WriteData   []byte
	WriteErr    error
	Closed      bool
	ReadTimeout time.Duration
	Flushed     bool

	// ReadFunc overrides the default read behavior when set.
	ReadFunc func(p []byte) (int, error)
}

func (m *MockTransport) Read(p []byte) (int, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	n := copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (m *MockTransport) Write(p []byte) (int, error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.WriteData = append(m.WriteData, p...)
	return len(p), nil
}

func (m *MockTransport) Close() error {
	m.Closed = true
	return nil
}

func (m *MockTransport) SetReadTimeout(timeout time.Duration) error {
	m.ReadTimeout = timeout
	return nil
}

// Flush records the call. ReadData stays queued so replies staged before an
// exchange survive the pre-write flush.
func (m *MockTransport) Flush() error {
	m.Flushed = true
	return nil
}
