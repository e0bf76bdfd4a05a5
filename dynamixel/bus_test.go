package dynamixel

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacekchmiel/dynamixel-go/transports"
)

func newTestBus(t *testing.T, m *transports.MockTransport) *Bus {
	t.Helper()
	bus, err := NewBus(BusConfig{Transport: m, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	return bus
}

func TestBusExchange(t *testing.T) {
	m := &transports.MockTransport{ReadData: statusFrame(1, 0, nil)}
	bus := newTestBus(t, m)

	status, err := bus.Exchange(context.Background(), Ping{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, byte(1), status.ID)
	assert.Equal(t, StatusError(0), status.Error)
	assert.Empty(t, status.Data)

	// The serialized ping must have hit the wire after a flush.
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB}, m.WriteData)
	assert.True(t, m.Flushed)
	assert.Greater(t, m.ReadTimeout, time.Duration(0))
}

func TestBusExchangeSplitDelivery(t *testing.T) {
	reply := statusFrame(1, 0, []byte{0x18, 0x05})
	chunks := [][]byte{reply[:2], reply[2:5], {}, reply[5:]}

	m := &transports.MockTransport{}
	m.ReadFunc = func(p []byte) (int, error) {
		if len(chunks) == 0 {
			return 0, nil
		}
		n := copy(p, chunks[0])
		chunks = chunks[1:]
		return n, nil
	}
	bus := newTestBus(t, m)

	status, err := bus.Exchange(context.Background(), Read{ID: 1, Address: 0x24, Length: 2})
	require.NoError(t, err)

	assert.Equal(t, byte(1), status.ID)
	assert.Equal(t, []byte{0x18, 0x05}, status.Data)
}

func TestBusExchangeBytesWithEOF(t *testing.T) {
	// A read may deliver the closing bytes of the reply together with
	// io.EOF; those bytes are consumed before the error is acted on.
	reply := statusFrame(1, 0, nil)
	m := &transports.MockTransport{}
	m.ReadFunc = func(p []byte) (int, error) {
		n := copy(p, reply)
		reply = reply[n:]
		return n, io.EOF
	}
	bus := newTestBus(t, m)

	status, err := bus.Exchange(context.Background(), Ping{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, byte(1), status.ID)
}

func TestBusExchangeOverlongReply(t *testing.T) {
	// Two frames land in one read window. The buffer overshoots the first
	// frame's declared length, so it never forms a complete packet, and
	// the exchange fails once the line closes.
	replies := append(statusFrame(1, 0, nil), statusFrame(1, 0, nil)...)
	m := &transports.MockTransport{ReadData: replies}
	bus := newTestBus(t, m)

	_, err := bus.Exchange(context.Background(), Ping{ID: 1})
	require.ErrorIs(t, err, ErrTransfer)
	assert.ErrorContains(t, err, "line closed after 12 bytes")
}

func TestBusExchangeLineClosed(t *testing.T) {
	// Empty mock reports io.EOF on the first read.
	bus := newTestBus(t, &transports.MockTransport{})

	_, err := bus.Exchange(context.Background(), Ping{ID: 1})
	require.ErrorIs(t, err, ErrTransfer)
	assert.False(t, IsTimeout(err))
}

func TestBusExchangeShortWrite(t *testing.T) {
	m := &shortWriteTransport{}
	bus, err := NewBus(BusConfig{Transport: m})
	require.NoError(t, err)

	_, err = bus.Exchange(context.Background(), Ping{ID: 1})
	require.ErrorIs(t, err, ErrTransfer)
	assert.ErrorContains(t, err, "wrote 3 of 6 bytes")
}

func TestBusExchangeWriteError(t *testing.T) {
	m := &transports.MockTransport{WriteErr: errors.New("port gone")}
	bus := newTestBus(t, m)

	_, err := bus.Exchange(context.Background(), Ping{ID: 1})

	var commErr *CommError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "write", commErr.Op)
}

func TestBusExchangeReadError(t *testing.T) {
	m := &transports.MockTransport{ReadErr: errors.New("device disappeared")}
	bus := newTestBus(t, m)

	_, err := bus.Exchange(context.Background(), Ping{ID: 1})

	var commErr *CommError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "read", commErr.Op)
}

func TestBusExchangeCorruptReply(t *testing.T) {
	reply := statusFrame(1, 0, nil)
	reply[len(reply)-1] ^= 0xFF

	m := &transports.MockTransport{ReadData: reply}
	bus := newTestBus(t, m)

	_, err := bus.Exchange(context.Background(), Ping{ID: 1})
	require.ErrorIs(t, err, ErrChecksum)
	assert.True(t, IsDataError(err))

	var commErr *CommError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "parse", commErr.Op)
}

func TestBusExchangeTimeout(t *testing.T) {
	// A silent device: reads keep returning without data.
	m := &transports.MockTransport{}
	m.ReadFunc = func(p []byte) (int, error) { return 0, nil }

	bus, err := NewBus(BusConfig{Transport: m, Timeout: 30 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = bus.Exchange(context.Background(), Ping{ID: 1})
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestBusExchangeContextCancelled(t *testing.T) {
	m := &transports.MockTransport{}
	m.ReadFunc = func(p []byte) (int, error) { return 0, nil }
	bus := newTestBus(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bus.Exchange(ctx, Ping{ID: 1})
	require.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBusExchangeClosed(t *testing.T) {
	m := &transports.MockTransport{ReadData: statusFrame(1, 0, nil)}
	bus := newTestBus(t, m)

	require.NoError(t, bus.Close())
	assert.True(t, m.Closed)

	_, err := bus.Exchange(context.Background(), Ping{ID: 1})
	assert.ErrorIs(t, err, ErrBusClosed)

	// Closing twice is fine.
	assert.NoError(t, bus.Close())
}

func TestBusTrace(t *testing.T) {
	m := &transports.MockTransport{ReadData: statusFrame(1, 0, nil)}
	tracer := &recordingTracer{}

	bus, err := NewBus(BusConfig{Transport: m, Trace: tracer})
	require.NoError(t, err)

	_, err = bus.Exchange(context.Background(), Ping{ID: 1})
	require.NoError(t, err)

	require.Len(t, tracer.tx, 1)
	require.Len(t, tracer.rx, 1)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB}, tracer.tx[0])
	assert.Equal(t, statusFrame(1, 0, nil), tracer.rx[0])
}

func TestBusPing(t *testing.T) {
	m := &transports.MockTransport{ReadData: statusFrame(3, 0, nil)}
	bus := newTestBus(t, m)

	require.NoError(t, bus.Ping(context.Background(), 3))
}

func TestBusPingWrongID(t *testing.T) {
	m := &transports.MockTransport{ReadData: statusFrame(1, 0, nil)}
	bus := newTestBus(t, m)

	err := bus.Ping(context.Background(), 2)
	assert.ErrorContains(t, err, "wrong servo id in response: expected 2, got 1")
}

func TestBusPingAlarm(t *testing.T) {
	m := &transports.MockTransport{ReadData: statusFrame(1, byte(AlarmOverheating), nil)}
	bus := newTestBus(t, m)

	err := bus.Ping(context.Background(), 1)

	servoErr, ok := GetServoError(err)
	require.True(t, ok, "expected ServoError, got %v", err)
	assert.Equal(t, byte(1), servoErr.ID)
	assert.Equal(t, "ping", servoErr.Op)
	assert.Equal(t, AlarmOverheating, servoErr.Status)
}

func TestBusReadRegister(t *testing.T) {
	m := &transports.MockTransport{ReadData: statusFrame(1, 0, []byte{0x18, 0x05})}
	bus := newTestBus(t, m)

	value, err := bus.ReadRegister(context.Background(), 1, RegPresentPosition)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0518), value)

	// Read 2 bytes from address 0x24: FF FF 01 04 02 24 02 D2
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x04, 0x02, 0x24, 0x02, 0xD2}, m.WriteData)
}

func TestBusReadRegisterWidthMismatch(t *testing.T) {
	m := &transports.MockTransport{ReadData: statusFrame(1, 0, []byte{0x01, 0x02, 0x03})}
	bus := newTestBus(t, m)

	_, err := bus.ReadRegister(context.Background(), 1, RegPresentPosition)
	require.ErrorIs(t, err, ErrWidthMismatch)
	assert.True(t, IsDataError(err))

	var commErr *CommError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "decode", commErr.Op)
}

func TestBusWriteRegister(t *testing.T) {
	m := &transports.MockTransport{ReadData: statusFrame(1, 0, nil)}
	bus := newTestBus(t, m)

	err := bus.WriteRegister(context.Background(), 1, RegGoalPosition, 512)
	require.NoError(t, err)

	// Write 0x0200 to address 0x1E: FF FF 01 05 03 1E 00 02 D6
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x05, 0x03, 0x1E, 0x00, 0x02, 0xD6}, m.WriteData)
}

func TestBusWriteRegisterAlarm(t *testing.T) {
	m := &transports.MockTransport{ReadData: statusFrame(1, byte(AlarmOverload), nil)}
	bus := newTestBus(t, m)

	err := bus.WriteRegister(context.Background(), 1, RegGoalPosition, 512)

	servoErr, ok := GetServoError(err)
	require.True(t, ok, "expected ServoError, got %v", err)
	assert.Equal(t, "write GoalPosition", servoErr.Op)
	assert.Equal(t, AlarmOverload, servoErr.Status)
}

func TestBusWriteRegisterReadOnly(t *testing.T) {
	m := &transports.MockTransport{}
	bus := newTestBus(t, m)

	err := bus.WriteRegister(context.Background(), 1, RegPresentPosition, 0)
	require.ErrorIs(t, err, ErrReadOnly)

	// Nothing may reach the wire when the request is rejected locally.
	assert.Empty(t, m.WriteData)
}

func TestNewBusRequiresTransportOrPort(t *testing.T) {
	_, err := NewBus(BusConfig{})
	assert.ErrorContains(t, err, "either Transport or Port must be specified")
}

// recordingTracer captures traced packets for inspection.
type recordingTracer struct {
	tx [][]byte
	rx [][]byte
}

func (r *recordingTracer) RecordTx(data []byte) {
	r.tx = append(r.tx, append([]byte(nil), data...))
}

func (r *recordingTracer) RecordRx(data []byte) {
	r.rx = append(r.rx, append([]byte(nil), data...))
}

// shortWriteTransport accepts only half of every frame.
type shortWriteTransport struct {
	transports.MockTransport
}

func (s *shortWriteTransport) Write(p []byte) (int, error) {
	n := len(p) / 2
	s.WriteData = append(s.WriteData, p[:n]...)
	return n, nil
}
