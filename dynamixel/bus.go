package dynamixel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jacekchmiel/dynamixel-go/transports"
)

// scratchSize is the read window appended to the accumulation buffer on each
// pass of the receive loop.
const scratchSize = 128

// Tracer observes the raw packets a bus moves on the wire. The trace
// package provides a CBOR-stream implementation.
type Tracer interface {
	RecordTx(data []byte)
	RecordRx(data []byte)
}

// Bus drives servos on one half-duplex serial line. Exchanges are strictly
// sequential: a request is written in full, then reads accumulate until the
// reply forms one complete packet. A mutex serializes concurrent callers so
// exchanges never interleave on the line.
type Bus struct {
	transport Transport
	timeout   time.Duration
	log       *slog.Logger
	trace     Tracer

	mu     sync.Mutex
	closed bool
}

// BusConfig holds configuration for creating a new Bus.
type BusConfig struct {
	// Transport is the underlying connection.
	// If nil, Port must be specified to open a serial connection.
	Transport Transport

	// Port is the serial port path (e.g., "/dev/ttyUSB0").
	// Ignored if Transport is provided.
	Port string

	// BaudRate is the line speed. Default is 1000000.
	BaudRate int

	// Timeout bounds the wait for a reply within one exchange.
	// Default is 1 second.
	Timeout time.Duration

	// Logger receives debug records of wire activity. Nil disables logging.
	Logger *slog.Logger

	// Trace, when set, receives a copy of every packet moved on the wire.
	Trace Tracer
}

// NewBus creates a new servo bus with the given configuration.
func NewBus(cfg BusConfig) (*Bus, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1000000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(math.MaxInt), // no level is enabled; all records are discarded
		}))
	}

	transport := cfg.Transport
	if transport == nil {
		if cfg.Port == "" {
			return nil, errors.New("either Transport or Port must be specified")
		}
		var err error
		transport, err = transports.OpenSerial(transports.SerialConfig{
			Port:     cfg.Port,
			BaudRate: cfg.BaudRate,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, &CommError{Op: "open", Err: err}
		}
	}

	return &Bus{
		transport: transport,
		timeout:   cfg.Timeout,
		log:       cfg.Logger,
		trace:     cfg.Trace,
	}, nil
}

// Open creates a Bus on the given serial port with default settings. It is
// shorthand for NewBus with only Port and BaudRate set.
func Open(port string, baud int) (*Bus, error) {
	return NewBus(BusConfig{Port: port, BaudRate: baud})
}

// Close closes the bus and its transport.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	return b.transport.Close()
}

// Exchange performs one half-duplex request/response cycle: serialize req,
// write it in full, accumulate reads until the reply is structurally
// complete, then parse it. The loop pauses about a millisecond between
// partial reads. The wire protocol itself never ends an exchange, so ctx and
// the configured Timeout bound the wait; expiry surfaces as ErrTimeout.
func (b *Bus) Exchange(ctx context.Context, req Request) (Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Status{}, ErrBusClosed
	}

	if err := b.writeFrameLocked(Serialize(req)); err != nil {
		return Status{}, err
	}

	packet, err := b.readPacketLocked(ctx)
	if err != nil {
		return Status{}, err
	}

	status, err := Parse(packet)
	if err != nil {
		return Status{}, &CommError{Op: "parse", Err: err}
	}
	return status, nil
}

// Ping checks that the servo with the given id answers on the bus.
func (b *Bus) Ping(ctx context.Context, id byte) error {
	status, err := b.Exchange(ctx, Ping{ID: id})
	if err != nil {
		return err
	}

	if status.ID != id {
		return fmt.Errorf("wrong servo id in response: expected %d, got %d", id, status.ID)
	}
	if status.Error.HasError() {
		return &ServoError{ID: id, Op: "ping", Status: status.Error}
	}

	return nil
}

// ReadRegister reads one control table register from a servo.
func (b *Bus) ReadRegister(ctx context.Context, id byte, reg Register) (uint16, error) {
	status, err := b.Exchange(ctx, reg.ReadRequest(id))
	if err != nil {
		return 0, err
	}

	if status.ID != id {
		return 0, fmt.Errorf("wrong servo id in response: expected %d, got %d", id, status.ID)
	}
	if status.Error.HasError() {
		return 0, &ServoError{ID: id, Op: "read " + reg.String(), Status: status.Error}
	}

	value, err := reg.DecodeValue(status)
	if err != nil {
		return 0, &CommError{Op: "decode", Err: err}
	}
	return value, nil
}

// WriteRegister writes one control table register on a servo.
func (b *Bus) WriteRegister(ctx context.Context, id byte, reg Register, value uint16) error {
	req, err := reg.WriteRequest(id, value)
	if err != nil {
		return err
	}

	status, err := b.Exchange(ctx, req)
	if err != nil {
		return err
	}

	if status.ID != id {
		return fmt.Errorf("wrong servo id in response: expected %d, got %d", id, status.ID)
	}
	if status.Error.HasError() {
		return &ServoError{ID: id, Op: "write " + reg.String(), Status: status.Error}
	}

	return nil
}

func (b *Bus) writeFrameLocked(frame []byte) error {
	// Drop stale input so the next bytes on the line are our reply.
	b.transport.Flush()

	n, err := b.transport.Write(frame)
	if err != nil {
		return &CommError{Op: "write", Err: err}
	}
	if n != len(frame) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrTransfer, n, len(frame))
	}

	if b.trace != nil {
		b.trace.RecordTx(frame)
	}
	b.log.Debug("frame written", "bytes", n)

	// Half-duplex turnaround.
	time.Sleep(100 * time.Microsecond)

	return nil
}

func (b *Bus) readPacketLocked(ctx context.Context) ([]byte, error) {
	var (
		packet  []byte
		scratch [scratchSize]byte
	)
	deadline := time.Now().Add(b.timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		default:
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %d bytes buffered after %v", ErrTimeout, len(packet), b.timeout)
		}

		// Bound the blocking read so ctx and deadline stay responsive.
		remaining := max(time.Until(deadline), 10*time.Millisecond)
		b.transport.SetReadTimeout(remaining)

		// Bytes delivered alongside an error still count toward the reply.
		n, err := b.transport.Read(scratch[:])
		if n > 0 {
			packet = append(packet, scratch[:n]...)
			b.log.Debug("read bytes", "count", n, "total", len(packet))

			if IsComplete(packet) {
				break
			}
		}

		switch {
		case errors.Is(err, io.EOF):
			return nil, fmt.Errorf("%w: line closed after %d bytes", ErrTransfer, len(packet))
		case err != nil:
			return nil, &CommError{Op: "read", Err: err}
		}

		time.Sleep(time.Millisecond)
	}

	if b.trace != nil {
		b.trace.RecordRx(packet)
	}

	return packet, nil
}
