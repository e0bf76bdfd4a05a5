// Package trace records raw servo bus traffic as a stream of CBOR events,
// one event per packet moved on the wire. Streams can be replayed later with
// ReadAll for offline inspection of a session.
package trace

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Direction tells which way a packet moved on the wire.
type Direction int

const (
	// Tx marks a packet written to the servo chain.
	Tx Direction = iota
	// Rx marks a packet received from the servo chain.
	Rx
)

func (d Direction) String() string {
	switch d {
	case Tx:
		return "tx"
	case Rx:
		return "rx"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Event is one recorded packet. Struct keys are encoded as small integers to
// keep the stream compact.
type Event struct {
	// Session identifies the recording session all events of one
	// Recorder share.
	Session string `cbor:"1,keyasint"`

	// Seq numbers events within a session, starting at 1.
	Seq uint64 `cbor:"2,keyasint"`

	// Time is the wall-clock moment the packet cleared the wire.
	Time time.Time `cbor:"3,keyasint"`

	// Dir tells whether the packet was sent or received.
	Dir Direction `cbor:"4,keyasint"`

	// Bytes is the complete packet, header through checksum.
	Bytes []byte `cbor:"5,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Recorder writes bus traffic to a stream as CBOR events. It satisfies the
// bus Tracer interface, so a Recorder can be wired straight into BusConfig.
// Methods are safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	enc     *cbor.Encoder
	session string
	seq     uint64
	err     error
	closed  bool
}

// NewRecorder creates a Recorder writing to w under a fresh session id.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		enc:     encMode.NewEncoder(w),
		session: uuid.New().String(),
	}
}

// Session returns the recording session id.
func (r *Recorder) Session() string {
	return r.session
}

// RecordTx records a packet written to the wire.
func (r *Recorder) RecordTx(data []byte) {
	r.record(Tx, data)
}

// RecordRx records a packet received from the wire.
func (r *Recorder) RecordRx(data []byte) {
	r.record(Rx, data)
}

func (r *Recorder) record(dir Direction, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.err != nil {
		return
	}

	r.seq++
	event := Event{
		Session: r.session,
		Seq:     r.seq,
		Time:    time.Now().UTC(),
		Dir:     dir,
		Bytes:   data,
	}
	if err := r.enc.Encode(event); err != nil {
		r.err = fmt.Errorf("encoding trace event: %w", err)
	}
}

// Close stops the recorder and reports the first error hit while encoding
// events, if any. Events recorded after Close are dropped.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return r.err
}

// ReadAll decodes all events from a recorded trace stream.
func ReadAll(r io.Reader) ([]Event, error) {
	dec := decMode.NewDecoder(r)

	var events []Event
	for {
		var event Event
		if err := dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, fmt.Errorf("decoding trace event: %w", err)
		}
		events = append(events, event)
	}
}
