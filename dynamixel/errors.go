package dynamixel

import (
	"errors"
	"fmt"
)

// Sentinel errors raised by the packet codec and register decoding.
var (
	// ErrPacketTooShort reports a buffer below the minimum frame size or
	// whose actual length does not match its declared length field.
	ErrPacketTooShort = errors.New("packet too short")

	// ErrChecksum reports a checksum mismatch in a received packet.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrMalformedPacket is reserved for structural violations beyond
	// length and checksum. No current code path produces it.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrWidthMismatch reports a status payload whose size does not fit
	// any register width. It marks a caller contract violation: the status
	// being decoded does not belong to the register it is decoded as.
	ErrWidthMismatch = errors.New("register width mismatch")
)

// Sentinel errors raised by bus communication.
var (
	// ErrTransfer reports an interrupted transfer: a write that moved
	// fewer bytes than the frame holds, or a line that closed before a
	// complete packet arrived.
	ErrTransfer = errors.New("transfer interrupted")

	// ErrTimeout reports an exchange abandoned because its deadline
	// passed or its context was cancelled before the reply completed.
	ErrTimeout = errors.New("communication timeout")

	ErrBusClosed  = errors.New("bus is closed")
	ErrReadOnly   = errors.New("register is read-only")
	ErrValueRange = errors.New("value out of register range")
)

// CommError represents a failure moving or decoding bytes on the bus.
type CommError struct {
	Op  string // Failing operation: "open", "write", "read", "parse" or "decode"
	Err error  // Underlying error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("communication error during %s: %v", e.Op, e.Err)
}

func (e *CommError) Unwrap() error {
	return e.Err
}

// ServoError represents a failure reported by or attributed to one servo.
type ServoError struct {
	ID     byte        // Servo ID
	Op     string      // Operation that failed
	Status StatusError // Alarm flags from the servo (if applicable)
	Err    error       // Underlying error (if applicable)
}

func (e *ServoError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("servo %d %s failed: %s", e.ID, e.Op, e.Status.Error())
	}
	if e.Err != nil {
		return fmt.Sprintf("servo %d %s failed: %v", e.ID, e.Op, e.Err)
	}
	return fmt.Sprintf("servo %d %s failed", e.ID, e.Op)
}

func (e *ServoError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsDataError returns true if the error stems from decoding a received
// packet rather than from moving bytes on the wire.
func IsDataError(err error) bool {
	return errors.Is(err, ErrPacketTooShort) ||
		errors.Is(err, ErrChecksum) ||
		errors.Is(err, ErrMalformedPacket) ||
		errors.Is(err, ErrWidthMismatch)
}

// GetServoError extracts a ServoError from an error chain, if present.
func GetServoError(err error) (*ServoError, bool) {
	var servoErr *ServoError
	if errors.As(err, &servoErr) {
		return servoErr, true
	}
	return nil, false
}
