// Package dynamixel implements the Dynamixel protocol 1.0 used by AX-series
// servos: instruction packet construction, status packet validation, and the
// AX-12 control table metadata.
package dynamixel

import "fmt"

// Instruction codes per the Dynamixel protocol 1.0 specification.
const (
	InstPing  byte = 0x01
	InstRead  byte = 0x02
	InstWrite byte = 0x03
)

// Special ID values.
const (
	BroadcastID byte = 0xFE
	MaxServoID  byte = 0xFD
)

// Packet header bytes.
const (
	headerByte1 = 0xFF
	headerByte2 = 0xFF
)

// minPacketLen is the smallest valid frame:
// header(2) + id(1) + length(1) + instruction/error(1) + checksum(1).
const minPacketLen = 6

// Request is an instruction addressed to one servo on the bus. Ping, Read
// and Write are the only implementations; the unexported methods keep the
// set closed so Serialize covers every variant.
type Request interface {
	// TargetID returns the servo the request is addressed to.
	TargetID() byte

	instruction() byte
	body() []byte
}

// Ping asks a servo to answer with an empty status packet.
type Ping struct {
	ID byte
}

func (p Ping) TargetID() byte    { return p.ID }
func (p Ping) instruction() byte { return InstPing }
func (p Ping) body() []byte      { return nil }

// Read requests Length bytes of the control table starting at Address.
type Read struct {
	ID      byte
	Address byte
	Length  byte
}

func (r Read) TargetID() byte    { return r.ID }
func (r Read) instruction() byte { return InstRead }
func (r Read) body() []byte      { return []byte{r.Address, r.Length} }

// Write stores Data in the control table starting at Address. The one-byte
// declared-length field caps Data at 253 bytes; register-backed writes carry
// at most two.
type Write struct {
	ID      byte
	Address byte
	Data    []byte
}

func (w Write) TargetID() byte    { return w.ID }
func (w Write) instruction() byte { return InstWrite }

func (w Write) body() []byte {
	body := make([]byte, 1+len(w.Data))
	body[0] = w.Address
	copy(body[1:], w.Data)
	return body
}

// Status is a decoded status packet from a servo.
type Status struct {
	ID    byte
	Error StatusError
	Data  []byte
}

// StatusError is the alarm bitfield a servo reports in its status packets.
type StatusError byte

const (
	AlarmInputVoltage StatusError = 1 << 0
	AlarmAngleLimit   StatusError = 1 << 1
	AlarmOverheating  StatusError = 1 << 2
	AlarmRange        StatusError = 1 << 3
	AlarmChecksum     StatusError = 1 << 4
	AlarmOverload     StatusError = 1 << 5
	AlarmInstruction  StatusError = 1 << 6
)

func (e StatusError) Error() string {
	if e == 0 {
		return "no alarm"
	}

	var msgs []string
	if e&AlarmInputVoltage != 0 {
		msgs = append(msgs, "input voltage")
	}
	if e&AlarmAngleLimit != 0 {
		msgs = append(msgs, "angle limit")
	}
	if e&AlarmOverheating != 0 {
		msgs = append(msgs, "overheating")
	}
	if e&AlarmRange != 0 {
		msgs = append(msgs, "range")
	}
	if e&AlarmChecksum != 0 {
		msgs = append(msgs, "checksum")
	}
	if e&AlarmOverload != 0 {
		msgs = append(msgs, "overload")
	}
	if e&AlarmInstruction != 0 {
		msgs = append(msgs, "instruction")
	}

	return fmt.Sprintf("servo alarm: %v", msgs)
}

// HasError returns true if any alarm flag is set.
func (e StatusError) HasError() bool {
	return e != 0
}

// Checksum computes the protocol checksum: the ones complement of the
// wrapping 8-bit sum of data. On the wire it covers every byte between the
// header markers and the checksum itself.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum
}

// Serialize renders a request in wire format:
// header(2) + id(1) + length(1) + instruction(1) + body(n) + checksum(1).
// The declared length counts the instruction, body and checksum bytes.
func Serialize(req Request) []byte {
	body := req.body()

	buf := make([]byte, 0, minPacketLen+len(body))
	buf = append(buf, headerByte1, headerByte2)
	buf = append(buf, req.TargetID())
	buf = append(buf, byte(len(body)+2))
	buf = append(buf, req.instruction())
	buf = append(buf, body...)
	buf = append(buf, Checksum(buf[2:]))

	return buf
}

// IsComplete reports whether buf holds exactly one structurally complete
// packet: at least the minimum frame, and exactly as long as its declared
// length field says. The checksum is not inspected, so IsComplete is safe to
// call repeatedly on a growing read buffer. A buffer that has grown past the
// declared length is not complete.
func IsComplete(buf []byte) bool {
	if len(buf) < minPacketLen {
		return false
	}
	return len(buf) == int(buf[3])+4
}

// Parse validates buf as a status packet and extracts its fields. A buffer
// shorter than the minimum frame or whose actual length does not match its
// declared length fails with ErrPacketTooShort; a bad trailing checksum
// fails with ErrChecksum. The returned Status owns a copy of the payload.
func Parse(buf []byte) (Status, error) {
	if !IsComplete(buf) {
		return Status{}, fmt.Errorf("%w: %d bytes", ErrPacketTooShort, len(buf))
	}

	sum := Checksum(buf[2 : len(buf)-1])
	if got := buf[len(buf)-1]; got != sum {
		return Status{}, fmt.Errorf("%w: computed 0x%02X, packet carries 0x%02X", ErrChecksum, sum, got)
	}

	status := Status{
		ID:    buf[2],
		Error: StatusError(buf[4]),
	}

	if dataLen := len(buf) - minPacketLen; dataLen > 0 {
		status.Data = make([]byte, dataLen)
		copy(status.Data, buf[5:len(buf)-1])
	}

	return status, nil
}
