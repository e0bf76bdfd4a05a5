package dynamixel

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Access describes whether a register can be written.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadOnly {
		return "RO"
	}
	return "RW"
}

// Register identifies one entry of the AX-12 control table.
type Register int

// AX-12 control table registers in address order.
const (
	RegModelNumber Register = iota
	RegFirmwareVersion
	RegID
	RegBaudRate
	RegReturnDelayTime
	RegCWAngleLimit
	RegCCWAngleLimit
	RegTemperatureLimit
	RegVoltageLimitLow
	RegVoltageLimitHigh
	RegMaxLoad
	RegStatusReturnLevel
	RegAlarmLED
	RegAlarmShutdown
	RegTorqueEnable
	RegLEDEnable
	RegCWComplianceMargin
	RegCCWComplianceMargin
	RegCWComplianceSlope
	RegCCWComplianceSlope
	RegGoalPosition
	RegMovingSpeed
	RegTorqueLimit
	RegPresentPosition
	RegPresentSpeed
	RegPresentLoad
	RegPresentVoltage
	RegPresentTemperature
	RegRegistered
	RegMoving
	RegLock
	RegPunch

	registerCount
)

// Descriptor holds the wire metadata of one control table register.
type Descriptor struct {
	Description string
	Access      Access
	Address     byte
	Width       int // payload size in bytes, 1 or 2
}

var descriptors = [registerCount]Descriptor{
	RegModelNumber:         {"Model number", ReadOnly, 0x00, 2},
	RegFirmwareVersion:     {"Firmware version", ReadOnly, 0x02, 1},
	RegID:                  {"Actuator identifier", ReadWrite, 0x03, 1},
	RegBaudRate:            {"Communication baud rate", ReadWrite, 0x04, 1},
	RegReturnDelayTime:     {"Return delay time", ReadWrite, 0x05, 1},
	RegCWAngleLimit:        {"Clockwise angle limit", ReadWrite, 0x06, 2},
	RegCCWAngleLimit:       {"Counterclockwise angle limit", ReadWrite, 0x08, 2},
	RegTemperatureLimit:    {"Temperature alarm level", ReadWrite, 0x0B, 1},
	RegVoltageLimitLow:     {"Low voltage alarm level", ReadWrite, 0x0C, 1},
	RegVoltageLimitHigh:    {"High voltage alarm level", ReadWrite, 0x0D, 1},
	RegMaxLoad:             {"Max load alarm level", ReadWrite, 0x0E, 2},
	RegStatusReturnLevel:   {"Status return level", ReadWrite, 0x10, 1},
	RegAlarmLED:            {"LED indication on alarm", ReadWrite, 0x11, 1},
	RegAlarmShutdown:       {"Shutdown on alarm", ReadWrite, 0x12, 1},
	RegTorqueEnable:        {"Enable torque output", ReadWrite, 0x18, 1},
	RegLEDEnable:           {"Enable Led", ReadWrite, 0x19, 1},
	RegCWComplianceMargin:  {"Clockwise compliance margin", ReadWrite, 0x1A, 1},
	RegCCWComplianceMargin: {"Counterclockwise compliance margin", ReadWrite, 0x1B, 1},
	RegCWComplianceSlope:   {"Clockwise compliance slope", ReadWrite, 0x1C, 1},
	RegCCWComplianceSlope:  {"Counterclockwise compliance slope", ReadWrite, 0x1D, 1},
	RegGoalPosition:        {"Goal position", ReadWrite, 0x1E, 2},
	RegMovingSpeed:         {"Moving speed", ReadWrite, 0x20, 2},
	RegTorqueLimit:         {"Torque limit", ReadWrite, 0x22, 2},
	RegPresentPosition:     {"Current position", ReadOnly, 0x24, 2},
	RegPresentSpeed:        {"Current speed", ReadOnly, 0x26, 2},
	RegPresentLoad:         {"Current load", ReadOnly, 0x28, 2},
	RegPresentVoltage:      {"Current voltage", ReadOnly, 0x2A, 1},
	RegPresentTemperature:  {"Current temperature", ReadOnly, 0x2B, 1},
	RegRegistered:          {"Instruction registered", ReadOnly, 0x2C, 1},
	RegMoving:              {"Is Moving", ReadOnly, 0x2E, 1},
	RegLock:                {"EEPROM Lock", ReadWrite, 0x2F, 1},
	RegPunch:               {"Punch value", ReadWrite, 0x30, 2},
}

var registerNames = [registerCount]string{
	RegModelNumber:         "ModelNumber",
	RegFirmwareVersion:     "FirmwareVersion",
	RegID:                  "ID",
	RegBaudRate:            "BaudRate",
	RegReturnDelayTime:     "ReturnDelayTime",
	RegCWAngleLimit:        "CWAngleLimit",
	RegCCWAngleLimit:       "CCWAngleLimit",
	RegTemperatureLimit:    "TemperatureLimit",
	RegVoltageLimitLow:     "VoltageLimitLow",
	RegVoltageLimitHigh:    "VoltageLimitHigh",
	RegMaxLoad:             "MaxLoad",
	RegStatusReturnLevel:   "StatusReturnLevel",
	RegAlarmLED:            "AlarmLED",
	RegAlarmShutdown:       "AlarmShutdown",
	RegTorqueEnable:        "TorqueEnable",
	RegLEDEnable:           "LEDEnable",
	RegCWComplianceMargin:  "CWComplianceMargin",
	RegCCWComplianceMargin: "CCWComplianceMargin",
	RegCWComplianceSlope:   "CWComplianceSlope",
	RegCCWComplianceSlope:  "CCWComplianceSlope",
	RegGoalPosition:        "GoalPosition",
	RegMovingSpeed:         "MovingSpeed",
	RegTorqueLimit:         "TorqueLimit",
	RegPresentPosition:     "PresentPosition",
	RegPresentSpeed:        "PresentSpeed",
	RegPresentLoad:         "PresentLoad",
	RegPresentVoltage:      "PresentVoltage",
	RegPresentTemperature:  "PresentTemperature",
	RegRegistered:          "Registered",
	RegMoving:              "Moving",
	RegLock:                "Lock",
	RegPunch:               "Punch",
}

var registersByName = make(map[string]Register, registerCount)

func init() {
	for r, name := range registerNames {
		registersByName[strings.ToLower(name)] = Register(r)
	}
}

// Registers returns every control table register in address order.
func Registers() []Register {
	regs := make([]Register, registerCount)
	for i := range regs {
		regs[i] = Register(i)
	}
	return regs
}

// RegisterByName looks up a register by its name, ignoring case.
func RegisterByName(name string) (Register, bool) {
	r, ok := registersByName[strings.ToLower(name)]
	return r, ok
}

// Descriptor returns the control table entry for r.
func (r Register) Descriptor() Descriptor {
	return descriptors[r]
}

// String returns the register name, e.g. "GoalPosition".
func (r Register) String() string {
	if r < 0 || r >= registerCount {
		return fmt.Sprintf("Register(%d)", int(r))
	}
	return registerNames[r]
}

// ReadRequest builds the Read instruction that fetches this register from
// the servo with the given id.
func (r Register) ReadRequest(id byte) Read {
	d := r.Descriptor()
	return Read{ID: id, Address: d.Address, Length: byte(d.Width)}
}

// WriteRequest builds the Write instruction that stores value in this
// register on the servo with the given id. Read-only registers fail with
// ErrReadOnly; a value that does not fit a one-byte register fails with
// ErrValueRange.
func (r Register) WriteRequest(id byte, value uint16) (Write, error) {
	d := r.Descriptor()
	if d.Access == ReadOnly {
		return Write{}, fmt.Errorf("%w: %s", ErrReadOnly, r)
	}

	data := make([]byte, d.Width)
	switch d.Width {
	case 1:
		if value > 0xFF {
			return Write{}, fmt.Errorf("%w: %s holds one byte, value %d", ErrValueRange, r, value)
		}
		data[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(data, value)
	}

	return Write{ID: id, Address: d.Address, Data: data}, nil
}

// DecodeValue interprets a status payload as this register's value: a single
// byte zero-extends, two bytes are read little-endian. Any other payload
// size means the status does not belong to this register and fails with
// ErrWidthMismatch.
func (r Register) DecodeValue(status Status) (uint16, error) {
	switch len(status.Data) {
	case 1:
		return uint16(status.Data[0]), nil
	case 2:
		return binary.LittleEndian.Uint16(status.Data), nil
	default:
		return 0, fmt.Errorf("%w: %s holds %d bytes, status carries %d",
			ErrWidthMismatch, r, r.Descriptor().Width, len(status.Data))
	}
}
