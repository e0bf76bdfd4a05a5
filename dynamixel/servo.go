package dynamixel

import "context"

// Servo addresses one servo on a bus by id and exposes typed access to its
// control table.
type Servo struct {
	bus *Bus
	id  byte
}

// NewServo creates a handle for the servo with the given id.
func NewServo(bus *Bus, id byte) *Servo {
	return &Servo{bus: bus, id: id}
}

// ID returns the servo's bus id.
func (s *Servo) ID() byte {
	return s.id
}

// Ping checks that the servo answers on the bus.
func (s *Servo) Ping(ctx context.Context) error {
	return s.bus.Ping(ctx, s.id)
}

// ReadRegister reads any control table register.
func (s *Servo) ReadRegister(ctx context.Context, reg Register) (uint16, error) {
	return s.bus.ReadRegister(ctx, s.id, reg)
}

// WriteRegister writes any control table register.
func (s *Servo) WriteRegister(ctx context.Context, reg Register, value uint16) error {
	return s.bus.WriteRegister(ctx, s.id, reg, value)
}

// Identity

// ModelNumber reads the servo's model number.
func (s *Servo) ModelNumber(ctx context.Context) (uint16, error) {
	return s.ReadRegister(ctx, RegModelNumber)
}

// FirmwareVersion reads the servo's firmware version.
func (s *Servo) FirmwareVersion(ctx context.Context) (uint16, error) {
	return s.ReadRegister(ctx, RegFirmwareVersion)
}

// SetID assigns a new bus id to the servo. The handle follows the servo to
// its new id on success.
func (s *Servo) SetID(ctx context.Context, id byte) error {
	if err := s.WriteRegister(ctx, RegID, uint16(id)); err != nil {
		return err
	}
	s.id = id
	return nil
}

// Position Control

// Position reads the current position (0-1023, about 0.29 degrees per step).
func (s *Servo) Position(ctx context.Context) (uint16, error) {
	return s.ReadRegister(ctx, RegPresentPosition)
}

// SetGoalPosition commands the servo to move to a position (0-1023).
func (s *Servo) SetGoalPosition(ctx context.Context, position uint16) error {
	return s.WriteRegister(ctx, RegGoalPosition, position)
}

// Speed reads the current moving speed.
func (s *Servo) Speed(ctx context.Context) (uint16, error) {
	return s.ReadRegister(ctx, RegPresentSpeed)
}

// SetMovingSpeed sets the speed used to reach the goal position
// (0-1023, 0 means maximum).
func (s *Servo) SetMovingSpeed(ctx context.Context, speed uint16) error {
	return s.WriteRegister(ctx, RegMovingSpeed, speed)
}

// Moving reports whether the servo is moving towards its goal position.
func (s *Servo) Moving(ctx context.Context) (bool, error) {
	value, err := s.ReadRegister(ctx, RegMoving)
	if err != nil {
		return false, err
	}
	return value != 0, nil
}

// Torque

// SetTorqueEnable switches the motor output on or off.
func (s *Servo) SetTorqueEnable(ctx context.Context, enable bool) error {
	var value uint16
	if enable {
		value = 1
	}
	return s.WriteRegister(ctx, RegTorqueEnable, value)
}

// SetTorqueLimit caps the motor output torque (0-1023).
func (s *Servo) SetTorqueLimit(ctx context.Context, limit uint16) error {
	return s.WriteRegister(ctx, RegTorqueLimit, limit)
}

// Load reads the current load on the motor. Bit 10 carries the direction,
// the low 10 bits the magnitude.
func (s *Servo) Load(ctx context.Context) (uint16, error) {
	return s.ReadRegister(ctx, RegPresentLoad)
}

// Monitoring

// Voltage reads the present supply voltage in volts.
func (s *Servo) Voltage(ctx context.Context) (float64, error) {
	value, err := s.ReadRegister(ctx, RegPresentVoltage)
	if err != nil {
		return 0, err
	}
	return float64(value) / 10, nil
}

// Temperature reads the internal temperature in degrees Celsius.
func (s *Servo) Temperature(ctx context.Context) (int, error) {
	value, err := s.ReadRegister(ctx, RegPresentTemperature)
	if err != nil {
		return 0, err
	}
	return int(value), nil
}

// LED

// SetLED switches the status LED on or off.
func (s *Servo) SetLED(ctx context.Context, on bool) error {
	var value uint16
	if on {
		value = 1
	}
	return s.WriteRegister(ctx, RegLEDEnable, value)
}
