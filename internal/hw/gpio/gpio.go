package gpio

import (
	"time"

	"github.com/cjeanneret/joystage/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver is the GPIO abstraction used by the camera trigger and the local
// stepper backend. RPiDriver drives real pins, MockDriver only logs.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// Pulse drives pin to active, holds it for hold, then drives it back.
// The pin is released even if hold is zero.
func Pulse(d Driver, pin int, active Level, hold time.Duration) error {
	if err := d.WritePin(pin, active); err != nil {
		return err
	}
	if hold > 0 {
		time.Sleep(hold)
	}
	return d.WritePin(pin, !active)
}

// MockDriver logs GPIO operations without touching hardware.
// Used on a development PC (defaults.mock_gpio: true) and in tests.
type MockDriver struct{}

// NewDriver returns a MockDriver when mock is true, otherwise an RPiDriver.
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	return Low, nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
