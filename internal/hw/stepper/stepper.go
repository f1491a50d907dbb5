package stepper

import (
	"time"

	"github.com/cjeanneret/joystage/internal/debug"
	"github.com/cjeanneret/joystage/internal/hw/gpio"
)

// Config holds the hardware configuration for a step/dir driver (A4988 style).
type Config struct {
	StepPin   int
	DirPin    int
	EnablePin int           // ENABLE pin (BCM). 0 = not used. Active LOW.
	Invert    bool          // swap DIR levels when the motor is wired backwards
	StepDelay time.Duration // delay per half-cycle of STEP pulse. Total step = 2*StepDelay.
}

// Stepper moves one motor by pulsing STEP with DIR set.
type Stepper struct {
	gpio  gpio.Driver
	cfg   Config
	delay time.Duration
}

// NewStepper configures the pins and enables the driver.
// cfg.StepDelay defaults to 1ms.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}

	s := &Stepper{
		gpio:  g,
		cfg:   cfg,
		delay: delay,
	}

	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low) // enabled, holds position
	}

	return s
}

// MoveSteps moves the motor by a number of steps (positive = DIR high).
func (s *Stepper) MoveSteps(steps int) error {
	if steps == 0 {
		return nil
	}

	dirLevel := gpio.High
	if steps < 0 {
		dirLevel = gpio.Low
		steps = -steps
	}
	if s.cfg.Invert {
		dirLevel = !dirLevel
	}

	debug.Trace("Stepper: %d steps, dir=%v on pin %d", steps, dirLevel, s.cfg.StepPin)

	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return err
	}

	for i := 0; i < steps; i++ {
		if err := gpio.Pulse(s.gpio, s.cfg.StepPin, gpio.High, s.delay); err != nil {
			return err
		}
		time.Sleep(s.delay)
	}
	return nil
}

// Enable turns on the driver (ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the driver (ENABLE=HIGH). Motors freewheel.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
