package camera

import (
	"time"

	"github.com/cjeanneret/joystage/internal/debug"
	"github.com/cjeanneret/joystage/internal/hw/gpio"
)

// NikonD90GPIO is a Camera implementation for a Nikon D90
// controlled via the 3-pin remote connector:
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// The camera stores pictures on its own card, so Capture's name is only
// logged.
type NikonD90GPIO struct {
	gpio         gpio.Driver
	focusPin     int
	shutterPin   int
	focusDelay   time.Duration // time for autofocus
	shutterDelay time.Duration // shutter hold time
}

// NewNikonD90GPIO creates a GPIO-controlled Nikon D90 trigger.
func NewNikonD90GPIO(g gpio.Driver, focusPin, shutterPin int, focusDelay, shutterDelay time.Duration) *NikonD90GPIO {
	_ = g.SetupPin(focusPin, gpio.Output)
	_ = g.SetupPin(shutterPin, gpio.Output)

	// Lines are HIGH (inactive) at rest
	_ = g.WritePin(focusPin, gpio.High)
	_ = g.WritePin(shutterPin, gpio.High)

	return &NikonD90GPIO{
		gpio:         g,
		focusPin:     focusPin,
		shutterPin:   shutterPin,
		focusDelay:   focusDelay,
		shutterDelay: shutterDelay,
	}
}

// Autofocus holds FOCUS low for the focus delay, then releases it.
func (n *NikonD90GPIO) Autofocus() error {
	debug.Printf("Camera: autofocus (focus=%d, %v)", n.focusPin, n.focusDelay)
	return gpio.Pulse(n.gpio, n.focusPin, gpio.Low, n.focusDelay)
}

// Capture triggers a photo on the D90.
// Sequence: FOCUS -> wait for AF -> SHUTTER -> hold -> release
func (n *NikonD90GPIO) Capture(name string) error {
	debug.Printf("Camera: triggering shot %s (focus=%d, shutter=%d)", name, n.focusPin, n.shutterPin)

	if err := n.gpio.WritePin(n.focusPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(n.focusDelay)

	if err := gpio.Pulse(n.gpio, n.shutterPin, gpio.Low, n.shutterDelay); err != nil {
		// Release FOCUS on error
		_ = n.gpio.WritePin(n.focusPin, gpio.High)
		return err
	}

	if err := n.gpio.WritePin(n.focusPin, gpio.High); err != nil {
		return err
	}

	debug.Capture(name)
	return nil
}
