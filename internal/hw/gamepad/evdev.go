package gamepad

import (
	evdev "github.com/gvalkov/golang-evdev"
	"github.com/pkg/errors"

	"github.com/cjeanneret/joystage/internal/debug"
)

// Device reads events from a Linux evdev node such as /dev/input/event5.
type Device struct {
	dev *evdev.InputDevice
}

// Open opens an input device node.
func Open(path string) (*Device, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open input device %s", path)
	}
	debug.Verbose("Gamepad: opened %s (%s)", path, dev.Name)
	return &Device{dev: dev}, nil
}

// Next blocks until the device produces an event.
func (d *Device) Next() (Event, error) {
	ev, err := d.dev.ReadOne()
	if err != nil {
		return Event{}, errors.Wrap(err, "read input event")
	}
	return Event{Type: classify(ev.Type), Code: ev.Code, Value: ev.Value}, nil
}

// Close releases the device node.
func (d *Device) Close() error {
	return d.dev.File.Close()
}

func classify(t uint16) EventType {
	switch t {
	case evdev.EV_KEY:
		return Key
	case evdev.EV_ABS:
		return Absolute
	default:
		return Other
	}
}
