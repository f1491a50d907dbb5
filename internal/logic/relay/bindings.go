package relay

import (
	"fmt"

	"github.com/cjeanneret/joystage/internal/logic/motion"
)

// Action is what a button press does.
type Action string

const (
	ActionNone      Action = "noop"
	ActionReserved  Action = "reserved" // bound but intentionally inert
	ActionAutofocus Action = "autofocus"
	ActionCapture   Action = "capture"
	ActionZAdvance  Action = "z-advance"
	ActionZRetreat  Action = "z-retreat"
)

// Default key and axis codes of the supported gamepad.
const (
	DefaultButtonA        uint16 = 308
	DefaultButtonB        uint16 = 304
	DefaultButtonC        uint16 = 307
	DefaultButtonD        uint16 = 305
	DefaultButtonTopLeft  uint16 = 310
	DefaultButtonTopRight uint16 = 311

	DefaultAxisX uint16 = 0
	DefaultAxisY uint16 = 1
)

// ButtonCodes are the raw key codes of the six bound buttons.
type ButtonCodes struct {
	A, B, C, D        uint16
	TopLeft, TopRight uint16
}

// AxisCodes are the raw absolute codes of the stick.
type AxisCodes struct {
	X, Y uint16
}

// AxisBinding maps the two extreme stick positions to motions.
// The centre position never moves anything.
type AxisBinding struct {
	Low  motion.Motion
	High motion.Motion
}

// Bindings is the immutable dispatch table of the control loop.
type Bindings struct {
	Buttons map[uint16]Action
	Axes    map[uint16]AxisBinding
}

// NewBindings builds the dispatch table for the given codes.
// Codes must be distinct within buttons and within axes.
func NewBindings(btn ButtonCodes, axes AxisCodes) (Bindings, error) {
	b := Bindings{
		Buttons: make(map[uint16]Action, 6),
		Axes:    make(map[uint16]AxisBinding, 2),
	}

	buttons := []struct {
		code   uint16
		action Action
	}{
		{btn.A, ActionAutofocus},
		{btn.B, ActionReserved},
		{btn.C, ActionCapture},
		{btn.D, ActionReserved},
		{btn.TopLeft, ActionZAdvance},
		{btn.TopRight, ActionZRetreat},
	}
	for _, e := range buttons {
		if prev, dup := b.Buttons[e.code]; dup {
			return Bindings{}, fmt.Errorf("button code %d bound to both %s and %s", e.code, prev, e.action)
		}
		b.Buttons[e.code] = e.action
	}

	if axes.X == axes.Y {
		return Bindings{}, fmt.Errorf("axis code %d bound to both x and y", axes.X)
	}
	b.Axes[axes.X] = AxisBinding{Low: motion.XBackward, High: motion.XForward}
	b.Axes[axes.Y] = AxisBinding{Low: motion.YForward, High: motion.YBackward}

	return b, nil
}

// DefaultBindings returns the table for the stock gamepad layout.
func DefaultBindings() Bindings {
	b, err := NewBindings(
		ButtonCodes{
			A: DefaultButtonA, B: DefaultButtonB, C: DefaultButtonC, D: DefaultButtonD,
			TopLeft: DefaultButtonTopLeft, TopRight: DefaultButtonTopRight,
		},
		AxisCodes{X: DefaultAxisX, Y: DefaultAxisY},
	)
	if err != nil {
		panic(err) // default codes are distinct
	}
	return b
}

// Button returns the action bound to code, ActionNone if unbound.
func (b Bindings) Button(code uint16) Action {
	if a, ok := b.Buttons[code]; ok {
		return a
	}
	return ActionNone
}
