package stepper

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/cjeanneret/joystage/internal/hw/board"
)

// Link drives local steppers with the same Send/AwaitAck contract as the
// serial board. Send performs the move; AwaitAck reports its result, so a
// move is always "acknowledged" once the pulses have gone out.
type Link struct {
	motors  map[board.Axis]*Stepper
	pending error
	sent    bool
}

// NewLink maps each axis to a motor. Axes without a motor reject frames.
func NewLink(motors map[board.Axis]*Stepper) *Link {
	return &Link{motors: motors}
}

// Send moves +Magnitude steps for clockwise frames, -Magnitude otherwise.
func (l *Link) Send(f board.Frame) error {
	m, ok := l.motors[f.Axis]
	if !ok {
		return errors.Errorf("no stepper for axis %s", f.Axis)
	}
	steps := f.Magnitude
	if f.Direction == board.CounterClockwise {
		steps = -steps
	}
	l.sent = true
	l.pending = m.MoveSteps(steps)
	return nil
}

// AwaitAck returns the outcome of the last move.
func (l *Link) AwaitAck() error {
	if !l.sent {
		return errors.New("await ack without a command")
	}
	err := l.pending
	l.sent, l.pending = false, nil
	if err != nil {
		return errors.Wrap(err, "stepper move")
	}
	return nil
}

// Close disables every driver so motors freewheel.
func (l *Link) Close() error {
	var err error
	for _, m := range l.motors {
		err = multierr.Append(err, m.Disable())
	}
	return err
}
