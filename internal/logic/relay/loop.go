// Package relay turns gamepad events into board commands and camera actions.
package relay

import (
	"time"

	"go.uber.org/atomic"

	"github.com/cjeanneret/joystage/internal/debug"
	"github.com/cjeanneret/joystage/internal/hw/gamepad"
	"github.com/cjeanneret/joystage/internal/logic/capture"
	"github.com/cjeanneret/joystage/internal/logic/motion"
)

// Mover performs one confirmed move. *motion.Controller implements it.
type Mover interface {
	Jog(m motion.Motion) error
}

// Actions are the camera buttons. Both are fire-and-forget.
type Actions interface {
	Autofocus()
	Capture(ts string)
}

// Loop dispatches events from a Source, one at a time, until the source
// fails, a move fails, or the stop flag is observed.
type Loop struct {
	mover    Mover
	actions  Actions
	bindings Bindings
	stop     *atomic.Bool
	now      func() time.Time
}

func NewLoop(mover Mover, actions Actions, bindings Bindings, stop *atomic.Bool) *Loop {
	return &Loop{
		mover:    mover,
		actions:  actions,
		bindings: bindings,
		stop:     stop,
		now:      time.Now,
	}
}

// Dispatch handles a single event. Unbound and non-actionable events are
// ignored. The returned error comes from the move, if any.
func (l *Loop) Dispatch(ev gamepad.Event) error {
	switch ev.Type {
	case gamepad.Key:
		if ev.Value != gamepad.KeyPressed {
			return nil
		}
		return l.button(ev.Code)
	case gamepad.Absolute:
		return l.stick(ev.Code, ev.Value)
	default:
		return nil
	}
}

func (l *Loop) button(code uint16) error {
	switch action := l.bindings.Button(code); action {
	case ActionAutofocus:
		l.actions.Autofocus()
	case ActionCapture:
		l.actions.Capture(capture.Timestamp(l.now()))
	case ActionZAdvance:
		return l.mover.Jog(motion.ZAdvance)
	case ActionZRetreat:
		return l.mover.Jog(motion.ZRetreat)
	default:
		debug.Verbose("Button %d: %s, ignored", code, action)
	}
	return nil
}

func (l *Loop) stick(code uint16, value int32) error {
	b, ok := l.bindings.Axes[code]
	if !ok {
		return nil
	}
	switch value {
	case gamepad.AbsLow:
		return l.mover.Jog(b.Low)
	case gamepad.AbsHigh:
		return l.mover.Jog(b.High)
	default:
		return nil
	}
}

// Run reads events until an error or a stop request. The stop flag is
// checked after every event, ignored ones included, and is cleared when
// honoured. A stop request therefore waits for the next event to arrive.
func (l *Loop) Run(src gamepad.Source) error {
	for {
		ev, err := src.Next()
		if err != nil {
			return err
		}
		debug.Event(ev.Type.String(), ev.Code, ev.Value)

		if err := l.Dispatch(ev); err != nil {
			return err
		}

		if l.stop.CompareAndSwap(true, false) {
			return nil
		}
	}
}
