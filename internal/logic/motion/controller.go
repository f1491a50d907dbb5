package motion

import (
	"fmt"

	"github.com/cjeanneret/joystage/internal/debug"
	"github.com/cjeanneret/joystage/internal/hw/board"
	"github.com/cjeanneret/joystage/internal/logic/stage"
)

// Link is a command channel to whatever moves the stage: a serial board
// or local steppers. Send issues one frame, AwaitAck blocks until the move
// is confirmed.
type Link interface {
	Send(f board.Frame) error
	AwaitAck() error
}

// Motion is a named logical move: which axis, which rotation, and which
// way the stage position changes once it is confirmed.
type Motion struct {
	Name      string
	Axis      board.Axis
	Direction board.Direction
	Sign      int
}

var (
	XForward  = Motion{"x-forward", board.AxisX, board.Clockwise, +1}
	XBackward = Motion{"x-backward", board.AxisX, board.CounterClockwise, -1}
	YForward  = Motion{"y-forward", board.AxisY, board.CounterClockwise, +1}
	YBackward = Motion{"y-backward", board.AxisY, board.Clockwise, -1}
	ZAdvance  = Motion{"z-advance", board.AxisZ, board.CounterClockwise, +1}
	ZRetreat  = Motion{"z-retreat", board.AxisZ, board.Clockwise, -1}
)

// Controller turns motions into confirmed commands and keeps the stage
// model in sync. It sits between the relay loop and the link.
type Controller struct {
	link  Link
	stage *stage.Stage
}

func NewController(link Link, st *stage.Stage) *Controller {
	return &Controller{
		link:  link,
		stage: st,
	}
}

// Stage returns the stage model this controller updates.
func (c *Controller) Stage() *stage.Stage {
	return c.stage
}

// Jog issues one step-size command for m, waits for the ack, then updates
// the axis position. The position is untouched if either step fails.
func (c *Controller) Jog(m Motion) error {
	axis, err := c.stage.Axis(string(m.Axis))
	if err != nil {
		return err
	}

	frame := board.Frame{Axis: m.Axis, Direction: m.Direction, Magnitude: axis.StepSize()}
	if err := c.link.Send(frame); err != nil {
		return fmt.Errorf("%s: send: %w", m.Name, err)
	}
	if err := c.link.AwaitAck(); err != nil {
		return fmt.Errorf("%s: await ack: %w", m.Name, err)
	}

	pos := axis.Apply(m.Sign)
	debug.Move(axis.Name, axis.StepSize(), string(m.Direction), pos)
	return nil
}
