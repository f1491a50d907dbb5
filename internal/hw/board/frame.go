// Package board talks to the motor controller board over a byte stream.
//
// Each command is one ASCII token "<axis><direction>,<magnitude>" with no
// line terminator, for example "xcclk,5". The board answers "Done\r\n" once
// the move has completed.
package board

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Axis identifies a stage axis on the wire.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
	AxisZ Axis = "z"
)

// Direction is the rotation direction token.
type Direction string

const (
	Clockwise        Direction = "clk"
	CounterClockwise Direction = "cclk"
)

// Frame is one outbound command.
type Frame struct {
	Axis      Axis
	Direction Direction
	Magnitude int
}

// String renders the frame in wire format.
func (f Frame) String() string {
	return string(f.Axis) + string(f.Direction) + "," + strconv.Itoa(f.Magnitude)
}

// ParseFrame parses a wire token back into a Frame.
func ParseFrame(s string) (Frame, error) {
	head, mag, ok := strings.Cut(s, ",")
	if !ok {
		return Frame{}, errors.Errorf("frame %q: missing ','", s)
	}
	if len(head) < 2 {
		return Frame{}, errors.Errorf("frame %q: missing axis or direction", s)
	}

	axis := Axis(head[:1])
	switch axis {
	case AxisX, AxisY, AxisZ:
	default:
		return Frame{}, errors.Errorf("frame %q: unknown axis %q", s, axis)
	}

	dir := Direction(head[1:])
	switch dir {
	case Clockwise, CounterClockwise:
	default:
		return Frame{}, errors.Errorf("frame %q: unknown direction %q", s, dir)
	}

	n, err := strconv.Atoi(mag)
	if err != nil {
		return Frame{}, errors.Wrapf(err, "frame %q: magnitude", s)
	}
	if n < 0 {
		return Frame{}, errors.Errorf("frame %q: negative magnitude", s)
	}

	return Frame{Axis: axis, Direction: dir, Magnitude: n}, nil
}
