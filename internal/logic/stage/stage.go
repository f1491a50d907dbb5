package stage

import (
	"fmt"

	"go.uber.org/atomic"
)

// Axis holds the step size and cumulative position of one mechanical axis.
// Position only moves by exactly StepSize per confirmed command; the relay
// loop is its only writer. Readers may call Position at any time. The step
// size is fixed at construction.
type Axis struct {
	Name     string
	stepSize int

	position atomic.Int64
}

// NewAxis creates an axis at position 0.
func NewAxis(name string, stepSize int) *Axis {
	return &Axis{Name: name, stepSize: stepSize}
}

// StepSize returns the number of motor steps per command.
func (a *Axis) StepSize() int {
	return a.stepSize
}

// Position returns the current position in steps.
func (a *Axis) Position() int64 {
	return a.position.Load()
}

// Apply moves the position by one step size in the given direction
// (sign > 0 increments, sign < 0 decrements, 0 is a no-op).
func (a *Axis) Apply(sign int) int64 {
	switch {
	case sign > 0:
		return a.position.Add(int64(a.stepSize))
	case sign < 0:
		return a.position.Sub(int64(a.stepSize))
	default:
		return a.position.Load()
	}
}

// Stage is the in-memory model of the X/Y/Z stage.
type Stage struct {
	X *Axis
	Y *Axis
	Z *Axis
}

// Snapshot is a point-in-time copy of all positions.
type Snapshot struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
	Z int64 `json:"z"`
}

// New creates a stage with the given step sizes.
func New(xStep, yStep, zStep int) *Stage {
	return &Stage{
		X: NewAxis("x", xStep),
		Y: NewAxis("y", yStep),
		Z: NewAxis("z", zStep),
	}
}

// Axis returns the axis with the given name ("x", "y" or "z").
func (s *Stage) Axis(name string) (*Axis, error) {
	switch name {
	case "x":
		return s.X, nil
	case "y":
		return s.Y, nil
	case "z":
		return s.Z, nil
	default:
		return nil, fmt.Errorf("unknown axis %q", name)
	}
}

// Snapshot reads all three positions.
func (s *Stage) Snapshot() Snapshot {
	return Snapshot{
		X: s.X.Position(),
		Y: s.Y.Position(),
		Z: s.Z.Position(),
	}
}
