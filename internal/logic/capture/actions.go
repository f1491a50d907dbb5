package capture

import (
	"time"

	"github.com/cjeanneret/joystage/internal/debug"
	"github.com/cjeanneret/joystage/internal/hw/camera"
)

// TimestampLayout names captured shots DDMMYYYY_HHMMSS in local time.
const TimestampLayout = "02012006_150405"

// Timestamp formats t with TimestampLayout.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Actions runs the camera buttons of the relay. Both operations are
// fire-and-forget: a camera failure is logged and the relay keeps going.
type Actions struct {
	camera camera.Camera
}

func NewActions(c camera.Camera) *Actions {
	return &Actions{camera: c}
}

// Autofocus runs one focus cycle.
func (a *Actions) Autofocus() {
	debug.Live("Autofocus")
	if err := a.camera.Autofocus(); err != nil {
		debug.Error(err)
	}
}

// Capture takes one shot labelled ts. The camera logs the shot itself.
func (a *Actions) Capture(ts string) {
	debug.Verbose("Capture requested: %s", ts)
	if err := a.camera.Capture(ts); err != nil {
		debug.Error(err)
	}
}
