package camera

// Camera is the interface the relay's camera buttons drive.
// Implementations may be GPIO remote triggers, external capture
// programs, etc.
type Camera interface {
	// Autofocus runs a focus cycle without taking a picture.
	Autofocus() error
	// Capture takes one picture. name labels the shot (e.g. a timestamp);
	// implementations that write files use it as the file name.
	Capture(name string) error
}
