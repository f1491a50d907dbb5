package camera

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cjeanneret/joystage/internal/debug"
)

// NamePlaceholder is replaced by the capture name in command arguments.
const NamePlaceholder = "{name}"

// RunFunc runs an external command. It's a field so tests can replace it.
type RunFunc func(ctx context.Context, name string, args ...string) error

// Command is a Camera backed by external programs, e.g.
// ["libcamera-still", "-n", "-o", "{name}.jpg"].
type Command struct {
	CaptureArgs   []string
	AutofocusArgs []string // empty = autofocus is a no-op
	Timeout       time.Duration
	Run           RunFunc
}

// NewCommand creates a command camera. timeout <= 0 means no limit.
func NewCommand(captureArgs, autofocusArgs []string, timeout time.Duration) *Command {
	return &Command{
		CaptureArgs:   captureArgs,
		AutofocusArgs: autofocusArgs,
		Timeout:       timeout,
		Run:           runCommand,
	}
}

func (c *Command) Autofocus() error {
	if len(c.AutofocusArgs) == 0 {
		debug.Verbose("Camera: no autofocus command configured")
		return nil
	}
	return c.exec(c.AutofocusArgs, "")
}

func (c *Command) Capture(name string) error {
	if len(c.CaptureArgs) == 0 {
		return errors.New("camera: no capture command configured")
	}
	if err := c.exec(c.CaptureArgs, name); err != nil {
		return err
	}
	debug.Capture(name)
	return nil
}

func (c *Command) exec(template []string, name string) error {
	args := make([]string, len(template))
	for i, a := range template {
		args[i] = strings.ReplaceAll(a, NamePlaceholder, name)
	}

	ctx := context.Background()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	debug.Verbose("Camera: running %v", args)
	if err := c.Run(ctx, args[0], args[1:]...); err != nil {
		return errors.Wrapf(err, "camera command %s", args[0])
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil && len(out) > 0 {
		return errors.Wrap(err, strings.TrimSpace(string(out)))
	}
	return err
}
