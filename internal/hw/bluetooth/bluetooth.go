// Package bluetooth discovers nearby devices through the BlueZ command
// line tools, so a gamepad can be paired from the web page.
package bluetooth

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cjeanneret/joystage/internal/debug"
)

// DefaultTimeout bounds one scan. hcitool scan takes about 10s.
const DefaultTimeout = 30 * time.Second

// Device is one discovered Bluetooth device.
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// RunFunc runs a command and returns its standard output.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Scanner queries the local adapter.
type Scanner struct {
	Run     RunFunc
	Timeout time.Duration
}

// NewScanner returns a scanner that runs the real tools.
func NewScanner() *Scanner {
	return &Scanner{Run: runCommand, Timeout: DefaultTimeout}
}

// Available reports whether an adapter is present and powered.
func (s *Scanner) Available(ctx context.Context) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.Run(ctx, "bluetoothctl", "show")
	if err != nil {
		debug.Verbose("bluetoothctl show: %v", err)
		return false
	}
	return strings.Contains(string(out), "Powered: yes")
}

// Scan lists nearby devices. With no usable adapter it returns an empty
// list and no error.
func (s *Scanner) Scan(ctx context.Context) ([]Device, error) {
	if !s.Available(ctx) {
		debug.Info("Bluetooth adapter not available")
		return []Device{}, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.Run(ctx, "hcitool", "scan")
	if err != nil {
		return nil, errors.Wrap(err, "hcitool scan")
	}
	devices := ParseScan(string(out))
	debug.Verbose("Bluetooth scan: %d device(s)", len(devices))
	return devices, nil
}

// ParseScan extracts devices from hcitool scan output. Device lines are
// tab separated: "\t<address>\t<name>". The header line is skipped.
func ParseScan(out string) []Device {
	devices := []Device{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimSpace(line), "\t")
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, Device{
			Address: strings.TrimSpace(fields[0]),
			Name:    strings.TrimSpace(fields[1]),
		})
	}
	return devices
}

func (s *Scanner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	debug.Trace("exec %s %v", name, args)
	return exec.CommandContext(ctx, name, args...).Output()
}
