package config

import "fmt"

// Overrides are command line values that win over the file.
// Empty strings and a nil AckTimeoutMs mean "use config".
type Overrides struct {
	SerialPort   string
	InputDevice  string
	AckTimeoutMs *int
}

// ValidateOverrides checks override values before they are applied.
func ValidateOverrides(o Overrides) error {
	if o.AckTimeoutMs != nil && *o.AckTimeoutMs < 0 {
		return fmt.Errorf("ack_timeout_ms must be >= 0, got %d", *o.AckTimeoutMs)
	}
	if len(o.SerialPort) > 4096 || len(o.InputDevice) > 4096 {
		return fmt.Errorf("device path too long")
	}
	return nil
}

// Apply mutates c with the set overrides and revalidates it.
func (c *Config) Apply(o Overrides) error {
	if err := ValidateOverrides(o); err != nil {
		return err
	}
	if o.SerialPort != "" {
		c.Board.Port = o.SerialPort
	}
	if o.InputDevice != "" {
		c.Gamepad.Device = o.InputDevice
	}
	if o.AckTimeoutMs != nil {
		c.Board.AckTimeoutMs = *o.AckTimeoutMs
	}
	return c.Validate()
}
