package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/joystage/internal/hw/board"
	"github.com/cjeanneret/joystage/internal/logic/relay"
)

// MaxConfigFileBytes caps the size of a config file read by Load.
const MaxConfigFileBytes = 64 * 1024

// Board backends.
const (
	BoardSerial   = "serial"
	BoardLoopback = "loopback"
	BoardGPIO     = "gpio"
)

// Camera backends.
const (
	CameraNikonD90GPIO = "nikon_d90_gpio"
	CameraCommand      = "command"
)

// StepperConfig holds the pins of one step/dir driver (board.type: gpio).
type StepperConfig struct {
	StepPin     int  `yaml:"step_pin"`
	DirPin      int  `yaml:"dir_pin"`
	EnablePin   int  `yaml:"enable_pin"`    // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	Invert      bool `yaml:"invert"`        // swap rotation direction
	StepDelayUs int  `yaml:"step_delay_us"` // half period of the STEP pulse
}

// StepDelay returns the STEP half period.
func (s *StepperConfig) StepDelay() time.Duration {
	return time.Duration(s.StepDelayUs) * time.Microsecond
}

// SteppersConfig maps stage axes to local drivers.
type SteppersConfig struct {
	X *StepperConfig `yaml:"x,omitempty"`
	Y *StepperConfig `yaml:"y,omitempty"`
	Z *StepperConfig `yaml:"z,omitempty"`
}

// BoardConfig describes the link to the motor controller.
type BoardConfig struct {
	Type         string         `yaml:"type"`           // serial | loopback | gpio
	Port         string         `yaml:"port"`           // e.g. /dev/ttyUSB1
	BaudRate     int            `yaml:"baud_rate"`      // default 9600
	AckTimeoutMs int            `yaml:"ack_timeout_ms"` // 0 = wait forever
	Steppers     SteppersConfig `yaml:"steppers"`
}

// ButtonsConfig holds raw key codes.
type ButtonsConfig struct {
	A        uint16 `yaml:"a"`         // autofocus
	B        uint16 `yaml:"b"`         // reserved
	C        uint16 `yaml:"c"`         // capture
	D        uint16 `yaml:"d"`         // reserved
	TopLeft  uint16 `yaml:"top_left"`  // z advance
	TopRight uint16 `yaml:"top_right"` // z retreat
}

// AxesConfig holds raw absolute axis codes.
type AxesConfig struct {
	X uint16 `yaml:"x"`
	Y uint16 `yaml:"y"`
}

// GamepadConfig describes the input device.
type GamepadConfig struct {
	Device  string        `yaml:"device"` // e.g. /dev/input/event5
	Buttons ButtonsConfig `yaml:"buttons"`
	Axes    AxesConfig    `yaml:"axes"`
}

// AxisConfig holds the fixed step size of one stage axis.
type AxisConfig struct {
	StepSize int `yaml:"step_size"`
}

// StageConfig holds the three stage axes.
type StageConfig struct {
	X AxisConfig `yaml:"x"`
	Y AxisConfig `yaml:"y"`
	Z AxisConfig `yaml:"z"`
}

// CameraConfig describes how to communicate with the camera.
// Type selects a concrete implementation.
type CameraConfig struct {
	Type             string   `yaml:"type"`               // nikon_d90_gpio | command
	FocusPin         int      `yaml:"focus_pin"`          // GPIO pin for FOCUS line
	ShutterPin       int      `yaml:"shutter_pin"`        // GPIO pin for SHUTTER line
	FocusDelayMs     int      `yaml:"focus_delay_ms"`     // autofocus delay (ms)
	ShutterDelayMs   int      `yaml:"shutter_delay_ms"`   // shutter hold time (ms)
	CaptureCommand   []string `yaml:"capture_command"`    // {name} is replaced by the timestamp
	AutofocusCommand []string `yaml:"autofocus_command"`  // optional
	CommandTimeoutMs int      `yaml:"command_timeout_ms"` // 0 = no timeout
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel    int  `yaml:"debug_level"`     // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO      bool `yaml:"mock_gpio"`       // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	SettleDelayMs int  `yaml:"settle_delay_ms"` // pause after the relay loop stops
}

// Config aggregates all application configuration.
type Config struct {
	Board    BoardConfig    `yaml:"board"`
	Gamepad  GamepadConfig  `yaml:"gamepad"`
	Stage    StageConfig    `yaml:"stage"`
	Camera   CameraConfig   `yaml:"camera"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Default returns the configuration used for every key a file omits.
func Default() *Config {
	return &Config{
		Board: BoardConfig{
			Type:     BoardSerial,
			Port:     "/dev/ttyUSB1",
			BaudRate: 9600,
		},
		Gamepad: GamepadConfig{
			Device: "/dev/input/event5",
			Buttons: ButtonsConfig{
				A:        relay.DefaultButtonA,
				B:        relay.DefaultButtonB,
				C:        relay.DefaultButtonC,
				D:        relay.DefaultButtonD,
				TopLeft:  relay.DefaultButtonTopLeft,
				TopRight: relay.DefaultButtonTopRight,
			},
			Axes: AxesConfig{X: relay.DefaultAxisX, Y: relay.DefaultAxisY},
		},
		Stage: StageConfig{
			X: AxisConfig{StepSize: 1},
			Y: AxisConfig{StepSize: 1},
			Z: AxisConfig{StepSize: 1},
		},
		Camera: CameraConfig{
			FocusDelayMs:   500,
			ShutterDelayMs: 200,
		},
		Defaults: DefaultsConfig{
			DebugLevel:    1,
			SettleDelayMs: 100,
		},
	}
}

// ValidateConfigPath accepts only .yaml files whose parent directory is
// named configs, with no parent references left after cleaning.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q escapes its directory", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules. Load calls it; callers that change a
// loaded config (CLI overrides) call it again.
func (c *Config) Validate() error {
	if err := c.validateBoard(); err != nil {
		return err
	}

	if c.Stage.X.StepSize <= 0 || c.Stage.Y.StepSize <= 0 || c.Stage.Z.StepSize <= 0 {
		return fmt.Errorf("stage step sizes must be > 0, got x=%d y=%d z=%d",
			c.Stage.X.StepSize, c.Stage.Y.StepSize, c.Stage.Z.StepSize)
	}

	if c.Gamepad.Device == "" {
		return fmt.Errorf("gamepad.device is required")
	}
	if _, err := c.Bindings(); err != nil {
		return fmt.Errorf("gamepad: %w", err)
	}

	switch c.Camera.Type {
	case "":
		return fmt.Errorf("camera.type is required")
	case CameraNikonD90GPIO:
	case CameraCommand:
		if len(c.Camera.CaptureCommand) == 0 {
			return fmt.Errorf("camera.capture_command is required for type %q", CameraCommand)
		}
	default:
		return fmt.Errorf("unsupported camera type: %s", c.Camera.Type)
	}
	if c.Camera.FocusDelayMs < 0 || c.Camera.ShutterDelayMs < 0 || c.Camera.CommandTimeoutMs < 0 {
		return fmt.Errorf("camera delays must be >= 0")
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Defaults.SettleDelayMs < 0 {
		return fmt.Errorf("settle_delay_ms must be >= 0, got %d", c.Defaults.SettleDelayMs)
	}
	return nil
}

func (c *Config) validateBoard() error {
	b := c.Board
	if b.AckTimeoutMs < 0 {
		return fmt.Errorf("board.ack_timeout_ms must be >= 0, got %d", b.AckTimeoutMs)
	}

	switch b.Type {
	case BoardSerial:
		if b.Port == "" {
			return fmt.Errorf("board.port is required for type %q", BoardSerial)
		}
		if !validBaudRate(b.BaudRate) {
			return fmt.Errorf("board.baud_rate %d is not one of %v", b.BaudRate, board.ValidBaudRates)
		}
	case BoardLoopback:
	case BoardGPIO:
		axes := []struct {
			name string
			cfg  *StepperConfig
		}{{"x", b.Steppers.X}, {"y", b.Steppers.Y}, {"z", b.Steppers.Z}}
		for _, a := range axes {
			if a.cfg == nil {
				return fmt.Errorf("board.steppers.%s is required for type %q", a.name, BoardGPIO)
			}
			if a.cfg.StepPin <= 0 || a.cfg.DirPin <= 0 {
				return fmt.Errorf("board.steppers.%s: step_pin and dir_pin must be > 0", a.name)
			}
			if a.cfg.StepDelayUs < 0 {
				return fmt.Errorf("board.steppers.%s: step_delay_us must be >= 0", a.name)
			}
		}
	default:
		return fmt.Errorf("unsupported board type: %s", b.Type)
	}
	return nil
}

func validBaudRate(rate int) bool {
	for _, r := range board.ValidBaudRates {
		if r == rate {
			return true
		}
	}
	return false
}

// Bindings builds the relay dispatch table from the gamepad codes.
func (c *Config) Bindings() (relay.Bindings, error) {
	btn := c.Gamepad.Buttons
	return relay.NewBindings(
		relay.ButtonCodes{
			A: btn.A, B: btn.B, C: btn.C, D: btn.D,
			TopLeft: btn.TopLeft, TopRight: btn.TopRight,
		},
		relay.AxisCodes{X: c.Gamepad.Axes.X, Y: c.Gamepad.Axes.Y},
	)
}

// Claim identifies the board for the relay supervisor.
func (c *Config) Claim() string {
	if c.Board.Type == BoardSerial {
		return c.Board.Port
	}
	return c.Board.Type
}

// AckTimeout returns the ack deadline; zero means none.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.Board.AckTimeoutMs) * time.Millisecond
}

// SettleDelay returns the pause after the relay loop stops.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Defaults.SettleDelayMs) * time.Millisecond
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Camera.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Camera.ShutterDelayMs) * time.Millisecond
}

// CommandTimeout returns the limit for one camera command.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Camera.CommandTimeoutMs) * time.Millisecond
}
