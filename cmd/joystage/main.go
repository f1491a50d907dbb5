package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/joystage/internal/config"
	"github.com/cjeanneret/joystage/internal/debug"
	"github.com/cjeanneret/joystage/internal/hw/bluetooth"
	"github.com/cjeanneret/joystage/internal/hw/board"
	"github.com/cjeanneret/joystage/internal/hw/camera"
	"github.com/cjeanneret/joystage/internal/hw/gamepad"
	"github.com/cjeanneret/joystage/internal/hw/gpio"
	"github.com/cjeanneret/joystage/internal/hw/stepper"
	"github.com/cjeanneret/joystage/internal/logic/capture"
	"github.com/cjeanneret/joystage/internal/logic/motion"
	"github.com/cjeanneret/joystage/internal/logic/relay"
	"github.com/cjeanneret/joystage/internal/logic/stage"
	"github.com/cjeanneret/joystage/internal/web"
)

// shutdownWait bounds how long main waits for the relay loop on exit. The
// loop only sees a stop request after its next input event.
const shutdownWait = 2 * time.Second

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	serialPort := flag.String("serial_port", "", "override board.port")
	inputDevice := flag.String("input_device", "", "override gamepad.device")
	ackTimeout := &optionalIntFlag{}
	flag.Var(ackTimeout, "ack_timeout_ms", "override board.ack_timeout_ms (0 = wait forever)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := cfg.Apply(cliOverrides(*serialPort, *inputDevice, ackTimeout)); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Board", fmt.Sprintf("%s %s", cfg.Board.Type, cfg.Board.Port))
	debug.Value("Input device", cfg.Gamepad.Device)
	debug.Value("Ack timeout", cfg.AckTimeout())

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize camera
	debug.Step(2, "Initializing camera")
	cam, err := newCameraFromConfig(gpioDriver, cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)

	// Build the relay
	debug.Step(3, "Creating relay supervisor")
	bindings, err := cfg.Bindings()
	if err != nil {
		log.Fatalf("gamepad bindings: %v", err)
	}
	debug.PrintStruct("Buttons", cfg.Gamepad.Buttons)
	debug.PrintStruct("Axes", cfg.Gamepad.Axes)

	st := stage.New(cfg.Stage.X.StepSize, cfg.Stage.Y.StepSize, cfg.Stage.Z.StepSize)
	debug.PrintStruct("Stage", cfg.Stage)

	sup, err := relay.NewSupervisor(relay.Config{
		Claim:       cfg.Claim(),
		Open:        newOpener(cfg, gpioDriver),
		Stage:       st,
		Actions:     capture.NewActions(cam),
		Bindings:    bindings,
		SettleDelay: cfg.SettleDelay(),
	})
	if err != nil {
		log.Fatalf("init relay failed: %v", err)
	}
	defer shutdown(sup, shutdownWait)

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv := web.NewServer(webAddr, broadcaster, sup, st, bluetooth.NewScanner())
		debug.Summary("Web control on " + webAddr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("web server: %v", err)
		}
		return
	}

	// Headless: relay until a signal arrives or the loop ends on its own.
	if err := sup.Start(); err != nil {
		log.Printf("start relay failed: %v", err)
		return
	}
	debug.Summary("Relaying " + cfg.Gamepad.Device + " to " + cfg.Claim())
	waitHeadless(ctx, sup, 500*time.Millisecond)
	if err := sup.LastError(); err != nil {
		log.Printf("relay ended: %v", err)
	}
}

// waitHeadless blocks until ctx is done or the relay stops running.
func waitHeadless(ctx context.Context, sup *relay.Supervisor, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sup.Running() {
				return
			}
		}
	}
}

// shutdown releases the relay, giving up after wait if the loop is still
// blocked on its input device.
func shutdown(sup *relay.Supervisor, wait time.Duration) {
	done := make(chan error, 1)
	go func() { done <- sup.Close() }()

	select {
	case err := <-done:
		if err != nil {
			log.Printf("closing relay failed: %v", err)
		}
	case <-time.After(wait):
		log.Printf("relay loop still waiting for input after %v, exiting anyway", wait)
	}
}

// newOpener returns the Open hook of the supervisor: a fresh link and a
// fresh input device for every start.
func newOpener(cfg *config.Config, g gpio.Driver) func() (*relay.Resources, error) {
	return func() (*relay.Resources, error) {
		link, err := newLinkFromConfig(cfg, g)
		if err != nil {
			return nil, err
		}
		src, err := gamepad.Open(cfg.Gamepad.Device)
		if err != nil {
			if c, ok := link.(io.Closer); ok {
				_ = c.Close()
			}
			return nil, err
		}
		return &relay.Resources{Source: src, Link: link}, nil
	}
}

// newLinkFromConfig selects the board backend based on configuration.
func newLinkFromConfig(cfg *config.Config, g gpio.Driver) (motion.Link, error) {
	switch cfg.Board.Type {
	case config.BoardSerial:
		ch, err := board.OpenPort(board.PortConfig{
			Path:       cfg.Board.Port,
			BaudRate:   cfg.Board.BaudRate,
			AckTimeout: cfg.AckTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return ch, nil
	case config.BoardLoopback:
		return board.NewChannel(board.NewLoopback(), cfg.AckTimeout()), nil
	case config.BoardGPIO:
		s := cfg.Board.Steppers
		if s.X == nil || s.Y == nil || s.Z == nil {
			return nil, fmt.Errorf("board.steppers needs x, y and z")
		}
		return stepper.NewLink(map[board.Axis]*stepper.Stepper{
			board.AxisX: newStepper(g, s.X),
			board.AxisY: newStepper(g, s.Y),
			board.AxisZ: newStepper(g, s.Z),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported board type: %s", cfg.Board.Type)
	}
}

func newStepper(g gpio.Driver, c *config.StepperConfig) *stepper.Stepper {
	debug.PrintStruct("Stepper config", *c)
	return stepper.NewStepper(g, stepper.Config{
		StepPin:   c.StepPin,
		DirPin:    c.DirPin,
		EnablePin: c.EnablePin,
		Invert:    c.Invert,
		StepDelay: c.StepDelay(),
	})
}

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(g gpio.Driver, cfg *config.Config) (camera.Camera, error) {
	switch cfg.Camera.Type {
	case config.CameraNikonD90GPIO:
		debug.Value("Focus pin", cfg.Camera.FocusPin)
		debug.Value("Shutter pin", cfg.Camera.ShutterPin)
		return camera.NewNikonD90GPIO(
			g,
			cfg.Camera.FocusPin,
			cfg.Camera.ShutterPin,
			cfg.FocusDelay(),
			cfg.ShutterDelay(),
		), nil
	case config.CameraCommand:
		debug.Value("Capture command", cfg.Camera.CaptureCommand)
		return camera.NewCommand(
			cfg.Camera.CaptureCommand,
			cfg.Camera.AutofocusCommand,
			cfg.CommandTimeout(),
		), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// cliOverrides collects the set override flags.
func cliOverrides(serialPort, inputDevice string, ackTimeout *optionalIntFlag) config.Overrides {
	o := config.Overrides{
		SerialPort:  serialPort,
		InputDevice: inputDevice,
	}
	if ackTimeout.set {
		v := ackTimeout.val
		o.AckTimeoutMs = &v
	}
	return o
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// optionalIntFlag is an int flag that remembers whether it was given, so
// an explicit 0 can override a non-zero config value.
type optionalIntFlag struct {
	val int
	set bool
}

func (f *optionalIntFlag) String() string {
	if !f.set {
		return ""
	}
	return strconv.Itoa(f.val)
}

func (f *optionalIntFlag) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("must be >= 0, got %d", v)
	}
	f.val, f.set = v, true
	return nil
}
