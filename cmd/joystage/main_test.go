package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/cjeanneret/joystage/internal/config"
	"github.com/cjeanneret/joystage/internal/hw/board"
	"github.com/cjeanneret/joystage/internal/hw/camera"
	"github.com/cjeanneret/joystage/internal/hw/gamepad"
	"github.com/cjeanneret/joystage/internal/hw/gpio"
	"github.com/cjeanneret/joystage/internal/logic/capture"
	"github.com/cjeanneret/joystage/internal/logic/relay"
	"github.com/cjeanneret/joystage/internal/logic/stage"
)

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
		{"3000", 3000},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	cases := []string{"0", "65536", "-1", "abc", "8080.5"}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- optionalIntFlag / cliOverrides ----------

func TestOptionalIntFlag(t *testing.T) {
	f := &optionalIntFlag{}
	if f.String() != "" || f.set {
		t.Fatalf("unset flag = %+v", f)
	}
	if err := f.Set("0"); err != nil {
		t.Fatalf("Set(0): %v", err)
	}
	if !f.set || f.val != 0 || f.String() != "0" {
		t.Errorf("flag = %+v", f)
	}
	for _, bad := range []string{"-1", "abc", "1.5"} {
		if err := (&optionalIntFlag{}).Set(bad); err == nil {
			t.Errorf("Set(%q) should fail", bad)
		}
	}
}

func TestCLIOverrides(t *testing.T) {
	o := cliOverrides("", "", &optionalIntFlag{})
	if o.SerialPort != "" || o.InputDevice != "" || o.AckTimeoutMs != nil {
		t.Errorf("empty flags = %+v, want zero overrides", o)
	}

	o = cliOverrides("/dev/ttyUSB0", "/dev/input/event2", &optionalIntFlag{val: 0, set: true})
	if o.SerialPort != "/dev/ttyUSB0" || o.InputDevice != "/dev/input/event2" {
		t.Errorf("overrides = %+v", o)
	}
	if o.AckTimeoutMs == nil || *o.AckTimeoutMs != 0 {
		t.Errorf("AckTimeoutMs = %v, want explicit 0", o.AckTimeoutMs)
	}
}

func TestCLIOverrides_AppliedToConfig(t *testing.T) {
	cfg := newTestConfig()
	cfg.Board.AckTimeoutMs = 500

	if err := cfg.Apply(cliOverrides("/dev/ttyS3", "", &optionalIntFlag{val: 0, set: true})); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if cfg.Board.Port != "/dev/ttyS3" || cfg.Board.AckTimeoutMs != 0 {
		t.Errorf("board = %+v", cfg.Board)
	}
	if cfg.Claim() != "/dev/ttyS3" {
		t.Errorf("Claim() = %q, want overridden port", cfg.Claim())
	}
}

// ---------- newCameraFromConfig ----------

func newTestConfig() *config.Config {
	cfg := config.Default()
	cfg.Camera.Type = config.CameraNikonD90GPIO
	cfg.Camera.FocusPin = 24
	cfg.Camera.ShutterPin = 25
	return cfg
}

func TestNewCameraFromConfig(t *testing.T) {
	cfg := newTestConfig()
	cam, err := newCameraFromConfig(&gpio.MockDriver{}, cfg)
	if err != nil {
		t.Fatalf("nikon: %v", err)
	}
	if _, ok := cam.(*camera.NikonD90GPIO); !ok {
		t.Errorf("camera = %T, want *camera.NikonD90GPIO", cam)
	}

	cfg.Camera.Type = config.CameraCommand
	cfg.Camera.CaptureCommand = []string{"libcamera-still", "-o", "{name}.jpg"}
	cam, err = newCameraFromConfig(&gpio.MockDriver{}, cfg)
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if c, ok := cam.(*camera.Command); !ok || len(c.CaptureArgs) != 3 {
		t.Errorf("camera = %#v", cam)
	}

	cfg.Camera.Type = "polaroid"
	if _, err := newCameraFromConfig(&gpio.MockDriver{}, cfg); err == nil {
		t.Error("expected error for unknown camera type")
	}
}

// ---------- newLinkFromConfig ----------

func TestNewLinkFromConfig_Loopback(t *testing.T) {
	cfg := newTestConfig()
	cfg.Board.Type = config.BoardLoopback

	link, err := newLinkFromConfig(cfg, &gpio.MockDriver{})
	if err != nil {
		t.Fatalf("newLinkFromConfig: %v", err)
	}
	if err := link.Send(board.Frame{Axis: board.AxisX, Direction: board.Clockwise, Magnitude: 5}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := link.AwaitAck(); err != nil {
		t.Fatalf("AwaitAck: %v", err)
	}
}

func TestNewLinkFromConfig_Serial(t *testing.T) {
	orig := board.Open
	defer func() { board.Open = orig }()

	var gotPath string
	var gotBaud int
	lb := board.NewLoopback()
	board.Open = func(path string, baud int, readTimeout time.Duration) (io.ReadWriteCloser, error) {
		gotPath, gotBaud = path, baud
		return lb, nil
	}

	cfg := newTestConfig()
	cfg.Board.Port = "/dev/ttyUSB7"
	cfg.Board.BaudRate = 19200

	link, err := newLinkFromConfig(cfg, &gpio.MockDriver{})
	if err != nil {
		t.Fatalf("newLinkFromConfig: %v", err)
	}
	if gotPath != "/dev/ttyUSB7" || gotBaud != 19200 {
		t.Errorf("opened %s at %d", gotPath, gotBaud)
	}
	if err := link.Send(board.Frame{Axis: board.AxisZ, Direction: board.CounterClockwise, Magnitude: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if w := lb.Writes(); len(w) != 1 || w[0] != "zcclk,1" {
		t.Errorf("writes = %v", w)
	}
}

func TestNewLinkFromConfig_SerialOpenError(t *testing.T) {
	orig := board.Open
	defer func() { board.Open = orig }()
	board.Open = func(string, int, time.Duration) (io.ReadWriteCloser, error) {
		return nil, errors.New("permission denied")
	}

	link, err := newLinkFromConfig(newTestConfig(), &gpio.MockDriver{})
	if err == nil {
		t.Fatal("expected error")
	}
	if link != nil {
		t.Errorf("link = %#v, want nil interface", link)
	}
}

func TestNewLinkFromConfig_GPIO(t *testing.T) {
	cfg := newTestConfig()
	cfg.Board.Type = config.BoardGPIO
	cfg.Board.Steppers = config.SteppersConfig{
		X: &config.StepperConfig{StepPin: 17, DirPin: 27, StepDelayUs: 1},
		Y: &config.StepperConfig{StepPin: 22, DirPin: 23, StepDelayUs: 1},
		Z: &config.StepperConfig{StepPin: 12, DirPin: 13, StepDelayUs: 1},
	}

	link, err := newLinkFromConfig(cfg, &gpio.MockDriver{})
	if err != nil {
		t.Fatalf("newLinkFromConfig: %v", err)
	}
	if err := link.Send(board.Frame{Axis: board.AxisY, Direction: board.Clockwise, Magnitude: 2}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := link.AwaitAck(); err != nil {
		t.Fatalf("AwaitAck: %v", err)
	}

	cfg.Board.Steppers.Z = nil
	if _, err := newLinkFromConfig(cfg, &gpio.MockDriver{}); err == nil {
		t.Error("expected error with a missing stepper")
	}
}

func TestNewOpener_InputDeviceError(t *testing.T) {
	cfg := newTestConfig()
	cfg.Board.Type = config.BoardLoopback
	cfg.Gamepad.Device = "/nonexistent/input/event99"

	if _, err := newOpener(cfg, &gpio.MockDriver{})(); err == nil {
		t.Error("expected error for missing input device")
	}
}

// ---------- shutdown / waitHeadless ----------

type nopCamera struct{}

func (nopCamera) Autofocus() error { return nil }
func (nopCamera) Capture(string) error { return nil }

func newFeedSupervisor(t *testing.T) (*relay.Supervisor, *gamepad.Feed) {
	t.Helper()
	feed := gamepad.NewFeed()
	sup, err := relay.NewSupervisor(relay.Config{
		Claim: t.Name(),
		Open: func() (*relay.Resources, error) {
			return &relay.Resources{Source: feed, Link: board.NewChannel(board.NewLoopback(), 0)}, nil
		},
		Stage:       stage.New(1, 1, 1),
		Actions:     capture.NewActions(nopCamera{}),
		Bindings:    relay.DefaultBindings(),
		SettleDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	return sup, feed
}

func TestShutdown_BoundedWhenLoopBlocked(t *testing.T) {
	sup, feed := newFeedSupervisor(t)
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	shutdown(sup, 50*time.Millisecond)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took %v, want about 50ms", elapsed)
	}

	// Unblock the loop so the pending Close can finish.
	_ = feed.Close()
}

func TestShutdown_IdleSupervisor(t *testing.T) {
	sup, _ := newFeedSupervisor(t)
	shutdown(sup, time.Second)
	if err := sup.Start(); err == nil {
		t.Error("Start after shutdown should fail")
	}
}

func TestWaitHeadless_ReturnsWhenLoopEnds(t *testing.T) {
	sup, feed := newFeedSupervisor(t)
	defer sup.Close()
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = feed.Close() // device gone

	done := make(chan struct{})
	go func() {
		waitHeadless(context.Background(), sup, time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waitHeadless did not return after the loop ended")
	}
	if !errors.Is(sup.LastError(), io.EOF) {
		t.Errorf("LastError = %v, want io.EOF", sup.LastError())
	}
}

func TestWaitHeadless_ReturnsOnCancel(t *testing.T) {
	sup, feed := newFeedSupervisor(t)
	defer feed.Close()
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	waitHeadless(ctx, sup, time.Hour)
	if !sup.Running() {
		t.Error("cancel should not stop the loop by itself")
	}
}
