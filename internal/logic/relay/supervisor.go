package relay

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/cjeanneret/joystage/internal/debug"
	"github.com/cjeanneret/joystage/internal/hw/gamepad"
	"github.com/cjeanneret/joystage/internal/logic/motion"
	"github.com/cjeanneret/joystage/internal/logic/stage"
)

// ErrAlreadyClaimed is returned by NewSupervisor when another supervisor in
// this process already owns the same board.
var ErrAlreadyClaimed = errors.New("relay: board already claimed by another supervisor")

// ErrStopPending is returned by Start while a Stop is still waiting for the
// current loop to exit.
var ErrStopPending = errors.New("relay: stop pending, loop exits on next input event")

// DefaultSettleDelay is the pause after a loop exits before Stop returns.
const DefaultSettleDelay = 100 * time.Millisecond

var (
	claimsMu sync.Mutex
	claims   = make(map[string]struct{})
)

// Resources are the devices one loop run works with. They are opened by
// Start and closed when the loop ends.
type Resources struct {
	Source gamepad.Source
	Link   motion.Link
}

// Close closes the source and, if it can be closed, the link.
func (r *Resources) Close() error {
	var err error
	if r.Source != nil {
		err = multierr.Append(err, r.Source.Close())
	}
	if c, ok := r.Link.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// Config configures a Supervisor.
type Config struct {
	// Claim identifies the board (usually its port path). Only one
	// supervisor per claim may exist at a time.
	Claim string
	// Open opens a fresh source and link for each run.
	Open func() (*Resources, error)

	Stage       *stage.Stage
	Actions     Actions
	Bindings    Bindings
	SettleDelay time.Duration
}

// handle tracks one running loop goroutine. stopping is guarded by
// Supervisor.mu.
type handle struct {
	done     chan struct{}
	stopping bool
}

func (h *handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Supervisor starts and stops the control loop. Start and Stop are
// idempotent and safe to call from several goroutines.
type Supervisor struct {
	cfg  Config
	stop atomic.Bool

	mu      sync.Mutex
	handle  *handle
	lastErr error
	closed  bool
}

// NewSupervisor claims cfg.Claim and returns an idle supervisor.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if cfg.Open == nil {
		return nil, errors.New("relay: Open is required")
	}
	if cfg.Stage == nil {
		return nil, errors.New("relay: Stage is required")
	}
	if cfg.Actions == nil {
		return nil, errors.New("relay: Actions is required")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	claimsMu.Lock()
	defer claimsMu.Unlock()
	if _, taken := claims[cfg.Claim]; taken {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClaimed, cfg.Claim)
	}
	claims[cfg.Claim] = struct{}{}

	return &Supervisor{cfg: cfg}, nil
}

// Start launches the loop unless one is already running. A loop that
// ended on its own is discarded first. Open errors are returned as is.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("relay: supervisor closed")
	}
	if s.handle != nil && s.handle.finished() {
		s.handle = nil
	}
	if s.handle != nil && s.handle.stopping {
		return ErrStopPending
	}
	if s.handle != nil {
		debug.Verbose("Relay already running")
		return nil
	}

	s.stop.Store(false)
	res, err := s.cfg.Open()
	if err != nil {
		return fmt.Errorf("open devices: %w", err)
	}

	loop := NewLoop(motion.NewController(res.Link, s.cfg.Stage), s.cfg.Actions, s.cfg.Bindings, &s.stop)
	h := &handle{done: make(chan struct{})}
	s.handle = h
	s.lastErr = nil

	go s.run(h, loop, res)
	debug.Info("Relay started")
	return nil
}

func (s *Supervisor) run(h *handle, loop *Loop, res *Resources) {
	defer close(h.done)

	err := loop.Run(res.Source)
	if cerr := res.Close(); cerr != nil {
		debug.Verbose("Closing devices: %v", cerr)
	}
	if err != nil {
		debug.Error(fmt.Errorf("relay loop: %w", err))
	}

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Stop asks the loop to exit and waits for it. The loop only notices the
// request after its next event, so Stop blocks until one arrives.
// Calling Stop with no loop is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Supervisor) stopLocked() error {
	h := s.handle
	if h == nil {
		return nil
	}

	h.stopping = true
	s.stop.Store(true)
	s.mu.Unlock()
	<-h.done
	time.Sleep(s.cfg.SettleDelay)
	s.mu.Lock()

	if s.handle == h {
		s.handle = nil
	}
	debug.Info("Relay stopped")
	return nil
}

// Running reports whether a loop goroutine is alive and not being stopped.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil && !s.handle.stopping && !s.handle.finished()
}

// Stopping reports whether a Stop is waiting for the loop to exit.
func (s *Supervisor) Stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil && s.handle.stopping
}

// LastError returns the error that ended the most recent loop, or nil.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close stops the loop and releases the claim. The supervisor cannot be
// started again afterwards.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	// Set before stopLocked unlocks so a concurrent Start cannot spawn a
	// loop after the claim is released.
	s.closed = true
	err := s.stopLocked()

	claimsMu.Lock()
	delete(claims, s.cfg.Claim)
	claimsMu.Unlock()
	return err
}
