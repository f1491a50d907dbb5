package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/joystage/internal/hw/board"
)

// recordingLink records wire frames and answers every ack at once.
type recordingLink struct {
	mu      sync.Mutex
	frames  []string
	sendErr error
}

func (l *recordingLink) Send(f board.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return l.sendErr
	}
	l.frames = append(l.frames, f.String())
	return nil
}

func (l *recordingLink) AwaitAck() error { return nil }

func (l *recordingLink) sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.frames...)
}

// recordingActions records camera button presses.
type recordingActions struct {
	mu       sync.Mutex
	focuses  int
	captures []string
}

func (a *recordingActions) Autofocus() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.focuses++
}

func (a *recordingActions) Capture(ts string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.captures = append(a.captures, ts)
}

func (a *recordingActions) counts() (int, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.focuses, append([]string(nil), a.captures...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
