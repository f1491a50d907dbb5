package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/joystage/internal/logic/stage"
)

// Event kinds sent over SSE.
const (
	KindLog    = "log"
	KindStatus = "status"
)

// StatusEvent is one SSE message: either a log line or a relay status
// update carrying the stage position.
type StatusEvent struct {
	Time    string          `json:"t"`
	Kind    string          `json:"k"`
	Level   string          `json:"l,omitempty"`
	Msg     string          `json:"msg,omitempty"`
	Running *bool           `json:"running,omitempty"`
	Stage   *stage.Snapshot `json:"stage,omitempty"`
}

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Broadcast sends a log line to all subscribed clients.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Kind: KindLog, Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastStatus tells clients whether the relay runs and where the stage is.
func (b *StatusBroadcaster) BroadcastStatus(running bool, snap stage.Snapshot) {
	b.send(StatusEvent{Kind: KindStatus, Running: &running, Stage: &snap})
}

// send marshals evt and offers it to every client. Slow clients may miss
// messages (non-blocking, buffered).
func (b *StatusBroadcaster) send(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastWriter implements io.Writer; each non-blank line of a Write is
// broadcast to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if msg := strings.TrimSpace(line); msg != "" {
			w.b.BroadcastMsg(msg)
		}
	}
	return len(p), nil
}
