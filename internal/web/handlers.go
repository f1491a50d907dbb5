package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"log"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/cjeanneret/joystage/internal/hw/bluetooth"
	"github.com/cjeanneret/joystage/internal/logic/stage"
)

// DefaultStopWait is how long POST /relay/stop waits before answering 202.
const DefaultStopWait = 2 * time.Second

// Relay is the control loop the page starts and stops.
// *relay.Supervisor implements it.
type Relay interface {
	Start() error
	Stop() error
	Running() bool
	LastError() error
}

// StageReader exposes the current stage position.
type StageReader interface {
	Snapshot() stage.Snapshot
}

// DeviceScanner lists nearby Bluetooth devices.
type DeviceScanner interface {
	Scan(ctx context.Context) ([]bluetooth.Device, error)
}

// StageStatus is the body of GET /stage.
type StageStatus struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
	stage.Snapshot
}

var macAddress = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Relay       Relay
	Stage       StageReader
	Scanner     DeviceScanner
	StopWait    time.Duration

	stoppingMu sync.Mutex
	stopping   chan struct{}
	staticFS   fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If rl is nil, the relay endpoints return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, rl Relay, st StageReader, scanner DeviceScanner, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Relay:       rl,
		Stage:       st,
		Scanner:     scanner,
		StopWait:    DefaultStopWait,
		staticFS:    staticFS,
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStart handles POST /relay/start. Starting a running relay is a no-op.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if h.Relay == nil {
		http.Error(w, "relay not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.Relay.Start(); err != nil {
		log.Printf("relay start failed: %v", err)
		h.Broadcaster.Broadcast("error", "Relay start failed: "+err.Error())
		http.Error(w, "relay start failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.broadcastStatus()
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// HandleStop handles POST /relay/stop. The loop only exits after its next
// input event, so the handler waits at most StopWait and then answers
// 202 while the stop completes in the background.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if h.Relay == nil {
		http.Error(w, "relay not configured", http.StatusServiceUnavailable)
		return
	}

	h.stoppingMu.Lock()
	done := h.stopping
	if done == nil {
		done = make(chan struct{})
		h.stopping = done
		go func() {
			if err := h.Relay.Stop(); err != nil {
				log.Printf("relay stop failed: %v", err)
			}
			h.stoppingMu.Lock()
			h.stopping = nil
			h.stoppingMu.Unlock()
			close(done)
			h.broadcastStatus()
		}()
	}
	h.stoppingMu.Unlock()

	select {
	case <-done:
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	case <-time.After(h.StopWait):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
	case <-r.Context().Done():
	}
}

// HandleStage handles GET /stage.
func (h *Handlers) HandleStage(w http.ResponseWriter, r *http.Request) {
	var st StageStatus
	if h.Relay != nil {
		st.Running = h.Relay.Running()
		if err := h.Relay.LastError(); err != nil {
			st.Error = err.Error()
		}
	}
	if h.Stage != nil {
		st.Snapshot = h.Stage.Snapshot()
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleDevices handles GET /devices with a Bluetooth scan.
func (h *Handlers) HandleDevices(w http.ResponseWriter, r *http.Request) {
	if h.Scanner == nil {
		writeJSON(w, http.StatusOK, []bluetooth.Device{})
		return
	}
	devices, err := h.Scanner.Scan(r.Context())
	if err != nil {
		log.Printf("bluetooth scan failed: %v", err)
		http.Error(w, "bluetooth scan failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// HandleConnect handles GET /connect/{address}. Pairing itself is left to
// the system tools; the page only gets an acknowledgement.
func (h *Handlers) HandleConnect(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !macAddress.MatchString(address) {
		http.Error(w, "invalid device address", http.StatusBadRequest)
		return
	}
	h.Broadcaster.BroadcastMsg("Connecting to " + address)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Connecting to " + address + "..."))
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handlers) broadcastStatus() {
	var snap stage.Snapshot
	if h.Stage != nil {
		snap = h.Stage.Snapshot()
	}
	h.Broadcaster.BroadcastStatus(h.Relay.Running(), snap)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
