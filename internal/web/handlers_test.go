package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/joystage/internal/hw/bluetooth"
	"github.com/cjeanneret/joystage/internal/logic/stage"
)

// fakeRelay records calls; Stop blocks until release is closed when set.
type fakeRelay struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	startErr error
	lastErr  error
	release  chan struct{}
}

func (f *fakeRelay) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.running = true
	return nil
}

func (f *fakeRelay) Stop() error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeRelay) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRelay) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

type fakeScanner struct {
	devices []bluetooth.Device
	err     error
}

func (f *fakeScanner) Scan(ctx context.Context) ([]bluetooth.Device, error) {
	return f.devices, f.err
}

// ---------- Handler helpers ----------

func newTestHandlers(rl Relay, scanner DeviceScanner) (*Handlers, *stage.Stage) {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
		"style.css":  &fstest.MapFile{Data: []byte("body{}")},
	}
	st := stage.New(5, 5, 1)
	h := NewHandlers(NewStatusBroadcaster(), rl, st, scanner, staticFS)
	h.StopWait = 200 * time.Millisecond
	return h, st
}

// ---------- HandleStart ----------

func TestHandleStart(t *testing.T) {
	rl := &fakeRelay{}
	h, _ := newTestHandlers(rl, nil)
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w := httptest.NewRecorder()
	h.HandleStart(w, httptest.NewRequest(http.MethodPost, "/relay/start", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "running" {
		t.Errorf("response status = %q, want \"running\"", resp["status"])
	}
	if evt := receive(t, ch); evt.Kind != KindStatus || evt.Running == nil || !*evt.Running {
		t.Errorf("status event = %+v", evt)
	}
}

func TestHandleStart_Error(t *testing.T) {
	rl := &fakeRelay{startErr: errors.New("open /dev/ttyUSB1: no such file")}
	h, _ := newTestHandlers(rl, nil)

	w := httptest.NewRecorder()
	h.HandleStart(w, httptest.NewRequest(http.MethodPost, "/relay/start", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(w.Body.String(), "ttyUSB1") {
		t.Errorf("body = %q, want the cause", w.Body.String())
	}
}

func TestHandleStart_NilRelay(t *testing.T) {
	h, _ := newTestHandlers(nil, nil)

	w := httptest.NewRecorder()
	h.HandleStart(w, httptest.NewRequest(http.MethodPost, "/relay/start", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ---------- HandleStop ----------

func TestHandleStop(t *testing.T) {
	rl := &fakeRelay{running: true}
	h, _ := newTestHandlers(rl, nil)

	w := httptest.NewRecorder()
	h.HandleStop(w, httptest.NewRequest(http.MethodPost, "/relay/stop", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"stopped"`) {
		t.Errorf("body = %q", w.Body.String())
	}
	if rl.Running() {
		t.Error("relay still running")
	}
}

func TestHandleStop_SlowStopAccepted(t *testing.T) {
	rl := &fakeRelay{running: true, release: make(chan struct{})}
	h, _ := newTestHandlers(rl, nil)

	w1 := httptest.NewRecorder()
	h.HandleStop(w1, httptest.NewRequest(http.MethodPost, "/relay/stop", nil))
	if w1.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w1.Code, http.StatusAccepted)
	}

	// A second request joins the pending stop instead of starting another.
	w2 := httptest.NewRecorder()
	h.HandleStop(w2, httptest.NewRequest(http.MethodPost, "/relay/stop", nil))
	if w2.Code != http.StatusAccepted {
		t.Fatalf("second status = %d, want %d", w2.Code, http.StatusAccepted)
	}

	close(rl.release)
	deadline := time.Now().Add(time.Second)
	for rl.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	rl.mu.Lock()
	stops := rl.stops
	rl.mu.Unlock()
	if stops != 1 {
		t.Errorf("stops = %d, want 1", stops)
	}
}

// ---------- HandleStage ----------

func TestHandleStage(t *testing.T) {
	rl := &fakeRelay{running: true, lastErr: errors.New("ack timeout")}
	h, st := newTestHandlers(rl, nil)
	st.X.Apply(-1)
	st.Z.Apply(+1)

	w := httptest.NewRecorder()
	h.HandleStage(w, httptest.NewRequest(http.MethodGet, "/stage", nil))

	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["running"] != true {
		t.Errorf("running = %v, want true", got["running"])
	}
	if got["x"] != float64(-5) || got["y"] != float64(0) || got["z"] != float64(1) {
		t.Errorf("positions = %v", got)
	}
	if got["error"] != "ack timeout" {
		t.Errorf("error = %v", got["error"])
	}
}

// ---------- HandleDevices / HandleConnect ----------

func TestHandleDevices(t *testing.T) {
	scanner := &fakeScanner{devices: []bluetooth.Device{{Address: "00:1A:7D:DA:71:13", Name: "Wireless Controller"}}}
	h, _ := newTestHandlers(&fakeRelay{}, scanner)

	w := httptest.NewRecorder()
	h.HandleDevices(w, httptest.NewRequest(http.MethodGet, "/devices", nil))

	var got []bluetooth.Device
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Wireless Controller" {
		t.Errorf("devices = %+v", got)
	}
}

func TestHandleDevices_ScanError(t *testing.T) {
	h, _ := newTestHandlers(&fakeRelay{}, &fakeScanner{err: errors.New("boom")})

	w := httptest.NewRecorder()
	h.HandleDevices(w, httptest.NewRequest(http.MethodGet, "/devices", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestHandleConnect(t *testing.T) {
	h, _ := newTestHandlers(&fakeRelay{}, nil)
	mux := (&Server{handlers: h}).Mux()

	cases := []struct {
		path string
		code int
		body string
	}{
		{"/connect/00:1A:7D:DA:71:13", http.StatusOK, "Connecting to 00:1A:7D:DA:71:13..."},
		{"/connect/not-a-mac", http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.code {
			t.Errorf("%s: status = %d, want %d", tc.path, w.Code, tc.code)
		}
		if tc.body != "" && w.Body.String() != tc.body {
			t.Errorf("%s: body = %q, want %q", tc.path, w.Body.String(), tc.body)
		}
	}
}

// ---------- Routing ----------

func TestMux_Routes(t *testing.T) {
	h, _ := newTestHandlers(&fakeRelay{}, nil)
	mux := (&Server{handlers: h}).Mux()

	cases := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/stage", http.StatusOK},
		{http.MethodGet, "/devices", http.StatusOK},
		{http.MethodPost, "/relay/start", http.StatusOK},
		{http.MethodGet, "/relay/start", http.StatusMethodNotAllowed},
		{http.MethodGet, "/static/style.css", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.code {
			t.Errorf("%s %s: status = %d, want %d", tc.method, tc.path, w.Code, tc.code)
		}
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h, _ := newTestHandlers(&fakeRelay{}, nil)
	w := httptest.NewRecorder()

	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

func TestEmbeddedIndex(t *testing.T) {
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		t.Fatalf("embedded index missing: %v", err)
	}
	if !strings.Contains(string(data), "/relay/start") {
		t.Error("index should drive /relay/start")
	}
}

// ---------- HandleStatusStream ----------

func TestHandleStatusStream(t *testing.T) {
	h, _ := newTestHandlers(&fakeRelay{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/status/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.HandleStatusStream(w, req)
		close(done)
	}()

	// Wait for the subscription, then publish.
	deadline := time.Now().Add(time.Second)
	for {
		h.Broadcaster.mu.RLock()
		n := len(h.Broadcaster.clients)
		h.Broadcaster.mu.RUnlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	h.Broadcaster.BroadcastMsg("stream test")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, ": connected") || !strings.Contains(body, "stream test") {
		t.Errorf("body = %q", body)
	}
}
