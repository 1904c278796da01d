package web

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-framestream/pkg/camera"
	"github.com/teslashibe/go-framestream/pkg/capture"
	"github.com/teslashibe/go-framestream/pkg/protocol"
	"github.com/teslashibe/go-framestream/pkg/stream"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// mockSession implements Session for testing.
type mockSession struct {
	StartFunc func(ctx context.Context) error

	mu       sync.Mutex
	snap     stream.Snapshot
	stops    int
	boxes    []bool
	starting int
}

func (m *mockSession) Start(ctx context.Context) error {
	m.mu.Lock()
	m.starting++
	m.mu.Unlock()
	if m.StartFunc != nil {
		if err := m.StartFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.snap.Running = true
	m.snap.State = stream.StateReady
	m.mu.Unlock()
	return nil
}

func (m *mockSession) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.snap.Running = false
	m.snap.State = stream.StateIdle
}

func (m *mockSession) SetShowBoxes(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boxes = append(m.boxes, on)
	m.snap.ShowBoxes = on
}

func (m *mockSession) Snapshot() stream.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func newTestServer(sess Session) *Server {
	s := NewServer(Config{Host: "127.0.0.1"}, camera.NewManager(camera.DefaultConfig()), quiet)
	if sess != nil {
		s.SetSession(sess)
	}
	return s
}

func decode(t *testing.T, body io.Reader, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&mockSession{snap: stream.Snapshot{Connected: true}})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("Test request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]interface{}
	decode(t, resp.Body, &body)
	if body["status"] != "ok" || body["connected"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestSessionRoutesWithoutSession(t *testing.T) {
	s := newTestServer(nil)
	for _, route := range []struct{ method, path string }{
		{"GET", "/api/session"},
		{"POST", "/api/session/start"},
		{"POST", "/api/session/stop"},
		{"GET", "/api/detections"},
	} {
		resp, err := s.App().Test(httptest.NewRequest(route.method, route.path, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != 503 {
			t.Errorf("%s %s = %d, want 503", route.method, route.path, resp.StatusCode)
		}
	}
}

func TestStartAndStop(t *testing.T) {
	sess := &mockSession{}
	s := newTestServer(sess)

	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/session/start", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	var snap stream.Snapshot
	decode(t, resp.Body, &snap)
	if !snap.Running {
		t.Error("snapshot after start not running")
	}

	resp, err = s.App().Test(httptest.NewRequest("POST", "/api/session/stop", nil))
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp.Body, &snap)
	if snap.Running || sess.stops != 1 {
		t.Errorf("after stop: running=%v stops=%d", snap.Running, sess.stops)
	}
}

func TestStartErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"already running", stream.ErrAlreadyRunning, 409, "already running"},
		{"insecure", stream.ErrInsecureContext, 403, "secure"},
		{"disconnected", stream.ErrChannelDisconnected, 503, "Not connected"},
		{"denied", &capture.UnavailableError{Attempts: []*capture.AttemptError{{Err: capture.ErrPermissionDenied}}}, 403, "denied"},
		{"no camera", &capture.UnavailableError{Attempts: []*capture.AttemptError{{Err: capture.ErrNotFound}}}, 503, "No camera"},
		{"other", errors.New("boom"), 500, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&mockSession{StartFunc: func(context.Context) error { return tt.err }})
			resp, err := s.App().Test(httptest.NewRequest("POST", "/api/session/start", nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.code {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.code)
			}
			var body map[string]interface{}
			decode(t, resp.Body, &body)
			if msg, _ := body["error"].(string); !strings.Contains(msg, tt.msg) {
				t.Errorf("error = %q, want mention of %q", msg, tt.msg)
			}
		})
	}
}

func TestBoxes(t *testing.T) {
	sess := &mockSession{}
	s := newTestServer(sess)

	req := httptest.NewRequest("POST", "/api/session/boxes", strings.NewReader(`{"show":false}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(sess.boxes) != 1 || sess.boxes[0] {
		t.Errorf("SetShowBoxes calls = %v", sess.boxes)
	}
}

func TestDetections(t *testing.T) {
	dets := []protocol.Detection{{Label: "person", Confidence: 90}, {Label: "person", Confidence: 70}}
	s := newTestServer(&mockSession{snap: stream.Snapshot{Detections: dets, Summary: stream.Summarize(dets)}})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/detections", nil))
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Detections []protocol.Detection  `json:"detections"`
		Summary    []stream.LabelSummary `json:"summary"`
	}
	decode(t, resp.Body, &body)
	if len(body.Detections) != 2 || len(body.Summary) != 1 || body.Summary[0].Count != 2 {
		t.Errorf("body = %+v", body)
	}
}

func TestCameraConfig(t *testing.T) {
	s := newTestServer(nil)

	req := httptest.NewRequest("PUT", "/api/camera", strings.NewReader(`{"preset":"low"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}
	if got := s.camera.GetConfig(); got.Width != 320 || got.Height != 240 {
		t.Errorf("camera config = %+v, want low preset", got)
	}

	req = httptest.NewRequest("PUT", "/api/camera", strings.NewReader(`{"quality":500}`))
	resp, err = s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("invalid PUT status = %d, want 400", resp.StatusCode)
	}

	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/camera/presets", nil))
	if err != nil {
		t.Fatal(err)
	}
	var presets map[string]camera.Config
	decode(t, resp.Body, &presets)
	if _, ok := presets["720p"]; !ok {
		t.Errorf("presets = %v", presets)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(nil)
	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "framestream_frames_sent_total") {
		t.Error("metrics output missing framestream collectors")
	}
}

func TestLogs(t *testing.T) {
	s := newTestServer(nil)
	s.AddStatus(stream.Status{Level: stream.LevelSuccess, Message: "Connected to server"})
	for i := 0; i < maxLogs+10; i++ {
		s.AddLog("info", "line")
	}
	logs := s.Logs()
	if len(logs) != maxLogs {
		t.Errorf("len(logs) = %d, want %d", len(logs), maxLogs)
	}
}

func TestWebSocketStreams(t *testing.T) {
	sess := &mockSession{snap: stream.Snapshot{State: stream.StateIdle, Endpoint: "ws://localhost:8000/ws"}}
	s := NewServer(Config{Host: "127.0.0.1", Port: 18200}, nil, quiet)
	s.SetSession(sess)
	s.AddLog("info", "hello")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)

	dial := func(path string) *websocket.Conn {
		ws, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18200"+path, nil)
		if err != nil {
			t.Fatalf("WebSocket dial %s: %v", path, err)
		}
		t.Cleanup(func() { ws.Close() })
		return ws
	}
	read := func(ws *websocket.Conn) (int, []byte) {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		typ, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
		return typ, data
	}

	// Status starts with the current snapshot.
	status := dial("/ws/status")
	_, data := read(status)
	var snap stream.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Endpoint != "ws://localhost:8000/ws" {
		t.Fatalf("initial snapshot = %s (%v)", data, err)
	}

	// Logs replay history.
	logs := dial("/ws/logs")
	_, data = read(logs)
	if !strings.Contains(string(data), "hello") {
		t.Errorf("first log = %s", data)
	}

	surf := dial("/ws/surface")
	time.Sleep(50 * time.Millisecond)

	s.PublishSnapshot(stream.Snapshot{State: stream.StateAwaiting})
	_, data = read(status)
	if !strings.Contains(string(data), `"state":"awaiting"`) {
		t.Errorf("broadcast snapshot = %s", data)
	}

	if err := s.Surface().Draw(image.NewRGBA(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatal(err)
	}
	typ, data := read(surf)
	if typ != websocket.BinaryMessage || len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("surface frame type=%d len=%d, want binary JPEG", typ, len(data))
	}

	s.Surface().Clear()
	if _, data = read(surf); len(data) != 0 {
		t.Errorf("clear message len = %d, want 0", len(data))
	}
	if s.Surface().Last() != nil {
		t.Error("Last() after Clear should be nil")
	}
}
