package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sweeney/hud-worker/internal/logic"
	"github.com/sweeney/hud-worker/internal/mqtt"
	"github.com/sweeney/hud-worker/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollMs:    200,
		Margin:    0.05,
		MonitorMs: 2000,
		Broker:    "tcp://192.168.1.200:1883",
		HTTPPort:  ":8080",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := status.NewTracker(start, cfg)
	hub := NewHub(logger, HubConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := New(":0", tr, hub, logger)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return ts, srv, tr
}

func getStatus(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, _, tr := newTestServer(t)
	tr.Update(status.Levels{Volume: 0.5, VolumeOK: true, Brightness: 1, BrightnessOK: true, Strategy: "primary", Displays: 1},
		logic.EventCounts{Volume: 5, Brightness: 2})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Volume == nil || sj.Status.Volume.Value != 0.5 {
		t.Errorf("Volume: got %+v", sj.Status.Volume)
	}
	if sj.Status.Brightness == nil || sj.Status.Brightness.Strategy != "primary" {
		t.Errorf("Brightness: got %+v", sj.Status.Brightness)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Volume != 5 || sj.Status.Counts.Brightness != 2 {
		t.Errorf("Counts: got %+v", sj.Status.Counts)
	}
	if sj.Status.Config.PollMs != 200 {
		t.Errorf("Config.PollMs: got %d, want 200", sj.Status.Config.PollMs)
	}
}

func TestJSONBeforeFirstRead(t *testing.T) {
	ts, _, _ := newTestServer(t)

	sj := getStatus(t, ts.URL)
	if sj.Status.Volume != nil || sj.Status.Brightness != nil {
		t.Errorf("expected null levels before first read, got %+v / %+v", sj.Status.Volume, sj.Status.Brightness)
	}
	if sj.Status.OSD.State != "enabled" {
		t.Errorf("OSD.State: got %q, want enabled", sj.Status.OSD.State)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, _, tr := newTestServer(t)
	tr.Update(status.Levels{Volume: 0.25, VolumeOK: true, Muted: true}, logic.EventCounts{})
	tr.SetOSD(status.OSDInfo{State: "disabled", Monitoring: true, Respawns: 7})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	for _, want := range []string{"0.25 (muted)", `class="disabled"`, "<td>7</td>"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, _, tr := newTestServer(t)

	if getStatus(t, ts.URL).Status.Volume != nil {
		t.Error("expected no volume initially")
	}

	tr.Update(status.Levels{Volume: 0.75, VolumeOK: true}, logic.EventCounts{Volume: 1})
	tr.SetMQTTConnected(true)

	sj := getStatus(t, ts.URL)
	if sj.Status.Volume == nil || sj.Status.Volume.Value != 0.75 {
		t.Errorf("Volume: got %+v, want 0.75", sj.Status.Volume)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}

func dialEvents(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial /events: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return env
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients: got %d, want %d", hub.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventsSendsStatusOnConnect(t *testing.T) {
	ts, _, tr := newTestServer(t)
	tr.SetOSD(status.OSDInfo{State: "disabled"})

	conn := dialEvents(t, ts)
	env := readFrame(t, conn)

	if env.Type != FrameStatus {
		t.Fatalf("first frame: got %q, want %q", env.Type, FrameStatus)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(env.Data, &sj); err != nil {
		t.Fatalf("decode status frame: %v", err)
	}
	if sj.Status.OSD.State != "disabled" {
		t.Errorf("OSD.State: got %q, want disabled", sj.Status.OSD.State)
	}
}

func TestEventsStreamsChanges(t *testing.T) {
	ts, srv, _ := newTestServer(t)

	a := dialEvents(t, ts)
	b := dialEvents(t, ts)
	readFrame(t, a)
	readFrame(t, b)
	waitForClients(t, srv.hub, 2)

	srv.PublishChange(logic.ChangeEvent{Show: true, Kind: logic.KindBrightness, Value: 1})

	for _, conn := range []*websocket.Conn{a, b} {
		env := readFrame(t, conn)
		if env.Type != FrameChange {
			t.Fatalf("frame type: got %q, want %q", env.Type, FrameChange)
		}
		var p mqtt.Payload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("decode change: %v", err)
		}
		if p.Type != "brightness" || p.Value != "1.0" || !p.Show {
			t.Errorf("payload: got %+v", p)
		}
	}
}

func TestEventsClientDisconnectUnregisters(t *testing.T) {
	ts, srv, _ := newTestServer(t)

	conn := dialEvents(t, ts)
	readFrame(t, conn)
	waitForClients(t, srv.hub, 1)

	conn.Close()
	waitForClients(t, srv.hub, 0)
}

func TestEventsRefusedAfterHubStops(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{})
	hub := NewHub(logger, HubConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	srv := New(":0", tr, hub, logger)
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	// More late clients than the hub has ever queued.
	for i := 0; i < 70; i++ {
		conn := dialEvents(t, ts)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		var ne net.Error
		if err == nil || (errors.As(err, &ne) && ne.Timeout()) {
			t.Fatalf("client %d: connection left open after hub stopped (err=%v)", i, err)
		}
		conn.Close()
	}
	if n := hub.Clients(); n != 0 {
		t.Errorf("clients: got %d, want 0", n)
	}
}

func TestBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), HubConfig{BroadcastBuf: 1})

	done := make(chan struct{})
	go func() {
		// Hub not running: the queue fills after one frame.
		for i := 0; i < 10; i++ {
			hub.BroadcastBytes([]byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastBytes blocked on a full queue")
	}
}

func TestPublishChangeDropsUnformattable(t *testing.T) {
	_, srv, _ := newTestServer(t)
	// NaN cannot be encoded; must not panic or enqueue.
	srv.PublishChange(logic.ChangeEvent{Kind: logic.KindVolume, Value: math.NaN()})
	if n := len(srv.hub.broadcast); n != 0 {
		t.Errorf("broadcast queue: got %d, want 0", n)
	}
}

