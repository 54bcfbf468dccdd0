package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/rmsqueue/go/internal/queue/channel"
	"github.com/mcdev12/rmsqueue/go/internal/queue/client"
	"github.com/mcdev12/rmsqueue/go/internal/queue/gateway"
	"github.com/mcdev12/rmsqueue/go/internal/queue/metrics"
	"github.com/mcdev12/rmsqueue/go/internal/queue/status"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

type harness struct {
	srv   *httptest.Server
	ch    *channel.MemoryChannel
	clock *clockwork.FakeClock
	qc    *client.Client
	ctx   context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ch := channel.NewMemoryChannel()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	m := metrics.NewPrometheusCollector()

	qc, err := client.New("user-me", 15*time.Minute, ch, client.WithClock(clock), client.WithMetrics(m))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	cfg := gateway.DefaultConfig()
	svc := gateway.NewService(cfg, qc, gateway.WithClock(clock), gateway.WithMetricsHandler(m.Handler()))

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(func() {
		cancel()
		srv.Close()
		qc.Close()
	})
	return &harness{srv: srv, ch: ch, clock: clock, qc: qc, ctx: ctx}
}

func (h *harness) post(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(h.srv.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

func (h *harness) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/queue"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) gateway.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f gateway.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func waitingSnapshot(waitSecs int64) []byte {
	return []byte(fmt.Sprintf(`{"queue":[
		{"user_id":"someone-else","time_left":{"secs":300},"wait_time":{"secs":0}},
		{"user_id":"user-me","time_left":{"secs":900},"wait_time":{"secs":%d}}
	]}`, waitSecs))
}

// ─── REST ─────────────────────────────────────────────────────────────────────

func TestJoinAndLeave(t *testing.T) {
	h := newHarness(t)

	code, body := h.post(t, "/api/queue/join")
	if code != http.StatusAccepted {
		t.Fatalf("join status = %d, body %v", code, body)
	}
	if body["enqueued"] != true {
		t.Errorf("enqueued = %v, want true", body["enqueued"])
	}

	reqs := h.ch.Requests()
	if len(reqs) != 1 || !reqs[0].Enqueue || reqs[0].StudyTime != 900 {
		t.Fatalf("unexpected requests %+v", reqs)
	}

	code, body = h.post(t, "/api/queue/join")
	if code != http.StatusConflict {
		t.Fatalf("second join status = %d, want 409 (body %v)", code, body)
	}
	if len(h.ch.Requests()) != 1 {
		t.Error("duplicate join must not reach the queue manager")
	}

	code, body = h.post(t, "/api/queue/leave")
	if code != http.StatusAccepted {
		t.Fatalf("leave status = %d, body %v", code, body)
	}
	if body["enqueued"] != false {
		t.Errorf("enqueued after leave = %v", body["enqueued"])
	}
}

func TestJoin_TransportFailureIsBadGateway(t *testing.T) {
	h := newHarness(t)
	h.ch.FailRequests(errors.New("bus unreachable"))

	code, body := h.post(t, "/api/queue/join")
	if code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", code)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "bus unreachable") {
		t.Errorf("error = %q", msg)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)

	code, body := h.get(t, "/api/queue/status")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	st := body["status"].(map[string]any)
	if st["state"] != string(status.NotQueued) {
		t.Errorf("state = %v, want not_queued", st["state"])
	}
	if _, ok := body["last_snapshot_at"]; ok {
		t.Error("last_snapshot_at should be omitted before any snapshot")
	}

	h.post(t, "/api/queue/join")
	h.ch.Broadcast(waitingSnapshot(125))
	h.clock.Advance(5 * time.Second)

	_, body = h.get(t, "/api/queue/status")
	st = body["status"].(map[string]any)
	if st["state"] != string(status.Waiting) || st["minutes"] != float64(2) || st["seconds"] != float64(5) {
		t.Errorf("unexpected status %v", st)
	}
	if body["remaining_sec"] != float64(120) {
		t.Errorf("remaining_sec = %v, want 120", body["remaining_sec"])
	}
	if body["last_snapshot_at"] == nil {
		t.Error("last_snapshot_at should be set")
	}
}

func TestHealthInfoAndMetrics(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d", resp.StatusCode)
	}

	_, info := h.get(t, "/info")
	if info["user_id"] != "user-me" || info["service"] != "rmsqueue_gateway" {
		t.Errorf("unexpected info %v", info)
	}

	h.post(t, "/api/queue/join")
	resp, err = http.Get(h.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "rmsqueue_membership_requests_total") {
		t.Errorf("metrics output missing membership counter:\n%s", data)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)

	req, _ := http.NewRequest(http.MethodOptions, h.srv.URL+"/api/queue/join", nil)
	req.Header.Set("Origin", "http://lab-ui.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

// ─── WebSocket ────────────────────────────────────────────────────────────────

func TestWebSocket_ForwardsNotificationsInOrder(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	initial := readFrame(t, conn)
	if initial.Type != "StatusChanged" || initial.Status == nil || initial.Status.State != status.NotQueued {
		t.Fatalf("unexpected initial frame %+v", initial)
	}

	h.post(t, "/api/queue/join")
	h.ch.Broadcast(waitingSnapshot(60))
	h.ch.Broadcast([]byte(`{"queue":[{"user_id":"user-me","time_left":{"secs":600},"wait_time":{"secs":0}}]}`))

	want := []string{"MembershipRequested", "StatusChanged", "StatusChanged", "FirstActivation"}
	for i, typ := range want {
		f := readFrame(t, conn)
		if f.Type != typ {
			t.Fatalf("frame %d type = %q, want %q", i, f.Type, typ)
		}
		if f.UserID != "user-me" || f.ID == "" {
			t.Errorf("frame %d missing identity: %+v", i, f)
		}
	}
}

func TestWebSocket_ProtocolErrorFrame(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readFrame(t, conn)

	h.post(t, "/api/queue/join")
	readFrame(t, conn) // MembershipRequested

	h.ch.Broadcast([]byte(`{"queue":`))
	f := readFrame(t, conn)
	if f.Type != "ProtocolError" || f.Error == "" {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestWebSocket_CountdownBetweenSnapshots(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readFrame(t, conn)

	h.post(t, "/api/queue/join")
	h.ch.Broadcast(waitingSnapshot(120))
	readFrame(t, conn) // MembershipRequested
	readFrame(t, conn) // StatusChanged

	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("countdown ticker not started: %v", err)
	}
	h.clock.Advance(time.Second)

	f := readFrame(t, conn)
	if f.Type != gateway.FrameTypeCountdown {
		t.Fatalf("type = %q, want Countdown", f.Type)
	}
	if f.RemainingSec == nil || *f.RemainingSec != 119 {
		t.Errorf("remaining_sec = %v, want 119", f.RemainingSec)
	}
}
