package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestUpgradeConnection_SkipsFramesQueuedBeforeInitial(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	// Queued while nobody drains the broadcast channel, as when a snapshot
	// lands just before a UI reconnects.
	cm.Broadcast(Frame{ID: "stale", Type: "StatusChanged"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		initial := func() Frame { return Frame{ID: "initial", Type: "StatusChanged"} }
		if err := cm.UpgradeConnection(w, r, initial); err != nil {
			t.Errorf("UpgradeConnection: %v", err)
		}
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() Frame {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return f
	}

	if f := read(); f.ID != "initial" {
		t.Fatalf("first frame = %q, want initial", f.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cm.Start(ctx)

	cm.Broadcast(Frame{ID: "fresh", Type: "StatusChanged"})
	if f := read(); f.ID != "fresh" {
		t.Fatalf("frame after initial = %q, want fresh (stale frame must be skipped)", f.ID)
	}
}

func TestHandleBroadcast_DeliversToConnectionsWithoutInitial(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	c := &Connection{ID: "c1", Send: make(chan []byte, 1), Manager: cm}
	cm.registerConnection(c)

	cm.Broadcast(Frame{ID: "f1", Type: FrameTypeCountdown})
	cm.handleBroadcast(<-cm.broadcastCh)

	select {
	case data := <-c.Send:
		if !strings.Contains(string(data), `"id":"f1"`) {
			t.Errorf("unexpected payload %s", data)
		}
	default:
		t.Fatal("frame was not delivered")
	}
	if got := cm.Stats()["frames_sent"]; got != uint64(1) {
		t.Errorf("frames_sent = %v, want 1", got)
	}
}
