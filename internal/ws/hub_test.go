package ws_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wyckoff-labs/signal-engine/internal/eventbus"
	"github.com/wyckoff-labs/signal-engine/internal/ws"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func newTestServer(t *testing.T, hub *ws.Hub) (*httptest.Server, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		client := hub.NewClient("test-client", conn)
		go client.WritePump()
		go client.ReadPump()
	}))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return server, wsURL
}

func readFrame(t *testing.T, conn *websocket.Conn) ws.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var f ws.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return f
}

func TestClientReceivesConnectedFrameOnConnect(t *testing.T) {
	bus := eventbus.New(zap.NewNop(), eventbus.Config{Workers: 1, BufferSize: 16, ReplayCap: 10, ReplayTTL: time.Minute})
	defer bus.Close()
	hub := ws.NewHub(zap.NewNop(), bus)
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	server, wsURL := newTestServer(t, hub)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frame := readFrame(t, conn)
	if frame.Type != ws.FrameConnected {
		t.Errorf("expected connected frame, got %s", frame.Type)
	}
}

func TestSubscribedClientReceivesChannelPublish(t *testing.T) {
	bus := eventbus.New(zap.NewNop(), eventbus.Config{Workers: 1, BufferSize: 16, ReplayCap: 10, ReplayTTL: time.Minute})
	defer bus.Close()
	hub := ws.NewHub(zap.NewNop(), bus)
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	server, wsURL := newTestServer(t, hub)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readFrame(t, conn) // connected

	subscribe := ws.Frame{Type: ws.FrameSubscribe, Channel: "signals"}
	raw, _ := json.Marshal(subscribe)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	hub.PublishToChannel("signals", ws.FrameSignalUpdate, 1, map[string]string{"symbol": "AAPL"})

	frame := readFrame(t, conn)
	if frame.Type != ws.FrameSignalUpdate {
		t.Errorf("expected signal_update frame, got %s", frame.Type)
	}
	if frame.Channel != "signals" {
		t.Errorf("expected channel 'signals', got %s", frame.Channel)
	}
}

func TestAttachForwardsBusEventsToSubscribers(t *testing.T) {
	bus := eventbus.New(zap.NewNop(), eventbus.Config{Workers: 1, BufferSize: 16, ReplayCap: 10, ReplayTTL: time.Minute})
	defer bus.Close()
	hub := ws.NewHub(zap.NewNop(), bus)
	hub.Attach()
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	server, wsURL := newTestServer(t, hub)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readFrame(t, conn) // connected

	subscribe := ws.Frame{Type: ws.FrameSubscribe, Channel: "patterns"}
	raw, _ := json.Marshal(subscribe)
	conn.WriteMessage(websocket.TextMessage, raw)
	time.Sleep(50 * time.Millisecond)

	bus.Publish(eventbus.EventPatternDetected, "AAPL", map[string]string{"pattern": "spring"})

	frame := readFrame(t, conn)
	if frame.Type != ws.FramePatternDetected {
		t.Errorf("expected pattern_detected frame, got %s", frame.Type)
	}
}

func TestGetMessagesSinceReturnsBatchUpdate(t *testing.T) {
	bus := eventbus.New(zap.NewNop(), eventbus.Config{Workers: 1, BufferSize: 16, ReplayCap: 10, ReplayTTL: time.Minute})
	defer bus.Close()
	first := bus.Publish(eventbus.EventPatternDetected, "AAPL", nil)
	bus.Publish(eventbus.EventSignalGenerated, "AAPL", nil)

	hub := ws.NewHub(zap.NewNop(), bus)
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	server, wsURL := newTestServer(t, hub)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readFrame(t, conn) // connected

	req := ws.Frame{Type: ws.FrameGetMessagesSince, Seq: first.Seq}
	raw, _ := json.Marshal(req)
	conn.WriteMessage(websocket.TextMessage, raw)

	frame := readFrame(t, conn)
	if frame.Type != ws.FrameBatchUpdate {
		t.Fatalf("expected batch_update frame, got %s", frame.Type)
	}
	var backlog []eventbus.Event
	if err := json.Unmarshal(frame.Data, &backlog); err != nil {
		t.Fatalf("decode backlog: %v", err)
	}
	if len(backlog) != 1 {
		t.Errorf("expected 1 event since seq %d, got %d", first.Seq, len(backlog))
	}
}
