// Package ws is the WebSocket fan-out server: adapted from the
// teacher's Hub/Client pattern, it forwards eventbus.Event messages to
// subscribed clients and answers get_messages_since requests from the
// bus's replay ring so a reconnecting client can catch up (§6).
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wyckoff-labs/signal-engine/internal/eventbus"
	"go.uber.org/zap"
)

// FrameType enumerates the server/client WebSocket frame kinds.
type FrameType string

const (
	FrameConnected         FrameType = "connected"
	FramePatternDetected   FrameType = "pattern_detected"
	FrameSignalUpdate      FrameType = "signal_update"
	FramePortfolioUpdated  FrameType = "portfolio_updated"
	FrameCampaignUpdated   FrameType = "campaign_updated"
	FrameNotificationToast FrameType = "notification_toast"
	FrameBatchUpdate       FrameType = "batch_update"
	FrameHeartbeat         FrameType = "heartbeat"

	// Client -> server
	FrameSubscribe        FrameType = "subscribe"
	FrameUnsubscribe      FrameType = "unsubscribe"
	FrameGetMessagesSince FrameType = "get_messages_since"
)

// Frame is one WebSocket message, in either direction.
type Frame struct {
	Type      FrameType       `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client is one connected WebSocket session.
type Client struct {
	id            string
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]bool
	mu            sync.RWMutex
}

// Hub fans out frames to subscribed clients and answers replay
// requests against the event bus.
type Hub struct {
	logger   *zap.Logger
	bus      *eventbus.Bus
	upgrader websocket.Upgrader

	clients    map[*Client]bool
	channels   map[string]map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a Hub. bus supplies the replay ring for
// get_messages_since; the hub subscribes to it only when Attach is
// called.
func NewHub(logger *zap.Logger, bus *eventbus.Bus) *Hub {
	return &Hub{
		logger: logger.Named("ws-hub"),
		bus:    bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*Client]bool),
		channels:   make(map[string]map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// ServeHTTP upgrades an incoming request to a WebSocket connection and
// starts its read/write pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	client := h.NewClient(uuid.NewString(), conn)
	go client.WritePump()
	go client.ReadPump()
}

// Attach subscribes the hub to every event on the bus, translating
// each into its corresponding channel(s).
func (h *Hub) Attach() {
	h.bus.SubscribeAll(func(ev eventbus.Event) {
		h.publishEvent(ev)
	})
}

// Run drives the hub's registration/broadcast loop until stop is
// closed.
func (h *Hub) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.sendConnected(client)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				for channel := range client.subscriptions {
					if clients, ok := h.channels[channel]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.channels, channel)
						}
					}
				}
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		case <-ticker.C:
			h.heartbeat()
		}
	}
}

func (h *Hub) sendConnected(client *Client) {
	frame := Frame{Type: FrameConnected, Timestamp: time.Now().UnixMilli()}
	raw, _ := json.Marshal(frame)
	select {
	case client.send <- raw:
	default:
	}
}

func (h *Hub) heartbeat() {
	frame := Frame{Type: FrameHeartbeat, Timestamp: time.Now().UnixMilli()}
	raw, _ := json.Marshal(frame)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- raw:
		default:
		}
	}
}

// Subscribe adds a client to a channel.
func (h *Hub) Subscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true
	client.mu.Lock()
	client.subscriptions[channel] = true
	client.mu.Unlock()
}

// Unsubscribe removes a client from a channel.
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.channels[channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
	client.mu.Lock()
	delete(client.subscriptions, channel)
	client.mu.Unlock()
}

// PublishToChannel sends a frame to every client subscribed to
// channel.
func (h *Hub) PublishToChannel(channel string, frameType FrameType, seq int64, data any) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal frame data", zap.Error(err))
		return
	}
	frame := Frame{Type: frameType, Channel: channel, Data: dataBytes, Seq: seq, Timestamp: time.Now().UnixMilli()}
	raw, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal frame", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.channels[channel]; ok {
		for client := range clients {
			select {
			case client.send <- raw:
			default:
			}
		}
	}
}

func (h *Hub) publishEvent(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.EventPatternDetected:
		h.PublishToChannel("patterns", FramePatternDetected, ev.Seq, ev.Payload)
		h.PublishToChannel("patterns:"+ev.Symbol, FramePatternDetected, ev.Seq, ev.Payload)
	case eventbus.EventSignalGenerated, eventbus.EventSignalValidated, eventbus.EventSignalApproved, eventbus.EventSignalRejected:
		h.PublishToChannel("signals", FrameSignalUpdate, ev.Seq, ev.Payload)
		h.PublishToChannel("signals:"+ev.Symbol, FrameSignalUpdate, ev.Seq, ev.Payload)
	case eventbus.EventPortfolioUpdated:
		h.PublishToChannel("portfolio", FramePortfolioUpdated, ev.Seq, ev.Payload)
	case eventbus.EventCampaignUpdated:
		h.PublishToChannel("campaigns", FrameCampaignUpdated, ev.Seq, ev.Payload)
		h.PublishToChannel("campaigns:"+ev.Symbol, FrameCampaignUpdated, ev.Seq, ev.Payload)
	case eventbus.EventNotificationSent:
		h.PublishToChannel("notifications", FrameNotificationToast, ev.Seq, ev.Payload)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient creates a Client bound to this hub and registers it.
func (h *Hub) NewClient(id string, conn *websocket.Conn) *Client {
	c := &Client{id: id, hub: h, conn: conn, send: make(chan []byte, 256), subscriptions: make(map[string]bool)}
	h.register <- c
	return c
}

// ReadPump reads client frames (subscribe/unsubscribe/get_messages_since)
// until the connection closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket read error", zap.Error(err))
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.hub.logger.Warn("invalid websocket frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case FrameSubscribe:
			c.hub.Subscribe(c, frame.Channel)
		case FrameUnsubscribe:
			c.hub.Unsubscribe(c, frame.Channel)
		case FrameGetMessagesSince:
			c.handleGetMessagesSince(frame)
		}
	}
}

func (c *Client) handleGetMessagesSince(frame Frame) {
	backlog := c.hub.bus.MessagesSince(frame.Seq)
	raw, err := json.Marshal(Frame{Type: FrameBatchUpdate, Data: mustMarshal(backlog), Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}

// WritePump writes queued frames (and periodic pings) to the
// connection until the send channel closes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
