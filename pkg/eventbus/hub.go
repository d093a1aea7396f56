// Package eventbus broadcasts runtime events (phase changes, hazard
// alerts, rule findings, expert-team decisions) to connected websocket
// observers, and optionally republishes the same events to a NATS
// subject for downstream consumers. Neither sink is required for the
// supervisor to run; a Hub with no clients and no NATS connection simply
// drops events on the floor.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
	broadcastDepth = 256
)

// EventType names the kind of payload carried by an Event.
type EventType string

const (
	EventPhaseChanged    EventType = "phase_changed"
	EventHazardAlert     EventType = "hazard_alert"
	EventRuleFinding     EventType = "rule_finding"
	EventReviewDecision  EventType = "review_decision"
	EventShutdownDetected EventType = "shutdown_detected"
	EventNewFlightDetected EventType = "new_flight_detected"
)

// Event is one runtime occurrence broadcast to every subscriber.
type Event struct {
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one connected websocket observer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans Event values out to every connected websocket client. The
// zero value is not usable; build one with NewHub.
type Hub struct {
	log        *slog.Logger
	register   chan *client
	unregister chan *client
	broadcast  chan Event
	publishers []Publisher

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// Publisher is an optional secondary sink an Event is also forwarded
// to, such as a NATS bridge. A Publisher that fails logs and is
// otherwise ignored; event delivery to websocket clients never blocks
// on it.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NewHub builds a Hub. It does not start the dispatch loop: call Run
// (typically in its own goroutine) to deliver queued events until ctx is
// cancelled; Broadcast may be called from any goroutine.
func NewHub(log *slog.Logger, publishers ...Publisher) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:        log,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, broadcastDepth),
		publishers: publishers,
		clients:    make(map[*client]struct{}),
	}
}

// Run drives the hub's registration and broadcast loop until ctx is
// cancelled. It must be started exactly once, typically from the
// supervisor's main goroutine alongside the telemetry client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.dispatch(ctx, event)

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*client]struct{})
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		h.log.Error("eventbus: marshal event", "error", err, "type", event.Type)
		return
	}

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- message:
		default:
			h.log.Warn("eventbus: client send buffer full, dropping message", "type", event.Type)
		}
	}
	h.mu.RUnlock()

	for _, p := range h.publishers {
		if err := p.Publish(ctx, event); err != nil {
			h.log.Error("eventbus: publisher failed", "error", err, "type", event.Type)
		}
	}
}

// Broadcast queues event for delivery. It never blocks: a full
// broadcast buffer drops the event and logs a warning, since the
// supervisor's tick loop must never stall on a slow observer.
func (h *Hub) Broadcast(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("eventbus: broadcast buffer full, dropping event", "type", event.Type)
	}
}

// ClientCount returns the number of currently connected websocket
// clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades r to a websocket connection and registers it as a
// Hub observer. It returns once the connection is closed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("eventbus: websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register <- c

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c)
	}()
	h.readPump(c)
	<-done
}

// readPump discards inbound client frames (this is a broadcast-only
// channel) but must run so pong control frames and connection close
// are observed.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
