package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kdevan/gchat-bridge/eventbus"
	"github.com/kdevan/gchat-bridge/logger"
	"github.com/kdevan/gchat-bridge/metrics"
)

// wsPingInterval and wsPingTimeout implement the §4.10 "30s ping/pong
// heartbeat; two missed pongs ⇒ terminate" rule: the read deadline is reset
// to twice the ping interval on every received pong, so two consecutive
// missed pongs (60s of silence) expire it.
const (
	wsPingInterval = 30 * time.Second
	wsPingTimeout  = 2 * wsPingInterval
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsOutbound is the envelope every event is serialized as for a /ws client
// (§4.10 "serializes {type, event}").
type wsOutbound struct {
	Type  eventbus.EventType `json:"type"`
	Event eventbus.Event     `json:"event"`
}

// wsClient is one connected WebSocket peer. Grounded on the teacher's
// websockutil.Session: a buffered write channel drained by a dedicated
// writer goroutine (so concurrent broadcasts never race on the connection),
// a ticker-driven ping, and a pong handler that pushes the read deadline
// back out.
type wsClient struct {
	conn    *websocket.Conn
	writeCh chan []byte
	done    chan struct{}
	once    sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// send enqueues data for delivery without blocking the caller; if the
// client's buffer is full it is treated as dead rather than stalling the
// broadcaster (§4.10 "writes to each client non-blocking").
func (c *wsClient) send(data []byte) bool {
	select {
	case c.writeCh <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.writeCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readLoop() {
	defer c.close()
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPingTimeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPingTimeout))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WSHub is the broadcast set of §4.10: every /ws connection is added on
// upgrade, removed on write failure or closed socket, and fanned an
// envelope for every Event Bus event.
type WSHub struct {
	metrics *metrics.Metrics
	log     *logger.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewWSHub(m *metrics.Metrics, log *logger.Logger) *WSHub {
	return &WSHub{metrics: m, log: log, clients: make(map[*wsClient]struct{})}
}

func (h *WSHub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("gateway: websocket upgrade failed: %v", err)
		return
	}
	client := &wsClient{conn: conn, writeCh: make(chan []byte, 32), done: make(chan struct{})}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClientConnected()
	}

	go func() {
		client.readLoop()
		h.remove(client)
	}()
	go func() {
		client.writeLoop()
		h.remove(client)
	}()
}

func (h *WSHub) remove(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if existed {
		c.close()
		if h.metrics != nil {
			h.metrics.WSClientDisconnected()
		}
	}
}

// Subscribe registers the hub against every listener kind on bus, so every
// Event Bus publish reaches every connected /ws client (§4.9, §4.10).
func (h *WSHub) Subscribe(bus *eventbus.Bus) {
	for _, typ := range []eventbus.EventType{
		eventbus.EventConnect, eventbus.EventDisconnect, eventbus.EventMessage,
		eventbus.EventTyping, eventbus.EventReadReceipt, eventbus.EventUserStatus,
		eventbus.EventGroupChanged, eventbus.EventError,
	} {
		bus.Subscribe(typ, h.broadcast)
	}
}

func (h *WSHub) broadcast(ev eventbus.Event) {
	data, err := json.Marshal(wsOutbound{Type: ev.Type, Event: ev})
	if err != nil {
		h.log.Errorf("gateway: marshal websocket event: %v", err)
		return
	}

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if !c.send(data) {
			h.remove(c)
		}
	}
}
