package alerthub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"SetupScan/internal/domain/models"
	svcmetrics "SetupScan/internal/service/metrics"
	applogger "SetupScan/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// filter narrows what one client receives. Empty fields match everything.
type filter struct {
	modelID string
	pair    string
}

func (f filter) match(ev models.PhaseEvent) bool {
	return (f.modelID == "" || f.modelID == ev.ModelID) && (f.pair == "" || f.pair == ev.Pair)
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	filter filter
}

type message struct {
	ev  models.PhaseEvent
	raw []byte
}

// Hub fans phase events out to websocket clients. Slow clients are dropped instead of
// blocking the broadcaster.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]struct{}
	broadcast  chan message
	register   chan *client
	unregister chan *client
	l          *applogger.Logger
}

func New(l *applogger.Logger) *Hub {
	if l == nil {
		l = applogger.NewNop()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan message, 1024),
		register:   make(chan *client),
		unregister: make(chan *client),
		l:          l,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			svcmetrics.HubClients.Set(0)
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			svcmetrics.HubClients.Set(float64(n))
		case c := <-h.unregister:
			h.drop(c)
		case m := <-h.broadcast:
			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				if !c.filter.match(m.ev) {
					continue
				}
				select {
				case c.send <- m.raw:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.drop(c)
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	svcmetrics.HubClients.Set(float64(n))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit implements AlertEmitter by queueing events for broadcast. Events are dropped when
// the queue is full.
func (h *Hub) Emit(_ context.Context, events ...models.PhaseEvent) error {
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		h.Publish(ev, raw)
	}
	return nil
}

// Publish queues an already encoded event.
func (h *Hub) Publish(ev models.PhaseEvent, raw []byte) {
	select {
	case h.broadcast <- message{ev: ev, raw: raw}:
	default:
		h.l.Warn("alert hub queue full, dropping event",
			applogger.String("type", string(ev.Type)),
			applogger.String("pair", ev.Pair))
	}
}

// ServeWS upgrades the request. Query parameters model_id and pair filter the feed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	q := r.URL.Query()
	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		filter: filter{modelID: q.Get("model_id"), pair: q.Get("pair")},
	}
	h.register <- c
	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// readPump discards client input and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
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
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.l.Debug("alert write failed", applogger.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
