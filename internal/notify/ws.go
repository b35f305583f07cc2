package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/GoAffiliate/tiergate/internal/model"
	"github.com/GoAffiliate/tiergate/internal/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	pingPeriod   = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Snapshot pushes carry no secrets; the sidebar widget connects from
	// arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes snapshot updates to connected websocket clients. It implements
// Observer so it can hang off the Notifier like any other subscriber.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	closed    bool
	pingEvery time.Duration
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]struct{}),
		pingEvery: pingPeriod,
	}
}

// Serve upgrades the request and keeps the connection registered until the
// peer goes away. The read loop only consumes control frames.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go h.keepAlive(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(conn)
}

// keepAlive pings on a fixed cadence. WriteControl is the one write method
// gorilla documents as safe concurrently with the data writes in
// OnSnapshot; WriteMessage here would race the snapshot fan-out.
func (h *Hub) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingEvery)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.Lock()
		_, alive := h.clients[conn]
		h.mu.Unlock()
		if !alive {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
			h.drop(conn)
			return
		}
	}
}

// OnSnapshot pushes the snapshot to every client, dropping the ones whose
// writes fail.
func (h *Hub) OnSnapshot(snap *model.CapacitySnapshot) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteJSON(snap); err != nil {
			h.drop(c)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	conn.Close()
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeTimeout))
		c.Close()
	}
}
