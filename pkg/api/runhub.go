package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emonmirror/emonmirror/pkg/config"
	"github.com/emonmirror/emonmirror/pkg/mirror"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header = direct connection (curl, testing tools).
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// RunHub fans update-run progress events out to WebSocket watchers.
// It implements mirror.Reporter, so a run wired to the hub streams its
// per-feed progress to every connected client as it happens.
type RunHub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte

	mu sync.RWMutex
}

var _ mirror.Reporter = (*RunHub)(nil)

// NewRunHub creates a hub. Call Run to start its event loop.
func NewRunHub() *RunHub {
	return &RunHub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn, config.WSChannelBuffer),
		unregister: make(chan *websocket.Conn, config.WSChannelBuffer),
		broadcast:  make(chan []byte, config.WSBroadcastBuffer),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled.
func (h *RunHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
			}
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Run watcher connected (total: %d)", count)
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Run watcher disconnected (total: %d)", count)
		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					log.Printf("Run watcher write error: %v", err)
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()

			// Unregister failed connections without holding the lock.
			for _, conn := range failed {
				h.unregister <- conn
			}
		}
	}
}

// Event implements mirror.Reporter by broadcasting the event to all
// watchers.
func (h *RunHub) Event(e mirror.Event) {
	message, err := json.Marshal(e)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- message:
	default:
		// Channel full, drop the event to keep the run from blocking.
		log.Printf("Run event channel full, dropping event")
	}
}

// HasClients reports whether any watcher is connected.
func (h *RunHub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// HandleWatch upgrades the request to a WebSocket and streams run
// events until the client disconnects.
func (h *RunHub) HandleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.register <- conn

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Ping sender keeps the connection alive through idle stretches.
	go func() {
		ticker := time.NewTicker(config.WSPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	defer func() {
		cancel()
		h.unregister <- conn
	}()

	conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	// Read loop handles control frames and detects connection close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Run watcher error: %v", err)
			}
			break
		}
	}
}
