package feed

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans the Redis win-feed out to connected browser clients. Clients are
// read-only; anything they send is discarded.
type Hub struct {
	log       *slog.Logger
	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	broadcast chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:       logger,
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan []byte, 64),
	}
}

// Run relays feed messages to every connected client until ctx ends.
func (h *Hub) Run(ctx context.Context, pub *Publisher) {
	go func() {
		if err := pub.Subscribe(ctx, func(payload []byte) {
			select {
			case h.broadcast <- payload:
			default:
				// Slow consumers drop feed frames rather than block settlement fan-out.
			}
		}); err != nil && ctx.Err() == nil {
			h.log.Error("feed subscription ended", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ServeWS upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "err", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
