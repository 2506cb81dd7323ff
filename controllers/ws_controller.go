package controller

import (
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"

	"terracrm/pipeline"
)

// Hub fans pipeline events out to connected operator frontends. It implements
// pipeline.Broadcaster; a slow or dead client is dropped rather than blocking
// the pipeline.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan pipeline.Event
	logger  *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]chan pipeline.Event),
		logger:  logger,
	}
}

// Publish delivers an event to every connected client without blocking.
func (h *Hub) Publish(event pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, ch := range h.clients {
		select {
		case ch <- event:
		default:
			h.logger.Printf("Dropping slow websocket client %s", conn.RemoteAddr())
			close(ch)
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) chan pipeline.Event {
	ch := make(chan pipeline.Event, 32)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// HandleEventsWS streams inbox events to one operator connection.
func (h *Hub) HandleEventsWS(c *websocket.Conn) {
	defer c.Close()

	ch := h.register(c)
	defer h.unregister(c)

	// Drain reads so close frames are processed
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				h.unregister(c)
				return
			}
		}
	}()

	for event := range ch {
		if err := c.WriteJSON(event); err != nil {
			h.logger.Printf("Error writing websocket event: %v", err)
			return
		}
	}
}
