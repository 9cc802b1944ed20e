package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cafe-pos/register/internal/events"
	"github.com/sirupsen/logrus"
)

// Message is the frame written to display clients.
type Message struct {
	Type    events.Kind     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts register events to
// the ones subscribed to each event kind.
type Hub struct {
	// Registered clients by event kind
	rooms map[events.Kind]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan events.Event

	// done is closed when Run stops; joins and leaves stop blocking.
	done chan struct{}

	mu     sync.RWMutex
	logger logrus.FieldLogger
}

func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		rooms:      make(map[events.Kind]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan events.Event, 256),
		done:       make(chan struct{}),
		logger:     logger.WithField("component", "ws"),
	}
}

// Run is the hub's main loop. It returns when ctx is done, after closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			for _, kind := range client.kinds {
				if h.rooms[kind] == nil {
					h.rooms[kind] = make(map[*Client]bool)
				}
				h.rooms[kind][client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(client)
			h.mu.Unlock()

		case e := <-h.broadcast:
			payload, err := json.Marshal(e)
			if err != nil {
				h.logger.WithError(err).Error("event not encoded")
				continue
			}
			// Marshal once per event
			message, err := json.Marshal(Message{Type: e.Kind, Payload: payload})
			if err != nil {
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[e.Kind] {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// join hands client to the hub. It reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave removes client. After the hub stopped it is a no-op; closeAll has
// already released every client.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Stopped reports whether Run has stopped.
func (h *Hub) Stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// dropLocked removes client from every room and closes its send channel once.
func (h *Hub) dropLocked(client *Client) {
	registered := false
	for _, kind := range client.kinds {
		clients, ok := h.rooms[kind]
		if !ok || !clients[client] {
			continue
		}
		registered = true
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, kind)
		}
	}
	if registered {
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[*Client]bool)
	for _, clients := range h.rooms {
		for c := range clients {
			seen[c] = true
		}
	}
	for c := range seen {
		h.dropLocked(c)
	}
}

// Broadcast queues e for delivery. It never blocks; when the queue is full
// the event is dropped.
func (h *Hub) Broadcast(e events.Event) {
	select {
	case h.broadcast <- e:
	default:
		h.logger.WithField("kind", e.Kind).Warn("ws broadcast queue full, event dropped")
	}
}

// Forward relays events from a bus subscription until ctx is done or the
// subscription closes.
func (h *Hub) Forward(ctx context.Context, in <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-in:
			if !ok {
				return
			}
			h.Broadcast(e)
		}
	}
}

// Clients returns the number of clients subscribed to kind.
func (h *Hub) Clients(kind events.Kind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[kind])
}
