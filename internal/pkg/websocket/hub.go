package websocket

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Hub tracks the live snapshot connections of every student
type Hub struct {
	// Registered clients organized by student ID
	clients map[string]map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	stopped chan struct{}

	// Mutex for concurrent access to clients map
	mu sync.RWMutex

	// Logger for Hub operations
	logger zerolog.Logger
}

// Message is a frame exchanged over the socket. Servers send "state" and
// "result"; clients send "register", "cancel" and "refresh".
type Message struct {
	Type     string      `json:"type"`
	CourseID string      `json:"courseId,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

// Message types
const (
	MessageState    = "state"
	MessageResult   = "result"
	MessageRegister = "register"
	MessageCancel   = "cancel"
	MessageRefresh  = "refresh"
)

// NewHub creates a new Hub instance
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		logger:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Run handles client registrations until ctx is done, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// Register adds client, or disconnects it if the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopped:
		client.shutdown()
	}
}

// Unregister removes client and stops its watch.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
		client.shutdown()
	}
}

// registerClient registers a new client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.studentID]; !ok {
		h.clients[client.studentID] = make(map[*Client]bool)
	}
	h.clients[client.studentID][client] = true

	h.logger.Info().
		Str("studentID", client.studentID).
		Str("addr", client.remoteAddr()).
		Msg("Client registered")
}

// unregisterClient unregisters a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.studentID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.clients, client.studentID)
			}
			h.logger.Info().
				Str("studentID", client.studentID).
				Str("addr", client.remoteAddr()).
				Msg("Client unregistered")
		}
	}
	client.shutdown()
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for id, clients := range h.clients {
		for client := range clients {
			client.shutdown()
			n++
		}
		delete(h.clients, id)
	}
	h.logger.Info().Int("clients", n).Msg("Hub stopped")
}

// GetClientsCount returns the number of connected clients for a student
func (h *Hub) GetClientsCount(studentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[studentID])
}
