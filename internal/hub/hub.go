// Package hub streams collection events to admin UI clients over
// Server-Sent Events.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"yahalom/internal/metrics"
)

// DefaultKeepAlive is the interval between keep-alive comments
const DefaultKeepAlive = 30 * time.Second

type message struct {
	name    string
	payload interface{}
}

// client is one connected event stream
type client struct {
	id     string
	events chan []byte
}

// Hub manages SSE client connections
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan message
	done       chan struct{}

	allowOrigin string
	keepAlive   time.Duration
	metrics     *metrics.Metrics
}

// Option configures a Hub
type Option func(*Hub)

// WithAllowOrigin sets the Access-Control-Allow-Origin header of the stream
func WithAllowOrigin(origin string) Option {
	return func(h *Hub) { h.allowOrigin = origin }
}

// WithKeepAlive changes the keep-alive interval
func WithKeepAlive(d time.Duration) Option {
	return func(h *Hub) { h.keepAlive = d }
}

// WithMetrics tracks the number of connected clients
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// New creates a new Hub
func New(opts ...Option) *Hub {
	h := &Hub{
		clients:     make(map[*client]struct{}),
		register:    make(chan *client),
		unregister:  make(chan *client),
		broadcast:   make(chan message, 256),
		done:        make(chan struct{}),
		allowOrigin: "*",
		keepAlive:   DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's event loop and returns when ctx is done. Connected
// clients are disconnected on return.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.metrics.SubscriberConnected(1)
			log.Printf("SSE client connected: %s (total: %d)", c.id, total)

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			if ok {
				delete(h.clients, c)
				close(c.events)
			}
			total := len(h.clients)
			h.mu.Unlock()
			if ok {
				h.metrics.SubscriberConnected(-1)
				log.Printf("SSE client disconnected: %s (total: %d)", c.id, total)
			}

		case msg := <-h.broadcast:
			h.send(msg)

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.events)
				h.metrics.SubscriberConnected(-1)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) send(msg message) {
	data, err := json.Marshal(msg.payload)
	if err != nil {
		log.Printf("Failed to marshal event %s: %v", msg.name, err)
		return
	}

	frame := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", msg.name, data))

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.events <- frame:
		default:
			log.Printf("SSE client %s is slow, skipping %s", c.id, msg.name)
		}
	}
}

// Broadcast queues an event for all connected clients. The event is dropped
// when the queue is full.
func (h *Hub) Broadcast(name string, payload interface{}) {
	select {
	case h.broadcast <- message{name: name, payload: payload}:
	default:
		log.Printf("Broadcast channel full, dropping %s", name)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles SSE connections
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", h.allowOrigin)
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	c := &client{
		id:     uuid.NewString(),
		events: make(chan []byte, 64),
	}

	select {
	case h.register <- c:
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	case <-r.Context().Done():
		return
	}
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.events:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
