// Package events broadcasts pipeline lifecycle events to in-process
// server-sent-events subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/infrastructure/metrics"
)

// Lifecycle event types.
const (
	TypeConnected          = "connected"
	TypePing               = "ping"
	TypeExtractionComplete = "extraction_complete"
	TypeExtractionFailed   = "extraction_failed"
	TypePropertyUpdated    = "property_updated"
	TypeCertificateUpdated = "certificate_updated"
)

// PingInterval is the keep-alive cadence.
const PingInterval = 30 * time.Second

// Event is one lifecycle notification.
type Event struct {
	Type          string `json:"type"`
	ClientID      string `json:"clientId,omitempty"`
	CertificateID string `json:"certificateId,omitempty"`
	PropertyID    string `json:"propertyId,omitempty"`
	Status        string `json:"status,omitempty"`
	Message       string `json:"message,omitempty"`
}

// client is one connected subscriber.
type client struct {
	id string
	ch chan []byte
}

// Hub is a process-local set of SSE subscribers. Writes to a client are
// serialised by its channel; a client that cannot keep up is dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	log     *logging.Logger
	metrics *metrics.Metrics
	stopCh  chan struct{}
	once    sync.Once
}

// NewHub creates a Hub and starts its keep-alive ticker.
func NewHub(log *logging.Logger, m *metrics.Metrics) *Hub {
	h := &Hub{
		clients: make(map[string]*client),
		log:     log,
		metrics: m,
		stopCh:  make(chan struct{}),
	}
	go h.pingLoop()
	return h
}

// Close stops the keep-alive loop and disconnects every subscriber.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.stopCh) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.ch)
		delete(h.clients, id)
	}
	if h.metrics != nil {
		h.metrics.SSEClients.Set(0)
	}
}

// Broadcast sends an event to every subscriber. Per-client write failures
// are swallowed; a full client buffer drops that client.
func (h *Hub) Broadcast(event Event) {
	frame := encodeFrame(event)

	h.mu.RLock()
	stale := []string{}
	for id, c := range h.clients {
		select {
		case c.ch <- frame:
		default:
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		h.remove(id)
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP implements the GET /events stream endpoint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := &client{
		id: uuid.New().String(),
		ch: make(chan []byte, 16),
	}
	h.add(c)
	defer h.remove(c.id)

	// Greeting carries the client id so UIs can correlate.
	if _, err := w.Write(encodeFrame(Event{Type: TypeConnected, ClientID: c.id})); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, open := <-c.ch:
			if !open {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SSEClients.Set(float64(n))
	}
	h.log.WithFields(map[string]interface{}{"client_id": c.id, "clients": n}).Debug("SSE client connected")
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		close(c.ch)
		delete(h.clients, id)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if h.metrics != nil {
			h.metrics.SSEClients.Set(float64(n))
		}
		h.log.WithFields(map[string]interface{}{"client_id": id, "clients": n}).Debug("SSE client disconnected")
	}
}

func (h *Hub) pingLoop() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.Broadcast(Event{Type: TypePing})
		}
	}
}

// encodeFrame renders the SSE wire format: "data: <json>\n\n".
func encodeFrame(event Event) []byte {
	payload, err := json.Marshal(event)
	if err != nil {
		payload = []byte(`{"type":"error"}`)
	}
	return []byte(fmt.Sprintf("data: %s\n\n", payload))
}
