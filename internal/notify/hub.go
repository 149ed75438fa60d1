package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is one server-sent event.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	EventSnapshot = "snapshot"
	EventNotice   = "notice"
)

// Client is one open event stream.
type Client struct {
	ID       string
	UserID   string
	outbound chan Event
}

// Hub fans events out to the streams each user has open. Slow clients lose
// events rather than block publishers.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[*Client]struct{}
	logger    zerolog.Logger
	heartbeat time.Duration
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]map[*Client]struct{}),
		logger:    logger,
		heartbeat: 15 * time.Second,
	}
}

// Subscribe registers a stream for userID. Call the returned func to leave.
func (h *Hub) Subscribe(userID string) (*Client, func()) {
	c := &Client{ID: uuid.NewString(), UserID: userID, outbound: make(chan Event, 16)}
	h.mu.Lock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("client_id", c.ID).Str("user_id", userID).Msg("hub: client subscribed")

	var once sync.Once
	return c, func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.clients[userID]; ok {
				delete(set, c)
				if len(set) == 0 {
					delete(h.clients, userID)
				}
			}
			h.mu.Unlock()
		})
	}
}

// Publish delivers ev to every stream of userID without blocking.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		h.Deliver(c, ev)
	}
}

// Deliver sends ev to a single stream without blocking.
func (h *Hub) Deliver(c *Client, ev Event) {
	select {
	case c.outbound <- ev:
	default:
		h.logger.Warn().Str("client_id", c.ID).Msg("hub: dropping event, buffer full")
	}
}

// Subscribers returns the number of open streams for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Notify makes the hub a Sink.
func (h *Hub) Notify(_ context.Context, n Notice) {
	h.Publish(n.UserID, Event{Type: EventNotice, Data: n})
}

// Stream writes events for c until the request ends. initial, when set, is
// sent first so a new stream starts from the current state.
func (h *Hub) Stream(w http.ResponseWriter, r *http.Request, c *Client, initial *Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if initial != nil {
		h.write(w, *initial)
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-c.outbound:
			h.write(w, ev)
			flusher.Flush()
		}
	}
}

func (h *Hub) write(w http.ResponseWriter, ev Event) {
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		h.logger.Warn().Err(err).Msg("hub: encode event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, raw)
}
