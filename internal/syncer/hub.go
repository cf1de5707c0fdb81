package syncer

import (
	"sync"
	"time"
)

// Message types delivered to open application instances.
const (
	TypeSyncSuccess = "SYNC_SUCCESS"
	TypePush        = "PUSH"
)

// Message is the typed notification fanned out to every connected client.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Push notification fields, set only for TypePush.
	Title   string   `json:"title,omitempty"`
	Body    string   `json:"body,omitempty"`
	URL     string   `json:"url,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

// Hub broadcasts messages to every subscribed application instance.
// Sends never block: a subscriber that cannot keep up misses messages
// rather than stalling the broadcast.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Message]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[chan Message]struct{}{}}
}

// Subscribe registers a new client channel.
func (h *Hub) Subscribe() chan Message {
	ch := make(chan Message, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a client channel.
func (h *Hub) Unsubscribe(ch chan Message) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Broadcast delivers msg to every subscriber.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Clients reports the number of connected application instances.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
