package broadcast

import (
	"log/slog"
	"sync"
)

// Message is one named broadcast frame pushed to dashboard subscribers.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// sendBuffer bounds the per-subscriber queue. A subscriber that falls this
// far behind is evicted rather than allowed to stall the pipeline.
const sendBuffer = 64

// Hub owns the live subscriber set, keyed by opaque connection id.
//
// Broadcast never blocks: each subscriber has a buffered queue and a full
// queue counts as a send failure, which evicts that subscriber and leaves
// the rest untouched. Disconnected viewers reconcile via the query API.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Message
	log  *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{subs: make(map[string]chan Message), log: log}
}

// Subscribe registers a connection id and returns its receive channel.
// Idempotent: an already-present id keeps its existing channel.
func (h *Hub) Subscribe(id string) <-chan Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		return ch
	}
	ch := make(chan Message, sendBuffer)
	h.subs[id] = ch
	h.log.Info("subscriber connected", "subscriber_id", id, "total", len(h.subs))
	return ch
}

// Unsubscribe removes a connection id and closes its channel.
// Idempotent: removing an absent id is a no-op.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(id, "unsubscribed")
}

func (h *Hub) dropLocked(id, reason string) {
	ch, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(ch)
	h.log.Info("subscriber removed", "subscriber_id", id, "reason", reason, "total", len(h.subs))
}

// Broadcast delivers a message to every current subscriber. A subscriber
// whose queue is full is evicted; delivery to the others continues. The
// call itself never blocks and never fails.
func (h *Hub) Broadcast(event string, data any) {
	msg := Message{Event: event, Data: data}

	// Sends stay under the read lock: channels are only closed under the
	// write lock, so a concurrent Unsubscribe cannot close one mid-send.
	// Sends are non-blocking, so holding the lock here is cheap.
	h.mu.RLock()
	var stalled []string
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			stalled = append(stalled, id)
		}
	}
	h.mu.RUnlock()

	if len(stalled) == 0 {
		return
	}

	h.mu.Lock()
	for _, id := range stalled {
		// Re-check under the write lock: the subscriber may have already
		// unsubscribed (its channel closed) between the two lock regions.
		if _, ok := h.subs[id]; ok {
			h.dropLocked(id, "send buffer full")
		}
	}
	h.mu.Unlock()
}

// Len reports the current subscriber count.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
