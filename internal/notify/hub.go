package notify

import (
	"sync"

	"github.com/xaenox/actionbot/internal/models"
)

// Event is the in-app "new action" notification delivered to a user's live
// connection. Message is the redacted view of the originating message.
type Event struct {
	Name    string                 `json:"name"`
	UserID  int64                  `json:"user_id"`
	Action  *models.PersistedAction `json:"action"`
	Message models.MessageSnapshot `json:"message"`
}

// Hub fans events out to per-user subscribers. Publishing never blocks;
// events for slow subscribers are dropped.
type Hub struct {
	mu   sync.Mutex
	subs map[int64][]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64][]chan Event)}
}

// Subscribe registers a live connection for the user. The returned cancel
// function removes the subscription and closes the channel.
func (h *Hub) Subscribe(userID int64) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	h.subs[userID] = append(h.subs[userID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subs[userID]
		for i, sub := range subs {
			if sub == ch {
				h.subs[userID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// Publish delivers the event to every live subscriber of the user.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[event.UserID] {
		select {
		case ch <- event:
		default:
		}
	}
}
