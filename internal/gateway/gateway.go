// Package gateway fans session events out to the listeners subscribed
// under one user id. Delivery is best-effort: no listener means the event
// is dropped, and a listener that cannot keep up loses events rather than
// blocking the publisher.
package gateway

import (
	"log"
	"sync"
)

// Event is the typed envelope pushed to listeners.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Event types pushed by the session orchestrator.
const (
	EventTypeQR     = "qr"
	EventTypeAuth   = "authentication"
	EventTypeReady  = "ready"
	EventTypeChat   = "chat"
	EventTypeLogout = "logout"
)

// Sink receives a copy of every published event, e.g. for relaying to an
// external broker. Sinks must not block.
type Sink interface {
	Relay(userID string, ev Event)
}

const listenerBuffer = 16

// Hub is the in-process event gateway. Listeners subscribe under a user id
// and receive only that user's events.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]map[string]chan Event
	sinks     []Sink
}

// NewHub creates an event hub with optional relay sinks
func NewHub(sinks ...Sink) *Hub {
	return &Hub{
		listeners: make(map[string]map[string]chan Event),
		sinks:     sinks,
	}
}

// Subscribe registers a listener under userID and returns its channel.
// Subscribing the same listener id again is a no-op returning the existing
// channel, so a listener never receives duplicates.
func (h *Hub) Subscribe(userID, listenerID string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	byListener, ok := h.listeners[userID]
	if !ok {
		byListener = make(map[string]chan Event)
		h.listeners[userID] = byListener
	}
	if ch, ok := byListener[listenerID]; ok {
		return ch
	}

	ch := make(chan Event, listenerBuffer)
	byListener[listenerID] = ch
	return ch
}

// Unsubscribe removes a listener and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unsubscribe(userID, listenerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byListener, ok := h.listeners[userID]
	if !ok {
		return
	}
	ch, ok := byListener[listenerID]
	if !ok {
		return
	}
	delete(byListener, listenerID)
	if len(byListener) == 0 {
		delete(h.listeners, userID)
	}
	close(ch)
}

// Publish delivers ev to every current subscriber of userID. Publishing to
// a user with no subscribers is not an error. A full listener channel drops
// the event for that listener only.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.RLock()
	for listenerID, ch := range h.listeners[userID] {
		select {
		case ch <- ev:
		default:
			log.Printf("event gateway: dropping %s event for slow listener %s/%s",
				ev.Type, userID, listenerID)
		}
	}
	sinks := h.sinks
	h.mu.RUnlock()

	for _, sink := range sinks {
		sink.Relay(userID, ev)
	}
}

// ListenerCount returns the number of listeners subscribed under userID
// (for monitoring).
func (h *Hub) ListenerCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[userID])
}
