// Package engine defines the capability boundary to the external WhatsApp
// automation engine. The orchestrator only ever sees this interface and the
// six event kinds below; transport details stay inside the adapters.
package engine

import "context"

// QRMaxRetries is the automation engine's own retry ceiling for QR
// challenges; exceeding it fails the session.
const QRMaxRetries = 3

// EventKind identifies one of the six session events an engine delivers.
type EventKind string

const (
	EventQR            EventKind = "qr"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventAuthFailure   EventKind = "auth_failure"
	EventMessage       EventKind = "message"
	EventDisconnected  EventKind = "disconnected"
)

// Event is one asynchronous session event. QR carries the challenge payload
// for EventQR; From/Body/ChatType/Timestamp are set for EventMessage.
type Event struct {
	Kind      EventKind `json:"kind"`
	QR        string    `json:"qr,omitempty"`
	From      string    `json:"from,omitempty"`
	Body      string    `json:"body,omitempty"`
	ChatType  string    `json:"chat_type,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
}

// Client is one live connection to the automation engine for a single user.
// Implementations deliver their events one at a time, so the handler does
// not need its own serialization.
type Client interface {
	// Initialize starts the connection; events begin flowing to the
	// handler registered with OnEvent before this call.
	Initialize(ctx context.Context) error

	// SendMessage hands one outbound text to the engine. Delivery after a
	// successful return is not guaranteed.
	SendMessage(ctx context.Context, recipient, text string) error

	// OnEvent registers the single event handler. Must be called before
	// Initialize.
	OnEvent(fn func(Event))

	// Close tears down the connection, best-effort.
	Close() error
}

// Factory creates engine clients, one per user session.
type Factory interface {
	NewClient(userID string) (Client, error)
}
