package gateway

import (
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"
)

// NATSRelay mirrors every published event onto a NATS subject per user, so
// out-of-process consumers (dashboards, audit pipelines) can follow session
// traffic without holding an in-process subscription.
type NATSRelay struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSRelay connects to the NATS server at url. Subjects are
// <prefix>.<userID>.
func NewNATSRelay(url, prefix string) (*NATSRelay, error) {
	nc, err := nats.Connect(url, nats.Name("wapilot-event-relay"))
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "whatsapp.events"
	}
	log.Printf("✅ Connected to NATS at %s", url)
	return &NATSRelay{conn: nc, prefix: prefix}, nil
}

// Relay publishes the event, fire-and-forget. Encoding or publish failures
// are logged and dropped; the in-process listeners already got their copy.
func (r *NATSRelay) Relay(userID string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("nats relay: encode event for %s: %v", userID, err)
		return
	}
	if err := r.conn.Publish(r.prefix+"."+userID, data); err != nil {
		log.Printf("nats relay: publish for %s: %v", userID, err)
	}
}

// Close drains and closes the underlying connection
func (r *NATSRelay) Close() {
	if err := r.conn.Drain(); err != nil {
		r.conn.Close()
	}
}
