package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioFactory creates clients backed by the Twilio WhatsApp API. There is
// no QR phase: Initialize reports authenticated and ready immediately, and
// inbound traffic arrives through the Twilio webhook, which routes each
// message to the owning client via Deliver.
type TwilioFactory struct {
	client *twilio.RestClient
	from   string

	mu      sync.RWMutex
	clients map[string]*twilioClient
}

// NewTwilioFactory creates a Twilio-backed engine factory
func NewTwilioFactory(accountSID, authToken, from string) (*TwilioFactory, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioFactory{
		client:  client,
		from:    from,
		clients: make(map[string]*twilioClient),
	}, nil
}

func (f *TwilioFactory) NewClient(userID string) (Client, error) {
	c := &twilioClient{factory: f, userID: userID}
	f.mu.Lock()
	f.clients[userID] = c
	f.mu.Unlock()
	return c, nil
}

// Deliver routes one inbound webhook message to the live client for userID.
// Returns false if that user has no client registered.
func (f *TwilioFactory) Deliver(userID, from, body string, timestamp int64) bool {
	f.mu.RLock()
	c, ok := f.clients[userID]
	f.mu.RUnlock()
	if !ok {
		return false
	}
	c.emit(Event{
		Kind:      EventMessage,
		From:      from,
		Body:      body,
		ChatType:  "chat",
		Timestamp: timestamp,
	})
	return true
}

type twilioClient struct {
	factory *TwilioFactory
	userID  string

	mu      sync.RWMutex
	handler func(Event)
	closed  bool
}

func (c *twilioClient) OnEvent(fn func(Event)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

func (c *twilioClient) Initialize(ctx context.Context) error {
	// The REST API needs no interactive authentication.
	c.emit(Event{Kind: EventAuthenticated})
	c.emit(Event{Kind: EventReady})
	return nil
}

func (c *twilioClient) SendMessage(ctx context.Context, recipient, text string) error {
	// Recipients arrive in decorated form; Twilio wants the bare number.
	if i := strings.Index(recipient, "@"); i >= 0 {
		recipient = recipient[:i]
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(c.factory.from)
	params.SetTo(fmt.Sprintf("whatsapp:%s", recipient))
	params.SetBody(text)

	resp, err := c.factory.client.Api.CreateMessage(params)
	if err != nil {
		log.Printf("❌ Failed to send WhatsApp message: %v", err)
		return err
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		return fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, *resp.ErrorMessage)
	}

	log.Printf("✅ WhatsApp message sent! SID: %s", *resp.Sid)
	return nil
}

func (c *twilioClient) Close() error {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()
	if alreadyClosed {
		return nil
	}

	c.factory.mu.Lock()
	delete(c.factory.clients, c.userID)
	c.factory.mu.Unlock()

	c.emit(Event{Kind: EventDisconnected})
	return nil
}

func (c *twilioClient) emit(ev Event) {
	c.mu.RLock()
	fn := c.handler
	closed := c.closed
	c.mu.RUnlock()
	if fn != nil && (!closed || ev.Kind == EventDisconnected) {
		fn(ev)
	}
}
