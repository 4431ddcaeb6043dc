package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// BridgeFactory creates clients that talk to a whatsapp-web automation
// sidecar over HTTP: JSON commands for start/send/stop and an SSE stream
// for session events.
type BridgeFactory struct {
	baseURL string
	http    *http.Client
}

// NewBridgeFactory creates a factory for the given sidecar base URL,
// e.g. http://localhost:3000.
func NewBridgeFactory(baseURL string) *BridgeFactory {
	return &BridgeFactory{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *BridgeFactory) NewClient(userID string) (Client, error) {
	if f.baseURL == "" {
		return nil, fmt.Errorf("bridge URL not configured")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &bridgeClient{
		baseURL: f.baseURL,
		userID:  userID,
		http:    f.http,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

type bridgeClient struct {
	baseURL string
	userID  string
	http    *http.Client
	handler func(Event)
	ctx     context.Context
	cancel  context.CancelFunc
}

func (c *bridgeClient) OnEvent(fn func(Event)) {
	c.handler = fn
}

func (c *bridgeClient) Initialize(ctx context.Context) error {
	if err := c.post(ctx, "/start", nil); err != nil {
		return fmt.Errorf("bridge start for %s: %w", c.userID, err)
	}
	go c.readEvents()
	return nil
}

type bridgeSendPayload struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

func (c *bridgeClient) SendMessage(ctx context.Context, recipient, text string) error {
	err := c.post(ctx, "/send", &bridgeSendPayload{Recipient: recipient, Message: text})
	if err != nil {
		return fmt.Errorf("bridge send for %s: %w", c.userID, err)
	}
	return nil
}

func (c *bridgeClient) Close() error {
	c.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.post(ctx, "/stop", nil)
}

func (c *bridgeClient) post(ctx context.Context, action string, payload any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}
	url := fmt.Sprintf("%s/sessions/%s%s", c.baseURL, c.userID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bridge returned %s", resp.Status)
	}
	return nil
}

// readEvents connects to the per-session SSE stream and pumps events to the
// handler until the stream ends or the client is closed. Lines follow the
// text/event-stream format; each data: line is one JSON-encoded Event.
func (c *bridgeClient) readEvents() {
	url := fmt.Sprintf("%s/sessions/%s/events", c.baseURL, c.userID)
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("bridge event request for %s: %v", c.userID, err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	// No timeout here: the stream stays open for the life of the session.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		log.Printf("bridge event stream for %s: %v", c.userID, err)
		c.emit(Event{Kind: EventDisconnected})
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			log.Printf("bridge event decode for %s: %v", c.userID, err)
			continue
		}
		c.emit(ev)
	}

	if c.ctx.Err() == nil {
		// Stream dropped underneath us: surface it as a disconnect.
		c.emit(Event{Kind: EventDisconnected})
	}
}

func (c *bridgeClient) emit(ev Event) {
	if c.handler != nil {
		c.handler(ev)
	}
}
