package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wapilot/wapilot-backend/internal/apperrors"
	"github.com/wapilot/wapilot-backend/internal/engine"
	"github.com/wapilot/wapilot-backend/internal/gateway"
	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/services"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

type fakeClient struct {
	mu       sync.Mutex
	handler  func(engine.Event)
	sent     [][2]string
	failSend bool
	initErr  error
	closed   bool
}

func (c *fakeClient) OnEvent(fn func(engine.Event)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

func (c *fakeClient) Initialize(ctx context.Context) error { return c.initErr }

func (c *fakeClient) SendMessage(ctx context.Context, recipient, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("engine rejected send")
	}
	c.sent = append(c.sent, [2]string{recipient, text})
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) emit(ev engine.Event) {
	c.mu.Lock()
	fn := c.handler
	c.mu.Unlock()
	fn(ev)
}

func (c *fakeClient) sentMessages() [][2]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][2]string(nil), c.sent...)
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeFactory struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
	failFor map[string]bool
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{clients: make(map[string]*fakeClient), failFor: make(map[string]bool)}
}

func (f *fakeFactory) NewClient(userID string) (engine.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[userID] {
		return nil, errors.New("engine unavailable")
	}
	c := &fakeClient{}
	f.clients[userID] = c
	return c, nil
}

func (f *fakeFactory) client(userID string) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[userID]
}

type fixture struct {
	store     *storage.MemoryStore
	hub       *gateway.Hub
	factory   *fakeFactory
	autopilot *services.AutopilotEngine
	orch      *services.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	hub := gateway.NewHub()
	factory := newFakeFactory()
	resolver := services.NewContactResolver(store)
	autopilot := services.NewAutopilotEngine(store)
	orch := services.NewOrchestrator(store, hub, factory, resolver, autopilot)
	autopilot.SetSender(orch)
	return &fixture{store: store, hub: hub, factory: factory, autopilot: autopilot, orch: orch}
}

func (f *fixture) createUser(t *testing.T, email string) *models.User {
	t.Helper()
	user, err := f.store.CreateUser(&models.User{FirstName: "Test", LastName: "Agent", Email: email})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

// createReadySession brings up a session and drives it to READY.
func (f *fixture) createReadySession(t *testing.T, user *models.User) *fakeClient {
	t.Helper()
	if err := f.orch.CreateSession(user.UserID); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	client := f.factory.client(user.UserID)
	if client == nil {
		t.Fatal("factory never created a client")
	}
	client.emit(engine.Event{Kind: engine.EventAuthenticated})
	client.emit(engine.Event{Kind: engine.EventReady})
	return client
}

func drain(ch <-chan gateway.Event) []gateway.Event {
	var evs []gateway.Event
	for {
		select {
		case ev := <-ch:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestCreateSessionUnknownUser(t *testing.T) {
	f := newFixture(t)
	err := f.orch.CreateSession("ghost")
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateSessionRefusesDuplicate(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")

	f.createReadySession(t, user)
	first := f.orch.GetSession(user.UserID)

	// Second create is refused silently; the live session survives.
	if err := f.orch.CreateSession(user.UserID); err != nil {
		t.Fatalf("duplicate create must not surface an error, got %v", err)
	}
	if f.orch.GetSession(user.UserID) != first {
		t.Fatal("duplicate create replaced the live session")
	}
	if f.orch.ActiveSessionCount() != 1 {
		t.Fatalf("expected 1 live session, got %d", f.orch.ActiveSessionCount())
	}
}

func TestQRLifecycle(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")
	events := f.hub.Subscribe(user.UserID, "test")

	if err := f.orch.CreateSession(user.UserID); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	client := f.factory.client(user.UserID)

	client.emit(engine.Event{Kind: engine.EventQR, QR: "challenge-1"})

	sess := f.orch.GetSession(user.UserID)
	if sess.State() != services.StateAwaitingScan {
		t.Fatalf("expected awaiting_scan, got %s", sess.State())
	}
	fresh, _ := f.store.GetUser(user.UserID)
	if fresh.ActiveSession {
		t.Fatal("active flag must be cleared while awaiting scan")
	}

	evs := drain(events)
	if len(evs) != 1 || evs[0].Type != gateway.EventTypeQR {
		t.Fatalf("expected one qr event, got %+v", evs)
	}

	client.emit(engine.Event{Kind: engine.EventAuthenticated})
	if sess.State() != services.StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", sess.State())
	}

	client.emit(engine.Event{Kind: engine.EventReady})
	if sess.State() != services.StateReady {
		t.Fatalf("expected ready, got %s", sess.State())
	}
	fresh, _ = f.store.GetUser(user.UserID)
	if !fresh.ActiveSession {
		t.Fatal("active flag must be set on ready")
	}

	evs = drain(events)
	if len(evs) != 2 || evs[0].Type != gateway.EventTypeAuth || evs[1].Type != gateway.EventTypeReady {
		t.Fatalf("expected authentication then ready, got %+v", evs)
	}
}

func TestQRRetryExhaustionFailsSession(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")

	if err := f.orch.CreateSession(user.UserID); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	client := f.factory.client(user.UserID)

	for i := 0; i < engine.QRMaxRetries+1; i++ {
		client.emit(engine.Event{Kind: engine.EventQR, QR: "challenge"})
	}

	if f.orch.GetSession(user.UserID) != nil {
		t.Fatal("session must be removed after retry exhaustion")
	}
	if !client.isClosed() {
		t.Fatal("engine handle must be released")
	}
}

func TestAuthFailureTearsDown(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")
	events := f.hub.Subscribe(user.UserID, "test")

	if err := f.orch.CreateSession(user.UserID); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	client := f.factory.client(user.UserID)
	client.emit(engine.Event{Kind: engine.EventAuthFailure})

	if f.orch.GetSession(user.UserID) != nil {
		t.Fatal("failed session must be removed from the registry")
	}
	fresh, _ := f.store.GetUser(user.UserID)
	if fresh.ActiveSession {
		t.Fatal("active flag must be cleared on auth failure")
	}

	evs := drain(events)
	if len(evs) != 1 || evs[0].Type != gateway.EventTypeAuth {
		t.Fatalf("expected a failed authentication event, got %+v", evs)
	}
	payload, ok := evs[0].Payload.(map[string]any)
	if !ok || payload["success"] != false {
		t.Fatalf("expected success=false payload, got %+v", evs[0].Payload)
	}
	if !client.isClosed() {
		t.Fatal("engine handle must be released")
	}
}

func TestDisconnectPublishesLogoutAndAllowsRecreate(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")
	client := f.createReadySession(t, user)
	events := f.hub.Subscribe(user.UserID, "test")

	client.emit(engine.Event{Kind: engine.EventDisconnected})

	if f.orch.GetSession(user.UserID) != nil {
		t.Fatal("closed session must be removed from the registry")
	}
	fresh, _ := f.store.GetUser(user.UserID)
	if fresh.ActiveSession {
		t.Fatal("active flag must be cleared on disconnect")
	}
	evs := drain(events)
	if len(evs) != 1 || evs[0].Type != gateway.EventTypeLogout {
		t.Fatalf("expected logout event, got %+v", evs)
	}

	// A fresh session object, not a re-entry into the old machine.
	if err := f.orch.CreateSession(user.UserID); err != nil {
		t.Fatalf("recreate after disconnect failed: %v", err)
	}
	if f.orch.GetSession(user.UserID) == nil {
		t.Fatal("expected a new live session")
	}
}

func TestSendMessageRequiresFlagAndHandle(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")
	contact, _ := f.store.CreateContact(&models.Contact{
		Phone: "15551234567", IsAutopilot: true, OwnerID: user.UserID,
	})

	// No session at all.
	_, err := f.orch.SendMessage(user, contact, "hi")
	if !errors.Is(err, apperrors.ErrSessionUnavailable) {
		t.Fatalf("expected session unavailable, got %v", err)
	}

	// Stale handle: session exists but flag is false.
	f.createReadySession(t, user)
	if err := f.store.SetActiveSession(user.UserID, false); err != nil {
		t.Fatalf("SetActiveSession failed: %v", err)
	}
	_, err = f.orch.SendMessage(user, contact, "hi")
	if !errors.Is(err, apperrors.ErrSessionUnavailable) {
		t.Fatalf("expected session unavailable with stale handle, got %v", err)
	}

	// Ledger untouched by refused sends.
	msgs, _ := f.store.GetMessages(user.UserID, contact.ContactID)
	if len(msgs) != 0 {
		t.Fatalf("refused sends must not reach the ledger, got %d entries", len(msgs))
	}
}

func TestSendMessagePersistsBeforeEngineSend(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")
	contact, _ := f.store.CreateContact(&models.Contact{
		Phone: "15551234567", IsAutopilot: true, OwnerID: user.UserID,
	})
	client := f.createReadySession(t, user)
	events := f.hub.Subscribe(user.UserID, "test")

	msg, err := f.orch.SendMessage(user, contact, "hello there")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.Direction != models.DirectionOut || msg.Body != "hello there" {
		t.Fatalf("unexpected persisted message: %+v", msg)
	}

	sent := client.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected one engine send, got %d", len(sent))
	}
	if sent[0][0] != "15551234567@c.us" {
		t.Fatalf("recipient must be decorated, got %q", sent[0][0])
	}

	evs := drain(events)
	if len(evs) != 1 || evs[0].Type != gateway.EventTypeChat {
		t.Fatalf("expected one chat event, got %+v", evs)
	}
}

func TestSendMessageKeepsLedgerEntryOnEngineFailure(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")
	contact, _ := f.store.CreateContact(&models.Contact{
		Phone: "15551234567", IsAutopilot: true, OwnerID: user.UserID,
	})
	client := f.createReadySession(t, user)
	client.failSend = true

	msg, err := f.orch.SendMessage(user, contact, "hello")
	if !errors.Is(err, apperrors.ErrUpstreamFailure) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	if msg == nil {
		t.Fatal("persisted message must be returned even when the send fails")
	}

	msgs, _ := f.store.GetMessages(user.UserID, contact.ContactID)
	if len(msgs) != 1 {
		t.Fatalf("ledger must keep the record, got %d entries", len(msgs))
	}
}

func TestInboundMessageEndToEnd(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")
	contact, _ := f.store.CreateContact(&models.Contact{
		Phone: "15551234567", IsAutopilot: true, OwnerID: user.UserID,
	})
	seedRules(t, f.store, &models.Keyword{Keyword: "price", Reply: "$10", ReplyAfter: 1})

	client := f.createReadySession(t, user)
	events := f.hub.Subscribe(user.UserID, "test")

	start := time.Now()
	client.emit(engine.Event{
		Kind: engine.EventMessage, ChatType: "chat",
		From: "15551234567@c.us", Body: "what is the price?", Timestamp: 1700000000,
	})

	// Resolver must reuse the existing contact.
	contacts, _ := f.store.GetContactsByOwner(user.UserID)
	if len(contacts) != 1 {
		t.Fatalf("expected no new contact, got %d", len(contacts))
	}

	msgs, _ := f.store.GetMessages(user.UserID, contact.ContactID)
	if len(msgs) != 1 || msgs[0].Direction != models.DirectionIn || msgs[0].Timestamp != 1700000000 {
		t.Fatalf("expected one inbound ledger entry, got %+v", msgs)
	}

	evs := drain(events)
	if len(evs) != 1 || evs[0].Type != gateway.EventTypeChat {
		t.Fatalf("expected inbound chat event, got %+v", evs)
	}

	// The delayed autopilot reply lands in the ledger and on the wire.
	waitFor(t, 3*time.Second, func() bool {
		msgs, _ := f.store.GetMessages(user.UserID, contact.ContactID)
		return len(msgs) == 2
	})
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("autopilot reply fired after %v, before the configured delay", elapsed)
	}

	msgs, _ = f.store.GetMessages(user.UserID, contact.ContactID)
	if msgs[1].Direction != models.DirectionOut || msgs[1].Body != "$10" {
		t.Fatalf("unexpected outbound entry: %+v", msgs[1])
	}
	sent := client.sentMessages()
	if len(sent) != 1 || sent[0][1] != "$10" {
		t.Fatalf("expected engine send of the reply, got %+v", sent)
	}
}

func TestInboundFromUnseenPhoneCreatesContact(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")
	client := f.createReadySession(t, user)

	client.emit(engine.Event{
		Kind: engine.EventMessage, ChatType: "chat",
		From: "15559998888@c.us", Body: "hello", Timestamp: 1700000000,
	})

	contacts, _ := f.store.GetContactsByOwner(user.UserID)
	if len(contacts) != 1 {
		t.Fatalf("expected exactly one new contact, got %d", len(contacts))
	}
	created := contacts[0]
	if created.Phone != "15559998888" || !created.IsAutopilot {
		t.Fatalf("unexpected contact: %+v", created)
	}
}

func TestInboundIgnoresNonChatPayloads(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")
	client := f.createReadySession(t, user)

	client.emit(engine.Event{
		Kind: engine.EventMessage, ChatType: "image",
		From: "15559998888@c.us", Body: "caption",
	})

	contacts, _ := f.store.GetContactsByOwner(user.UserID)
	if len(contacts) != 0 {
		t.Fatalf("non-chat payloads must be ignored, got %d contacts", len(contacts))
	}
}

func TestAutopilotDisabledContactGetsNoReply(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")
	contact, _ := f.store.CreateContact(&models.Contact{
		Phone: "15551234567", IsAutopilot: false, OwnerID: user.UserID,
	})
	client := f.createReadySession(t, user)

	client.emit(engine.Event{
		Kind: engine.EventMessage, ChatType: "chat",
		From: "15551234567@c.us", Body: "hello", Timestamp: 1700000000,
	})

	if f.autopilot.PendingFor(user.UserID) != 0 {
		t.Fatal("no reply may be scheduled for an autopilot-off contact")
	}
	time.Sleep(100 * time.Millisecond)
	msgs, _ := f.store.GetMessages(user.UserID, contact.ContactID)
	if len(msgs) != 1 {
		t.Fatalf("expected only the inbound entry, got %d", len(msgs))
	}
}

func TestDisconnectCancelsPendingAutopilotReplies(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@example.com")
	if _, err := f.store.CreateContact(&models.Contact{
		Phone: "15551234567", IsAutopilot: true, OwnerID: user.UserID,
	}); err != nil {
		t.Fatalf("CreateContact failed: %v", err)
	}
	seedRules(t, f.store, &models.Keyword{Keyword: "price", Reply: "$10", ReplyAfter: 2})
	client := f.createReadySession(t, user)

	client.emit(engine.Event{
		Kind: engine.EventMessage, ChatType: "chat",
		From: "15551234567@c.us", Body: "price?", Timestamp: 1700000000,
	})
	if f.autopilot.PendingFor(user.UserID) != 1 {
		t.Fatal("expected a pending reply")
	}

	client.emit(engine.Event{Kind: engine.EventDisconnected})
	if f.autopilot.PendingFor(user.UserID) != 0 {
		t.Fatal("teardown must cancel pending replies")
	}
}

func TestRecoverSessionsIsIndependentPerUser(t *testing.T) {
	f := newFixture(t)
	broken := f.createUser(t, "broken@example.com")
	healthy := f.createUser(t, "healthy@example.com")
	for _, u := range []*models.User{broken, healthy} {
		if err := f.store.SetActiveSession(u.UserID, true); err != nil {
			t.Fatalf("SetActiveSession failed: %v", err)
		}
	}
	f.factory.failFor[broken.UserID] = true

	f.orch.RecoverSessions()

	waitFor(t, 2*time.Second, func() bool {
		return f.orch.GetSession(healthy.UserID) != nil
	})
	if f.orch.GetSession(broken.UserID) != nil {
		t.Fatal("failed recovery must not leave a session behind")
	}
}

func TestShutdownClosesAllSessionsButKeepsFlags(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "a@example.com")
	b := f.createUser(t, "b@example.com")
	clientA := f.createReadySession(t, a)
	clientB := f.createReadySession(t, b)

	f.orch.Shutdown()

	if f.orch.ActiveSessionCount() != 0 {
		t.Fatalf("expected no live sessions, got %d", f.orch.ActiveSessionCount())
	}
	if !clientA.isClosed() || !clientB.isClosed() {
		t.Fatal("engine handles must be released on shutdown")
	}

	// Flags survive so the next boot can recover both sessions.
	active, _ := f.store.GetUsersWithActiveSession()
	if len(active) != 2 {
		t.Fatalf("expected both flags to survive shutdown, got %d", len(active))
	}
}
