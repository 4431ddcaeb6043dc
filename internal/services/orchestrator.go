package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wapilot/wapilot-backend/internal/apperrors"
	"github.com/wapilot/wapilot-backend/internal/engine"
	"github.com/wapilot/wapilot-backend/internal/gateway"
	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

// SessionState is the lifecycle state of one live session.
type SessionState string

const (
	StateInitializing  SessionState = "initializing"
	StateAwaitingScan  SessionState = "awaiting_scan"
	StateAuthenticated SessionState = "authenticated"
	StateReady         SessionState = "ready"
	StateFailed        SessionState = "failed"
	StateClosed        SessionState = "closed"
)

// Session is the runtime-only state of one user's live connection. Failed
// and closed are terminal: retrying means a fresh Session through
// CreateSession, never re-entry.
type Session struct {
	UserID string

	mu        sync.Mutex
	state     SessionState
	qrRetries int
	client    engine.Client
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// markTerminal moves the session into a terminal state. Returns false if it
// was already terminal, which makes teardown idempotent and re-entry safe.
func (s *Session) markTerminal(st SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFailed || s.state == StateClosed {
		return false
	}
	s.state = st
	return true
}

func (s *Session) bumpQRRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qrRetries++
	return s.qrRetries
}

// Orchestrator owns the user id → session registry, drives each session's
// lifecycle against the automation engine, and bridges inbound and outbound
// traffic through the resolver, the ledger, the event hub and the autopilot
// engine.
type Orchestrator struct {
	store     storage.Store
	hub       *gateway.Hub
	factory   engine.Factory
	resolver  *ContactResolver
	autopilot *AutopilotEngine

	mu       sync.Mutex
	sessions map[string]*Session
	// Per-user serialization of create/teardown so a handle is never read
	// mid-replacement. No global lock is held across engine calls.
	userLocks map[string]*sync.Mutex
}

// NewOrchestrator creates the session orchestrator
func NewOrchestrator(store storage.Store, hub *gateway.Hub, factory engine.Factory,
	resolver *ContactResolver, autopilot *AutopilotEngine) *Orchestrator {
	return &Orchestrator{
		store:     store,
		hub:       hub,
		factory:   factory,
		resolver:  resolver,
		autopilot: autopilot,
		sessions:  make(map[string]*Session),
		userLocks: make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) userLock(userID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		o.userLocks[userID] = l
	}
	return l
}

// CreateSession starts a new session for the user. Returns ErrNotFound for
// an unknown user. If a live session already exists the call is refused:
// logged and ignored, never surfaced and never an implicit replacement.
func (o *Orchestrator) CreateSession(userID string) error {
	user, err := o.store.GetUser(userID)
	if err != nil {
		return err
	}

	l := o.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if existing := o.GetSession(userID); existing != nil {
		log.Printf("⚠️  Session already exists for user %s, ignoring create", userID)
		return nil
	}

	client, err := o.factory.NewClient(userID)
	if err != nil {
		return fmt.Errorf("engine client for %s: %v: %w", userID, err, apperrors.ErrUpstreamFailure)
	}

	sess := &Session{UserID: userID, state: StateInitializing, client: client}
	client.OnEvent(func(ev engine.Event) {
		o.handleEvent(user, sess, ev)
	})

	o.mu.Lock()
	o.sessions[userID] = sess
	o.mu.Unlock()

	// Initialize is slow (browser spin-up on the engine side); let events
	// drive the state machine while this call is in flight.
	go func() {
		if err := client.Initialize(context.Background()); err != nil {
			log.Printf("❌ Engine initialize failed for user %s: %v", userID, err)
			o.teardown(user, sess, StateFailed, true, false)
		}
	}()

	log.Printf("🚀 Session created for user %s", userID)
	return nil
}

// GetSession returns the live session for userID, or nil. Pure lookup.
func (o *Orchestrator) GetSession(userID string) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[userID]
}

// handleEvent is the single entry point for engine events. The engine
// delivers one event at a time per session, so transitions here are
// single-threaded from the session's point of view.
func (o *Orchestrator) handleEvent(user *models.User, sess *Session, ev engine.Event) {
	switch ev.Kind {
	case engine.EventQR:
		if sess.bumpQRRetries() > engine.QRMaxRetries {
			log.Printf("❌ QR retries exhausted for user %s", user.UserID)
			o.teardown(user, sess, StateFailed, true, false)
			return
		}
		sess.setState(StateAwaitingScan)
		o.setActiveFlag(user.UserID, false)
		o.hub.Publish(user.UserID, gateway.Event{
			Type: gateway.EventTypeQR,
			Payload: map[string]any{
				"session_id": user.UserID,
				"qr":         ev.QR,
			},
		})

	case engine.EventAuthenticated:
		sess.setState(StateAuthenticated)
		o.hub.Publish(user.UserID, gateway.Event{
			Type:    gateway.EventTypeAuth,
			Payload: map[string]any{"success": true},
		})

	case engine.EventReady:
		sess.setState(StateReady)
		o.setActiveFlag(user.UserID, true)
		o.hub.Publish(user.UserID, gateway.Event{
			Type:    gateway.EventTypeReady,
			Payload: map[string]any{"success": true},
		})
		log.Printf("✅ Session ready for user %s", user.UserID)

	case engine.EventAuthFailure:
		log.Printf("❌ Authentication failed for user %s", user.UserID)
		o.setActiveFlag(user.UserID, false)
		o.hub.Publish(user.UserID, gateway.Event{
			Type:    gateway.EventTypeAuth,
			Payload: map[string]any{"success": false},
		})
		o.teardown(user, sess, StateFailed, true, false)

	case engine.EventMessage:
		// Only chat-type payloads; media, reactions etc. are ignored.
		if ev.ChatType != "chat" {
			return
		}
		o.handleInbound(user, ev)

	case engine.EventDisconnected:
		log.Printf("👋 Session disconnected for user %s", user.UserID)
		o.teardown(user, sess, StateClosed, true, true)
	}
}

// handleInbound runs the inbound pipeline: resolve contact, append to the
// ledger, push to the owner's listeners, maybe hand off to autopilot.
// Failures are logged and swallowed; one bad message must not take the
// session down.
func (o *Orchestrator) handleInbound(user *models.User, ev engine.Event) {
	contact, err := o.resolver.Resolve(ev.From, user)
	if err != nil {
		log.Printf("inbound: resolve %s for user %s: %v", ev.From, user.UserID, err)
		return
	}

	msg := &models.Message{
		Body:      ev.Body,
		Direction: models.DirectionIn,
		Timestamp: ev.Timestamp,
		ContactID: contact.ContactID,
		UserID:    user.UserID,
	}
	persisted, err := o.store.CreateMessage(msg)
	if err != nil {
		log.Printf("inbound: persist message from %s for user %s: %v", contact.Phone, user.UserID, err)
		return
	}

	o.hub.Publish(user.UserID, gateway.Event{
		Type:    gateway.EventTypeChat,
		Payload: persisted,
	})

	if contact.IsAutopilot {
		o.autopilot.HandleReply(contact, ev.Body, user)
	}
}

// SendMessage persists an outbound message and hands it to the engine.
// It requires both the user's active-session flag and a live handle; the
// two can disagree transiently and either alone is not enough. The ledger
// write happens before the engine send and is not retracted if the send
// fails: the ledger favors completeness over delivery confirmation.
func (o *Orchestrator) SendMessage(user *models.User, contact *models.Contact, text string) (*models.Message, error) {
	fresh, err := o.store.GetUser(user.UserID)
	if err != nil {
		return nil, err
	}

	sess := o.GetSession(user.UserID)
	if !fresh.ActiveSession || sess == nil {
		return nil, fmt.Errorf("user %s: %w", user.UserID, apperrors.ErrSessionUnavailable)
	}

	msg := &models.Message{
		Body:      text,
		Direction: models.DirectionOut,
		Timestamp: time.Now().Unix(),
		ContactID: contact.ContactID,
		UserID:    user.UserID,
	}
	persisted, err := o.store.CreateMessage(msg)
	if err != nil {
		return nil, err
	}

	o.hub.Publish(user.UserID, gateway.Event{
		Type:    gateway.EventTypeChat,
		Payload: persisted,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sess.client.SendMessage(ctx, DecorateNumber(contact.Phone), text); err != nil {
		return persisted, fmt.Errorf("send to %s for user %s: %v: %w",
			contact.Phone, user.UserID, err, apperrors.ErrUpstreamFailure)
	}

	return persisted, nil
}

// teardown finishes a session: terminal state, engine handle released,
// pending autopilot replies canceled, registry entry removed so a later
// CreateSession is not mistaken for a duplicate. clearFlag is false only on
// process shutdown, where the persisted flag must survive for restart
// recovery.
func (o *Orchestrator) teardown(user *models.User, sess *Session, final SessionState, clearFlag, logout bool) {
	if !sess.markTerminal(final) {
		return
	}

	// Best-effort resource release; the engine may already be gone.
	if err := sess.client.Close(); err != nil {
		log.Printf("session close for user %s: %v", user.UserID, err)
	}

	if clearFlag {
		o.setActiveFlag(user.UserID, false)
	}
	o.autopilot.CancelFor(user.UserID)

	if logout {
		o.hub.Publish(user.UserID, gateway.Event{
			Type:    gateway.EventTypeLogout,
			Payload: map[string]any{"status": true},
		})
	}

	o.mu.Lock()
	if o.sessions[user.UserID] == sess {
		delete(o.sessions, user.UserID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) setActiveFlag(userID string, active bool) {
	if err := o.store.SetActiveSession(userID, active); err != nil {
		log.Printf("set active session %v for user %s: %v", active, userID, err)
	}
}

// RecoverSessions re-attaches every user flagged with an active session
// from a previous run. Each user initializes independently; one failure
// neither blocks nor delays the others.
func (o *Orchestrator) RecoverSessions() {
	users, err := o.store.GetUsersWithActiveSession()
	if err != nil {
		log.Printf("❌ Session recovery query failed: %v", err)
		return
	}
	if len(users) == 0 {
		return
	}

	log.Printf("🔄 Recovering sessions for %d user(s)", len(users))
	for _, user := range users {
		go func(userID string) {
			if err := o.CreateSession(userID); err != nil {
				log.Printf("recover session for user %s: %v", userID, err)
			}
		}(user.UserID)
	}
}

// ActiveSessionCount returns the number of live sessions (for monitoring).
func (o *Orchestrator) ActiveSessionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// LiveUserIDs returns the ids of users with a live session (for the
// reconciliation job).
func (o *Orchestrator) LiveUserIDs() map[string]bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make(map[string]bool, len(o.sessions))
	for id := range o.sessions {
		ids[id] = true
	}
	return ids
}

// Shutdown tears down every live session. Called on process exit.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	sessions := make([]*Session, 0, len(o.sessions))
	for _, sess := range o.sessions {
		sessions = append(sessions, sess)
	}
	o.mu.Unlock()

	for _, sess := range sessions {
		user, err := o.store.GetUser(sess.UserID)
		if err != nil {
			continue
		}
		o.teardown(user, sess, StateClosed, false, false)
	}
	log.Printf("⏹️  All sessions closed (%d)", len(sessions))
}
