package services

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

// FallbackReply is sent when no keyword rule matches an inbound body.
const FallbackReply = "I couldn't understand your query. Our customer support representative will connect with you in a moment."

// ReplySender dispatches one outbound message for a user. The session
// orchestrator implements it; the indirection keeps the autopilot engine
// free of session bookkeeping.
type ReplySender interface {
	SendMessage(user *models.User, contact *models.Contact, text string) (*models.Message, error)
}

// AutopilotEngine decides whether and what to auto-reply and schedules the
// send without blocking inbound processing. Timers are tracked per user so
// a session teardown can cancel whatever is still pending (best-effort: a
// timer that already fired runs to completion and fails cleanly through the
// sender's own session checks).
type AutopilotEngine struct {
	store  storage.Store
	sender ReplySender

	mu     sync.Mutex
	timers map[string]map[*replyTimer]struct{}
}

// replyTimer is one scheduled reply. The holder is registered before the
// timer starts so a zero-delay fire can never miss its own registration.
type replyTimer struct {
	t *time.Timer
}

// NewAutopilotEngine creates an autopilot engine reading rules from store
func NewAutopilotEngine(store storage.Store) *AutopilotEngine {
	return &AutopilotEngine{
		store:  store,
		timers: make(map[string]map[*replyTimer]struct{}),
	}
}

// SetSender wires the outbound dispatcher (call from main.go before any
// session exists)
func (a *AutopilotEngine) SetSender(s ReplySender) {
	a.sender = s
}

// GetReply scans all keyword rules in stored order and returns the first
// whose keyword is a literal substring of body, or nil if none matches.
// Plain substring containment: no tokenization, no case folding.
func (a *AutopilotEngine) GetReply(body string) (*models.Keyword, error) {
	rules, err := a.store.GetAllKeywords()
	if err != nil {
		return nil, err
	}
	for _, kr := range rules {
		if strings.Contains(body, kr.Keyword) {
			return kr, nil
		}
	}
	return nil, nil
}

// HandleReply looks up the reply for body and schedules its dispatch after
// the rule's delay (immediately for the fallback). Autopilot eligibility
// was checked by the caller at schedule time; session liveness is
// re-checked at fire time by the sender itself.
func (a *AutopilotEngine) HandleReply(contact *models.Contact, body string, user *models.User) {
	reply := FallbackReply
	delay := time.Duration(0)

	kr, err := a.GetReply(body)
	if err != nil {
		log.Printf("autopilot: rule lookup failed for user %s: %v", user.UserID, err)
	} else if kr != nil {
		reply = kr.Reply
		delay = time.Duration(kr.ReplyAfter) * time.Second
	}

	a.schedule(user, contact, reply, delay)
}

func (a *AutopilotEngine) schedule(user *models.User, contact *models.Contact, reply string, delay time.Duration) {
	a.mu.Lock()
	byUser, ok := a.timers[user.UserID]
	if !ok {
		byUser = make(map[*replyTimer]struct{})
		a.timers[user.UserID] = byUser
	}
	rt := &replyTimer{}
	byUser[rt] = struct{}{}
	rt.t = time.AfterFunc(delay, func() {
		a.forget(user.UserID, rt)
		if _, err := a.sender.SendMessage(user, contact, reply); err != nil {
			// Not retried and not surfaced to any user.
			log.Printf("autopilot: reply to %s for user %s failed: %v",
				contact.Phone, user.UserID, err)
		}
	})
	a.mu.Unlock()
}

func (a *AutopilotEngine) forget(userID string, rt *replyTimer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byUser, ok := a.timers[userID]
	if !ok {
		return
	}
	delete(byUser, rt)
	if len(byUser) == 0 {
		delete(a.timers, userID)
	}
}

// CancelFor stops every pending reply timer for a user. Called when that
// user's session goes down.
func (a *AutopilotEngine) CancelFor(userID string) {
	a.mu.Lock()
	byUser := a.timers[userID]
	delete(a.timers, userID)
	a.mu.Unlock()

	for rt := range byUser {
		rt.t.Stop()
	}
	if len(byUser) > 0 {
		log.Printf("autopilot: canceled %d pending replies for user %s", len(byUser), userID)
	}
}

// PendingFor returns the number of scheduled replies for a user (for
// monitoring)
func (a *AutopilotEngine) PendingFor(userID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers[userID])
}
