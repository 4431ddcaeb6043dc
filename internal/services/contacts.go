package services

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/wapilot/wapilot-backend/internal/apperrors"
	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

// networkSuffix is the decoration WhatsApp puts on chat identities.
const networkSuffix = "@c.us"

// CleanNumber strips the network suffix (and anything after it) from a chat
// identity, leaving the bare phone string. Idempotent.
func CleanNumber(id string) string {
	if i := strings.Index(id, "@"); i >= 0 {
		return id[:i]
	}
	return id
}

// DecorateNumber appends the canonical network suffix unless it is already
// present. Idempotent, and the inverse of CleanNumber on well-formed input.
func DecorateNumber(number string) string {
	if strings.HasSuffix(number, networkSuffix) {
		return number
	}
	return number + networkSuffix
}

// ContactResolver canonicalizes inbound phone identities and resolves them
// to the owning user's contact record, creating it on first sight.
type ContactResolver struct {
	store storage.Store

	// Per-(owner,phone) serialization so two concurrent inbound messages
	// from the same unseen number cannot both pass the lookup and create
	// twice. The storage layer's unique index backstops this.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewContactResolver creates a contact resolver backed by store
func NewContactResolver(store storage.Store) *ContactResolver {
	return &ContactResolver{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *ContactResolver) lockFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// Resolve returns the owner's contact for the given identity, creating it
// with autopilot enabled and no display name if the number is unseen.
func (r *ContactResolver) Resolve(phone string, owner *models.User) (*models.Contact, error) {
	canonical := CleanNumber(phone)

	l := r.lockFor(owner.UserID + "/" + canonical)
	l.Lock()
	defer l.Unlock()

	contact, err := r.store.GetContactByPhone(owner.UserID, canonical)
	if err == nil {
		return contact, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	contact = &models.Contact{
		Phone:       canonical,
		IsAutopilot: true,
		OwnerID:     owner.UserID,
	}
	created, err := r.store.CreateContact(contact)
	if err != nil {
		if apperrors.IsConflict(err) {
			// Lost a race with another writer; the row exists now.
			return r.store.GetContactByPhone(owner.UserID, canonical)
		}
		return nil, fmt.Errorf("create contact %s for %s: %w", canonical, owner.UserID, err)
	}

	log.Printf("📇 New contact %s created for user %s", canonical, owner.UserID)
	return created, nil
}
