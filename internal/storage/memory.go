package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wapilot/wapilot-backend/internal/apperrors"
	"github.com/wapilot/wapilot-backend/internal/models"
)

// MemoryStore holds all data in memory, for tests and local development
type MemoryStore struct {
	users    map[string]*models.User
	contacts map[string]*models.Contact
	messages map[string]*models.Message
	keywords map[string]*models.Keyword

	// Mutexes for thread safety
	userMu    sync.RWMutex
	contactMu sync.RWMutex
	messageMu sync.RWMutex
	keywordMu sync.RWMutex

	// Monotonic sequence standing in for the database row order
	seqMu sync.Mutex
	seq   uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*models.User),
		contacts: make(map[string]*models.Contact),
		messages: make(map[string]*models.Message),
		keywords: make(map[string]*models.Keyword),
	}
}

func (m *MemoryStore) nextID() uint {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	m.seq++
	return m.seq
}

// User operations

func (m *MemoryStore) CreateUser(user *models.User) (*models.User, error) {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return nil, fmt.Errorf("user %s: %w", user.Email, apperrors.ErrConflict)
		}
	}

	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = models.RoleAgent
	}
	user.ID = m.nextID()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	m.users[user.UserID] = user
	return user, nil
}

func (m *MemoryStore) GetUser(userID string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, exists := m.users[userID]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", userID, apperrors.ErrNotFound)
	}
	return user, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, apperrors.ErrNotFound)
}

func (m *MemoryStore) GetUserByWhatsappNumber(number string) (*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	for _, user := range m.users {
		if user.WhatsappNumber != "" && user.WhatsappNumber == number {
			return user, nil
		}
	}
	return nil, fmt.Errorf("user with number %s: %w", number, apperrors.ErrNotFound)
}

func (m *MemoryStore) GetAllUsers() ([]*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemoryStore) GetUsersWithActiveSession() ([]*models.User, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	var users []*models.User
	for _, user := range m.users {
		if user.ActiveSession {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemoryStore) UpdateUser(user *models.User) error {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	if _, exists := m.users[user.UserID]; !exists {
		return fmt.Errorf("user %s: %w", user.UserID, apperrors.ErrNotFound)
	}
	user.UpdatedAt = time.Now()
	m.users[user.UserID] = user
	return nil
}

func (m *MemoryStore) SetActiveSession(userID string, active bool) error {
	m.userMu.Lock()
	defer m.userMu.Unlock()

	user, exists := m.users[userID]
	if !exists {
		return fmt.Errorf("user %s: %w", userID, apperrors.ErrNotFound)
	}
	user.ActiveSession = active
	user.UpdatedAt = time.Now()
	return nil
}

// Contact operations

func (m *MemoryStore) CreateContact(contact *models.Contact) (*models.Contact, error) {
	m.contactMu.Lock()
	defer m.contactMu.Unlock()

	// Same uniqueness the database enforces with idx_contact_owner_phone
	for _, c := range m.contacts {
		if c.OwnerID == contact.OwnerID && c.Phone == contact.Phone {
			return nil, fmt.Errorf("contact %s for owner %s: %w",
				contact.Phone, contact.OwnerID, apperrors.ErrConflict)
		}
	}

	if contact.ContactID == "" {
		contact.ContactID = uuid.NewString()
	}
	contact.ID = m.nextID()
	contact.CreatedAt = time.Now()
	contact.UpdatedAt = contact.CreatedAt

	m.contacts[contact.ContactID] = contact
	return contact, nil
}

func (m *MemoryStore) GetContact(ownerID, contactID string) (*models.Contact, error) {
	m.contactMu.RLock()
	defer m.contactMu.RUnlock()

	contact, exists := m.contacts[contactID]
	if !exists || contact.OwnerID != ownerID {
		return nil, fmt.Errorf("contact %s: %w", contactID, apperrors.ErrNotFound)
	}
	return contact, nil
}

func (m *MemoryStore) GetContactByID(contactID string) (*models.Contact, error) {
	m.contactMu.RLock()
	defer m.contactMu.RUnlock()

	contact, exists := m.contacts[contactID]
	if !exists {
		return nil, fmt.Errorf("contact %s: %w", contactID, apperrors.ErrNotFound)
	}
	return contact, nil
}

func (m *MemoryStore) GetContactByPhone(ownerID, phone string) (*models.Contact, error) {
	m.contactMu.RLock()
	defer m.contactMu.RUnlock()

	for _, contact := range m.contacts {
		if contact.OwnerID == ownerID && contact.Phone == phone {
			return contact, nil
		}
	}
	return nil, fmt.Errorf("contact with phone %s: %w", phone, apperrors.ErrNotFound)
}

func (m *MemoryStore) GetContactsByOwner(ownerID string) ([]*models.Contact, error) {
	m.contactMu.RLock()
	defer m.contactMu.RUnlock()

	var contacts []*models.Contact
	for _, contact := range m.contacts {
		if contact.OwnerID == ownerID {
			contacts = append(contacts, contact)
		}
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })
	return contacts, nil
}

func (m *MemoryStore) GetAllContacts() ([]*models.Contact, error) {
	m.contactMu.RLock()
	defer m.contactMu.RUnlock()

	contacts := make([]*models.Contact, 0, len(m.contacts))
	for _, contact := range m.contacts {
		contacts = append(contacts, contact)
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })
	return contacts, nil
}

func (m *MemoryStore) UpdateContact(contact *models.Contact) error {
	m.contactMu.Lock()
	defer m.contactMu.Unlock()

	if _, exists := m.contacts[contact.ContactID]; !exists {
		return fmt.Errorf("contact %s: %w", contact.ContactID, apperrors.ErrNotFound)
	}
	contact.UpdatedAt = time.Now()
	m.contacts[contact.ContactID] = contact
	return nil
}

func (m *MemoryStore) DeleteContact(contactID string) error {
	m.contactMu.Lock()
	defer m.contactMu.Unlock()

	if _, exists := m.contacts[contactID]; !exists {
		return fmt.Errorf("contact %s: %w", contactID, apperrors.ErrNotFound)
	}
	delete(m.contacts, contactID)
	return nil
}

// Message ledger operations

func (m *MemoryStore) CreateMessage(msg *models.Message) (*models.Message, error) {
	m.contactMu.RLock()
	contact, exists := m.contacts[msg.ContactID]
	m.contactMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("contact %s: %w", msg.ContactID, apperrors.ErrNotFound)
	}
	if contact.OwnerID != msg.UserID {
		return nil, fmt.Errorf("contact %s is not owned by user %s: %w",
			msg.ContactID, msg.UserID, apperrors.ErrConflict)
	}

	m.messageMu.Lock()
	defer m.messageMu.Unlock()

	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	msg.ID = m.nextID()
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt

	m.messages[msg.MessageID] = msg
	return msg, nil
}

func (m *MemoryStore) GetMessages(userID, contactID string) ([]*models.Message, error) {
	m.messageMu.RLock()
	defer m.messageMu.RUnlock()

	var msgs []*models.Message
	for _, msg := range m.messages {
		if msg.UserID == userID && msg.ContactID == contactID {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

func (m *MemoryStore) GetMessagesByUser(userID string) ([]*models.Message, error) {
	m.messageMu.RLock()
	defer m.messageMu.RUnlock()

	var msgs []*models.Message
	for _, msg := range m.messages {
		if msg.UserID == userID {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

// Keyword operations

func (m *MemoryStore) CreateKeyword(kw *models.Keyword) (*models.Keyword, error) {
	m.keywordMu.Lock()
	defer m.keywordMu.Unlock()

	for _, existing := range m.keywords {
		if existing.Keyword == kw.Keyword {
			return nil, fmt.Errorf("keyword %q already exists: %w", kw.Keyword, apperrors.ErrConflict)
		}
	}

	if kw.KeywordID == "" {
		kw.KeywordID = uuid.NewString()
	}
	kw.ID = m.nextID()
	kw.CreatedAt = time.Now()
	kw.UpdatedAt = kw.CreatedAt

	m.keywords[kw.KeywordID] = kw
	return kw, nil
}

func (m *MemoryStore) GetKeyword(keywordID string) (*models.Keyword, error) {
	m.keywordMu.RLock()
	defer m.keywordMu.RUnlock()

	kw, exists := m.keywords[keywordID]
	if !exists {
		return nil, fmt.Errorf("keyword %s: %w", keywordID, apperrors.ErrNotFound)
	}
	return kw, nil
}

func (m *MemoryStore) GetAllKeywords() ([]*models.Keyword, error) {
	m.keywordMu.RLock()
	defer m.keywordMu.RUnlock()

	kws := make([]*models.Keyword, 0, len(m.keywords))
	for _, kw := range m.keywords {
		kws = append(kws, kw)
	}
	sort.Slice(kws, func(i, j int) bool { return kws[i].ID < kws[j].ID })
	return kws, nil
}

func (m *MemoryStore) UpdateKeyword(kw *models.Keyword) error {
	m.keywordMu.Lock()
	defer m.keywordMu.Unlock()

	if _, exists := m.keywords[kw.KeywordID]; !exists {
		return fmt.Errorf("keyword %s: %w", kw.KeywordID, apperrors.ErrNotFound)
	}
	for _, existing := range m.keywords {
		if existing.KeywordID != kw.KeywordID && existing.Keyword == kw.Keyword {
			return fmt.Errorf("keyword %q already exists: %w", kw.Keyword, apperrors.ErrConflict)
		}
	}
	kw.UpdatedAt = time.Now()
	m.keywords[kw.KeywordID] = kw
	return nil
}

func (m *MemoryStore) DeleteKeyword(keywordID string) error {
	m.keywordMu.Lock()
	defer m.keywordMu.Unlock()

	if _, exists := m.keywords[keywordID]; !exists {
		return fmt.Errorf("keyword %s: %w", keywordID, apperrors.ErrNotFound)
	}
	delete(m.keywords, keywordID)
	return nil
}
