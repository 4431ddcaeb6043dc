package storage

import (
	"sync"

	"github.com/wapilot/wapilot-backend/internal/models"
)

var storeInstance Store

var storeMu sync.RWMutex

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeMu.Lock()
	defer storeMu.Unlock()
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	storeMu.RLock()
	defer storeMu.RUnlock()
	return storeInstance
}

// Store defines the interface for storage operations
type Store interface {
	// User operations
	CreateUser(user *models.User) (*models.User, error)
	GetUser(userID string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByWhatsappNumber(number string) (*models.User, error)
	GetAllUsers() ([]*models.User, error)
	GetUsersWithActiveSession() ([]*models.User, error)
	UpdateUser(user *models.User) error
	SetActiveSession(userID string, active bool) error

	// Contact operations
	CreateContact(contact *models.Contact) (*models.Contact, error)
	GetContact(ownerID, contactID string) (*models.Contact, error)
	GetContactByID(contactID string) (*models.Contact, error)
	GetContactByPhone(ownerID, phone string) (*models.Contact, error)
	GetContactsByOwner(ownerID string) ([]*models.Contact, error)
	GetAllContacts() ([]*models.Contact, error)
	UpdateContact(contact *models.Contact) error
	DeleteContact(contactID string) error

	// Message ledger operations (append-only)
	CreateMessage(msg *models.Message) (*models.Message, error)
	GetMessages(userID, contactID string) ([]*models.Message, error)
	GetMessagesByUser(userID string) ([]*models.Message, error)

	// Keyword operations
	CreateKeyword(kw *models.Keyword) (*models.Keyword, error)
	GetKeyword(keywordID string) (*models.Keyword, error)
	GetAllKeywords() ([]*models.Keyword, error)
	UpdateKeyword(kw *models.Keyword) error
	DeleteKeyword(keywordID string) error
}
