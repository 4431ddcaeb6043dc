package storage

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/wapilot/wapilot-backend/internal/apperrors"
	"github.com/wapilot/wapilot-backend/internal/models"
)

// DatabaseStore implements Store on top of PostgreSQL via GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed store
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func translateGormError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
		return fmt.Errorf("%s: %w", what, apperrors.ErrConflict)
	}
	return err
}

// User operations

func (s *DatabaseStore) CreateUser(user *models.User) (*models.User, error) {
	if err := s.db.Create(user).Error; err != nil {
		return nil, translateGormError(err, "user "+user.Email)
	}
	return user, nil
}

func (s *DatabaseStore) GetUser(userID string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		return nil, translateGormError(err, "user "+userID)
	}
	return &user, nil
}

func (s *DatabaseStore) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translateGormError(err, "user "+email)
	}
	return &user, nil
}

func (s *DatabaseStore) GetUserByWhatsappNumber(number string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("whatsapp_number = ?", number).First(&user).Error; err != nil {
		return nil, translateGormError(err, "user with number "+number)
	}
	return &user, nil
}

func (s *DatabaseStore) GetAllUsers() ([]*models.User, error) {
	var users []*models.User
	if err := s.db.Order("created_at").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *DatabaseStore) GetUsersWithActiveSession() ([]*models.User, error) {
	var users []*models.User
	if err := s.db.Where("active_session = ?", true).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *DatabaseStore) UpdateUser(user *models.User) error {
	return s.db.Save(user).Error
}

func (s *DatabaseStore) SetActiveSession(userID string, active bool) error {
	res := s.db.Model(&models.User{}).Where("user_id = ?", userID).
		Update("active_session", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, apperrors.ErrNotFound)
	}
	return nil
}

// Contact operations

func (s *DatabaseStore) CreateContact(contact *models.Contact) (*models.Contact, error) {
	if err := s.db.Create(contact).Error; err != nil {
		return nil, translateGormError(err, "contact "+contact.Phone)
	}
	return contact, nil
}

func (s *DatabaseStore) GetContact(ownerID, contactID string) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.Where("owner_id = ? AND contact_id = ?", ownerID, contactID).
		First(&contact).Error
	if err != nil {
		return nil, translateGormError(err, "contact "+contactID)
	}
	return &contact, nil
}

func (s *DatabaseStore) GetContactByID(contactID string) (*models.Contact, error) {
	var contact models.Contact
	if err := s.db.Where("contact_id = ?", contactID).First(&contact).Error; err != nil {
		return nil, translateGormError(err, "contact "+contactID)
	}
	return &contact, nil
}

func (s *DatabaseStore) GetContactByPhone(ownerID, phone string) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.Where("owner_id = ? AND phone = ?", ownerID, phone).
		First(&contact).Error
	if err != nil {
		return nil, translateGormError(err, "contact with phone "+phone)
	}
	return &contact, nil
}

func (s *DatabaseStore) GetContactsByOwner(ownerID string) ([]*models.Contact, error) {
	var contacts []*models.Contact
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at").Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

func (s *DatabaseStore) GetAllContacts() ([]*models.Contact, error) {
	var contacts []*models.Contact
	if err := s.db.Order("created_at").Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

func (s *DatabaseStore) UpdateContact(contact *models.Contact) error {
	return s.db.Save(contact).Error
}

// DeleteContact removes the row for good. A soft delete would keep the
// row visible to the owner+phone unique index and block the resolver from
// ever re-creating a contact for that number.
func (s *DatabaseStore) DeleteContact(contactID string) error {
	res := s.db.Unscoped().Where("contact_id = ?", contactID).Delete(&models.Contact{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("contact %s: %w", contactID, apperrors.ErrNotFound)
	}
	return nil
}

// Message ledger operations

// CreateMessage appends one ledger entry. The contact must exist and be
// owned by the same user the message references; anything else is rejected.
func (s *DatabaseStore) CreateMessage(msg *models.Message) (*models.Message, error) {
	var contact models.Contact
	err := s.db.Where("contact_id = ?", msg.ContactID).First(&contact).Error
	if err != nil {
		return nil, translateGormError(err, "contact "+msg.ContactID)
	}
	if contact.OwnerID != msg.UserID {
		return nil, fmt.Errorf("contact %s is not owned by user %s: %w",
			msg.ContactID, msg.UserID, apperrors.ErrConflict)
	}
	if err := s.db.Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *DatabaseStore) GetMessages(userID, contactID string) ([]*models.Message, error) {
	var msgs []*models.Message
	err := s.db.Where("user_id = ? AND contact_id = ?", userID, contactID).
		Order("created_at").Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *DatabaseStore) GetMessagesByUser(userID string) ([]*models.Message, error) {
	var msgs []*models.Message
	if err := s.db.Where("user_id = ?", userID).Order("created_at").Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// Keyword operations

func (s *DatabaseStore) CreateKeyword(kw *models.Keyword) (*models.Keyword, error) {
	var existing models.Keyword
	err := s.db.Where("keyword = ?", kw.Keyword).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("keyword %q already exists: %w", kw.Keyword, apperrors.ErrConflict)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := s.db.Create(kw).Error; err != nil {
		return nil, translateGormError(err, "keyword "+kw.Keyword)
	}
	return kw, nil
}

func (s *DatabaseStore) GetKeyword(keywordID string) (*models.Keyword, error) {
	var kw models.Keyword
	if err := s.db.Where("keyword_id = ?", keywordID).First(&kw).Error; err != nil {
		return nil, translateGormError(err, "keyword "+keywordID)
	}
	return &kw, nil
}

// GetAllKeywords returns rules in stored order; the autopilot engine relies
// on that order for first-match semantics.
func (s *DatabaseStore) GetAllKeywords() ([]*models.Keyword, error) {
	var kws []*models.Keyword
	if err := s.db.Order("id").Find(&kws).Error; err != nil {
		return nil, err
	}
	return kws, nil
}

func (s *DatabaseStore) UpdateKeyword(kw *models.Keyword) error {
	if err := s.db.Save(kw).Error; err != nil {
		return translateGormError(err, "keyword "+kw.KeywordID)
	}
	return nil
}

// DeleteKeyword removes the row for good, so the keyword can be re-created
// later without tripping its unique index on a soft-deleted row.
func (s *DatabaseStore) DeleteKeyword(keywordID string) error {
	res := s.db.Unscoped().Where("keyword_id = ?", keywordID).Delete(&models.Keyword{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("keyword %s: %w", keywordID, apperrors.ErrNotFound)
	}
	return nil
}
