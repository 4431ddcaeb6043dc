package models

import (
	"gorm.io/gorm"

	"github.com/google/uuid"
)

// Contact is one WhatsApp phone identity owned by exactly one user. The
// phone is stored canonical (digits only, no network suffix) and is unique
// per owner, not globally: two agents may each talk to the same number.
type Contact struct {
	gorm.Model

	ContactID   string `json:"contact_id" gorm:"uniqueIndex"`
	Phone       string `json:"phone" gorm:"index:idx_contact_owner_phone,unique"`
	Name        string `json:"name"`
	IsAutopilot bool   `json:"is_autopilot" gorm:"default:true"`

	// Opaque provisioning fields used by the external collaborator that
	// provisions the automation engine instance.
	Code   string `json:"code,omitempty"`
	Port   string `json:"port,omitempty"`
	Status string `json:"status,omitempty"`

	OwnerID string `json:"owner_id" gorm:"index:idx_contact_owner_phone,unique"`
}

// BeforeCreate hook to auto-generate ContactID
func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ContactID == "" {
		c.ContactID = uuid.NewString()
	}
	return nil
}
