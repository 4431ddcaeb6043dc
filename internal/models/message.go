package models

import (
	"gorm.io/gorm"

	"github.com/google/uuid"
)

// Message directions
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Message is one immutable ledger entry. Timestamp is network-supplied for
// inbound messages and wall-clock for outbound ones. Every message
// references a contact owned by the same user it references; the store
// rejects writes that break that.
type Message struct {
	gorm.Model

	MessageID string `json:"message_id" gorm:"uniqueIndex"`
	Body      string `json:"body" gorm:"type:text"`
	Direction string `json:"direction" gorm:"default:in"`
	Timestamp int64  `json:"timestamp"`
	ContactID string `json:"contact_id" gorm:"index"`
	UserID    string `json:"user_id" gorm:"index"`
}

// BeforeCreate hook to auto-generate MessageID
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.MessageID == "" {
		m.MessageID = uuid.NewString()
	}
	return nil
}
