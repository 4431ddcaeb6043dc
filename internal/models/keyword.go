package models

import (
	"gorm.io/gorm"

	"github.com/google/uuid"
)

// Keyword is one autopilot reply rule: the first rule (in stored order)
// whose keyword is a literal substring of an inbound body wins. ReplyAfter
// delays the reply by that many seconds.
type Keyword struct {
	gorm.Model

	KeywordID  string `json:"keyword_id" gorm:"uniqueIndex"`
	Keyword    string `json:"keyword" gorm:"uniqueIndex"`
	Reply      string `json:"reply" gorm:"type:text"`
	ReplyAfter int    `json:"reply_after" gorm:"default:0"`
}

// BeforeCreate hook to auto-generate KeywordID
func (k *Keyword) BeforeCreate(tx *gorm.DB) error {
	if k.KeywordID == "" {
		k.KeywordID = uuid.NewString()
	}
	return nil
}

// SetKeyword is the payload for creating a keyword rule
type SetKeyword struct {
	Keyword    string `json:"keyword" validate:"required"`
	Reply      string `json:"reply" validate:"required"`
	ReplyAfter int    `json:"reply_after"`
}

// UpdateKeyword is the payload for patching a keyword rule; nil fields are
// left untouched.
type UpdateKeyword struct {
	Keyword    *string `json:"keyword"`
	Reply      *string `json:"reply"`
	ReplyAfter *int    `json:"reply_after"`
}
