package models

import (
	"gorm.io/gorm"

	"github.com/google/uuid"
)

// User roles
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

// User represents an agent (or admin) who owns at most one live WhatsApp
// session. ActiveSession is a best-effort flag maintained by the session
// orchestrator; it decides which users get re-attached on restart.
type User struct {
	gorm.Model

	UserID         string `json:"user_id" gorm:"uniqueIndex"`
	FirstName      string `json:"first_name"`
	MiddleName     string `json:"middle_name,omitempty"`
	LastName       string `json:"last_name"`
	Email          string `json:"email" gorm:"uniqueIndex"`
	PasswordHash   string `json:"-"`
	Role           string `json:"role" gorm:"default:agent"`
	WhatsappNumber string `json:"whatsapp_number"`
	ActiveSession  bool   `json:"active_session" gorm:"default:false"`
}

// BeforeCreate hook to auto-generate UserID and default the role
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == "" {
		u.UserID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleAgent
	}
	return nil
}

// UserRegistration is the payload for creating a new agent
type UserRegistration struct {
	FirstName      string `json:"first_name" validate:"required"`
	MiddleName     string `json:"middle_name"`
	LastName       string `json:"last_name" validate:"required"`
	Email          string `json:"email" validate:"required"`
	Password       string `json:"password" validate:"required"`
	Role           string `json:"role"`
	WhatsappNumber string `json:"whatsapp_number"`
}
