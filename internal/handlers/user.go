package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

// UserHandler handles agent listing and lookup
type UserHandler struct {
	store storage.Store
}

// NewUserHandler creates a new user handler
func NewUserHandler(store storage.Store) *UserHandler {
	return &UserHandler{store: store}
}

type agentWithContacts struct {
	*models.User
	Contacts []*models.Contact `json:"contacts"`
}

// ListAgents returns every user together with their contacts
func (h *UserHandler) ListAgents(c *fiber.Ctx) error {
	users, err := h.store.GetAllUsers()
	if err != nil {
		return err
	}

	agents := make([]*agentWithContacts, 0, len(users))
	for _, user := range users {
		contacts, err := h.store.GetContactsByOwner(user.UserID)
		if err != nil {
			return err
		}
		agents = append(agents, &agentWithContacts{User: user, Contacts: contacts})
	}
	return c.JSON(agents)
}

// GetAgent returns one user with their contacts
func (h *UserHandler) GetAgent(c *fiber.Ctx) error {
	user, err := h.store.GetUser(c.Params("id"))
	if err != nil {
		return err
	}
	contacts, err := h.store.GetContactsByOwner(user.UserID)
	if err != nil {
		return err
	}
	return c.JSON(&agentWithContacts{User: user, Contacts: contacts})
}
