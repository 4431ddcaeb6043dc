package handlers

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wapilot/wapilot-backend/internal/engine"
	"github.com/wapilot/wapilot-backend/internal/middleware"
	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/services"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

// WhatsAppHandler exposes session, account and message operations over HTTP
type WhatsAppHandler struct {
	store         storage.Store
	orchestrator  *services.Orchestrator
	twilioFactory *engine.TwilioFactory // nil unless the twilio engine is active
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(store storage.Store, orch *services.Orchestrator, tf *engine.TwilioFactory) *WhatsAppHandler {
	return &WhatsAppHandler{
		store:         store,
		orchestrator:  orch,
		twilioFactory: tf,
	}
}

// CreateSession starts a WhatsApp session for a user
func (h *WhatsAppHandler) CreateSession(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if err := h.orchestrator.CreateSession(userID); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Session initializing",
		"user_id": userID,
	})
}

type sendMessagePayload struct {
	ContactID string `json:"contact_id"`
	Message   string `json:"message"`
}

// SendMessage sends an outbound message from the authenticated user to one
// of their contacts
func (h *WhatsAppHandler) SendMessage(c *fiber.Ctx) error {
	var payload sendMessagePayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if payload.ContactID == "" || payload.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "contact_id and message are required",
		})
	}

	userID, _ := c.Locals(middleware.LocalUserID).(string)
	user, err := h.store.GetUser(userID)
	if err != nil {
		return err
	}
	contact, err := h.store.GetContact(user.UserID, payload.ContactID)
	if err != nil {
		return err
	}

	msg, err := h.orchestrator.SendMessage(user, contact, payload.Message)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetAccounts lists the contacts owned by a user
func (h *WhatsAppHandler) GetAccounts(c *fiber.Ctx) error {
	user, err := h.store.GetUser(c.Params("userId"))
	if err != nil {
		return err
	}
	contacts, err := h.store.GetContactsByOwner(user.UserID)
	if err != nil {
		return err
	}
	return c.JSON(contacts)
}

// GetAllAccounts lists every contact across owners (admin)
func (h *WhatsAppHandler) GetAllAccounts(c *fiber.Ctx) error {
	contacts, err := h.store.GetAllContacts()
	if err != nil {
		return err
	}
	return c.JSON(contacts)
}

type setAccountPayload struct {
	Phone   string `json:"phone"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
	Code    string `json:"code"`
	Port    string `json:"port"`
	Status  string `json:"status"`
}

// SetAccount explicitly creates a contact for an owner (admin)
func (h *WhatsAppHandler) SetAccount(c *fiber.Ctx) error {
	var payload setAccountPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if payload.Phone == "" || payload.OwnerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "phone and owner_id are required",
		})
	}
	if _, err := h.store.GetUser(payload.OwnerID); err != nil {
		return err
	}

	contact, err := h.store.CreateContact(&models.Contact{
		Phone:       services.CleanNumber(payload.Phone),
		Name:        payload.Name,
		IsAutopilot: true,
		Code:        payload.Code,
		Port:        payload.Port,
		Status:      payload.Status,
		OwnerID:     payload.OwnerID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(contact)
}

type assignAccountPayload struct {
	Name    *string `json:"name"`
	OwnerID *string `json:"owner_id"`
	Code    *string `json:"code"`
	Port    *string `json:"port"`
	Status  *string `json:"status"`
}

// UpdateAssignAccount reassigns a contact or patches its provisioning
// fields (admin)
func (h *WhatsAppHandler) UpdateAssignAccount(c *fiber.Ctx) error {
	contact, err := h.store.GetContactByID(c.Params("accountId"))
	if err != nil {
		return err
	}

	var patch assignAccountPayload
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if patch.OwnerID != nil {
		if _, err := h.store.GetUser(*patch.OwnerID); err != nil {
			return err
		}
		contact.OwnerID = *patch.OwnerID
	}
	if patch.Name != nil {
		contact.Name = *patch.Name
	}
	if patch.Code != nil {
		contact.Code = *patch.Code
	}
	if patch.Port != nil {
		contact.Port = *patch.Port
	}
	if patch.Status != nil {
		contact.Status = *patch.Status
	}

	if err := h.store.UpdateContact(contact); err != nil {
		return err
	}
	return c.JSON(contact)
}

type autopilotPayload struct {
	Status bool `json:"status"`
}

// UpdateAutopilot toggles the autopilot flag for one contact
func (h *WhatsAppHandler) UpdateAutopilot(c *fiber.Ctx) error {
	user, err := h.store.GetUser(c.Params("userId"))
	if err != nil {
		return err
	}
	contact, err := h.store.GetContact(user.UserID, c.Params("accountId"))
	if err != nil {
		return err
	}

	var payload autopilotPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	contact.IsAutopilot = payload.Status
	if err := h.store.UpdateContact(contact); err != nil {
		return err
	}
	return c.JSON(contact)
}

// DeleteAccount removes a contact (admin)
func (h *WhatsAppHandler) DeleteAccount(c *fiber.Ctx) error {
	if err := h.store.DeleteContact(c.Params("accountId")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMessages returns the ledger entries between a user and one contact
func (h *WhatsAppHandler) GetMessages(c *fiber.Ctx) error {
	user, err := h.store.GetUser(c.Params("userId"))
	if err != nil {
		return err
	}
	contact, err := h.store.GetContact(user.UserID, c.Params("accountId"))
	if err != nil {
		return err
	}

	msgs, err := h.store.GetMessages(user.UserID, contact.ContactID)
	if err != nil {
		return err
	}
	return c.JSON(msgs)
}

// TwilioWebhookPayload represents an incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid string `form:"MessageSid"`
	AccountSid string `form:"AccountSid"`
	From       string `form:"From"` // whatsapp:+15551234567
	To         string `form:"To"`   // the user's Twilio WhatsApp number
	Body       string `form:"Body"`
	NumMedia   string `form:"NumMedia"`
}

// HandleTwilioWebhook routes an inbound Twilio message to the session of
// the user whose WhatsApp number matches the To field. Only used with the
// twilio engine.
func (h *WhatsAppHandler) HandleTwilioWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	if h.twilioFactory == nil || payload.Body == "" || payload.From == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	from := strings.TrimPrefix(payload.From, "whatsapp:")
	to := strings.TrimPrefix(payload.To, "whatsapp:")

	log.Printf("📱 WhatsApp message to %s from %s", to, from)

	user, err := h.store.GetUserByWhatsappNumber(to)
	if err != nil {
		log.Printf("webhook: no user owns number %s", to)
		return c.SendStatus(fiber.StatusOK)
	}

	if !h.twilioFactory.Deliver(user.UserID, from, payload.Body, time.Now().Unix()) {
		log.Printf("webhook: no live session for user %s, dropping message", user.UserID)
	}
	return c.SendStatus(fiber.StatusOK)
}
