package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/services"
)

// KeywordHandler handles autopilot keyword rule administration
type KeywordHandler struct {
	keywords *services.KeywordService
}

// NewKeywordHandler creates a new keyword handler
func NewKeywordHandler(keywords *services.KeywordService) *KeywordHandler {
	return &KeywordHandler{keywords: keywords}
}

// Set creates a keyword rule
func (h *KeywordHandler) Set(c *fiber.Ctx) error {
	var payload models.SetKeyword
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if payload.Keyword == "" || payload.Reply == "" || payload.ReplyAfter < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Keyword and reply are required; reply_after must not be negative",
		})
	}

	kw, err := h.keywords.SetKeyword(&payload)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(kw)
}

// Update patches a keyword rule
func (h *KeywordHandler) Update(c *fiber.Ctx) error {
	var patch models.UpdateKeyword
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if patch.ReplyAfter != nil && *patch.ReplyAfter < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "reply_after must not be negative",
		})
	}

	kw, err := h.keywords.UpdateKeyword(c.Params("id"), &patch)
	if err != nil {
		return err
	}
	return c.JSON(kw)
}

// List returns all keyword rules in stored order
func (h *KeywordHandler) List(c *fiber.Ctx) error {
	kws, err := h.keywords.FindAll()
	if err != nil {
		return err
	}
	return c.JSON(kws)
}

// Delete removes a keyword rule
func (h *KeywordHandler) Delete(c *fiber.Ctx) error {
	if err := h.keywords.Delete(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
