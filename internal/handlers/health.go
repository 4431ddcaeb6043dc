package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wapilot/wapilot-backend/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	Version      string
	orchestrator *services.Orchestrator
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, orch *services.Orchestrator) *HealthHandler {
	return &HealthHandler{
		Version:      version,
		orchestrator: orch,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "OK",
		"service": "Wapilot Backend",
		"version": h.Version,
		"services": fiber.Map{
			"sessions": h.orchestrator.ActiveSessionCount(),
		},
	})
}
