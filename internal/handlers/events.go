package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/wapilot/wapilot-backend/internal/gateway"
	"github.com/wapilot/wapilot-backend/internal/middleware"
	"github.com/wapilot/wapilot-backend/internal/models"
)

// EventsHandler streams a user's session events over SSE
type EventsHandler struct {
	hub *gateway.Hub
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *gateway.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

const sseKeepAlive = 25 * time.Second

// streamAllowed reports whether the caller may subscribe under userID:
// only the user themselves, or an admin.
func streamAllowed(c *fiber.Ctx, userID string) bool {
	if role, _ := c.Locals(middleware.LocalRole).(string); role == models.RoleAdmin {
		return true
	}
	caller, _ := c.Locals(middleware.LocalUserID).(string)
	return caller != "" && caller == userID
}

// Stream subscribes the caller under the path user id and pushes events as
// they arrive. The subscription is removed when the client goes away.
func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if !streamAllowed(c, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Cannot stream another user's events",
		})
	}
	listenerID := uuid.NewString()

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	events := h.hub.Subscribe(userID, listenerID)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unsubscribe(userID, listenerID)

		keepAlive := time.NewTicker(sseKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					log.Printf("sse: encode event for %s: %v", userID, err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
				if err := w.Flush(); err != nil {
					// Client disconnected.
					return
				}
			case <-keepAlive.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}
