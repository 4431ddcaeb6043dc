package routes

import (
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/wapilot/wapilot-backend/internal/engine"
	"github.com/wapilot/wapilot-backend/internal/gateway"
	"github.com/wapilot/wapilot-backend/internal/handlers"
	"github.com/wapilot/wapilot-backend/internal/middleware"
	"github.com/wapilot/wapilot-backend/internal/services"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

// Deps carries everything the route handlers need.
type Deps struct {
	Store         storage.Store
	Hub           *gateway.Hub
	Orchestrator  *services.Orchestrator
	Auth          *services.AuthService
	Keywords      *services.KeywordService
	TwilioFactory *engine.TwilioFactory
	Version       string
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Deps) {
	authHandler := handlers.NewAuthHandler(deps.Auth)
	userHandler := handlers.NewUserHandler(deps.Store)
	keywordHandler := handlers.NewKeywordHandler(deps.Keywords)
	whatsappHandler := handlers.NewWhatsAppHandler(deps.Store, deps.Orchestrator, deps.TwilioFactory)
	eventsHandler := handlers.NewEventsHandler(deps.Hub)
	healthHandler := handlers.NewHealthHandler(deps.Version, deps.Orchestrator)

	app.Get("/health", healthHandler.Check)

	api := app.Group("/api")

	// Auth routes (no token required)
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Everything below requires a bearer token
	protected := api.Use(middleware.Protected(deps.Auth))

	users := protected.Group("/users")
	users.Get("/", userHandler.ListAgents)
	users.Get("/:id", userHandler.GetAgent)

	keywords := protected.Group("/keywords")
	keywords.Post("/", keywordHandler.Set)
	keywords.Get("/", keywordHandler.List)
	keywords.Patch("/:id", keywordHandler.Update)
	keywords.Delete("/:id", keywordHandler.Delete)

	whatsapp := protected.Group("/whatsapp")
	whatsapp.Post("/sessions/:userId", whatsappHandler.CreateSession)
	whatsapp.Post("/send", whatsappHandler.SendMessage)
	whatsapp.Get("/accounts", middleware.RequireAdmin(), whatsappHandler.GetAllAccounts)
	whatsapp.Post("/accounts", middleware.RequireAdmin(), whatsappHandler.SetAccount)
	whatsapp.Patch("/accounts/:accountId", middleware.RequireAdmin(), whatsappHandler.UpdateAssignAccount)
	whatsapp.Delete("/accounts/:accountId", middleware.RequireAdmin(), whatsappHandler.DeleteAccount)
	whatsapp.Get("/accounts/:userId", whatsappHandler.GetAccounts)
	whatsapp.Patch("/accounts/:userId/:accountId/autopilot", whatsappHandler.UpdateAutopilot)
	whatsapp.Get("/messages/:userId/:accountId", whatsappHandler.GetMessages)
	whatsapp.Get("/events/:userId", eventsHandler.Stream)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	// Twilio webhook - ENVIRONMENT-AWARE VALIDATION
	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("DISABLE_WEBHOOK_VALIDATION") == "true" {
		// Development: Skip validation for ngrok
		webhooks.Post("/twilio", whatsappHandler.HandleTwilioWebhook)
	} else {
		// Production: Validate webhook signature
		webhooks.Post("/twilio", middleware.ValidateTwilioSignature(), whatsappHandler.HandleTwilioWebhook)
	}
}
