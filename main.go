package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/wapilot/wapilot-backend/database"
	"github.com/wapilot/wapilot-backend/internal/apperrors"
	"github.com/wapilot/wapilot-backend/internal/engine"
	"github.com/wapilot/wapilot-backend/internal/gateway"
	"github.com/wapilot/wapilot-backend/internal/jobs"
	"github.com/wapilot/wapilot-backend/internal/models"
	"github.com/wapilot/wapilot-backend/internal/routes"
	"github.com/wapilot/wapilot-backend/internal/services"
	"github.com/wapilot/wapilot-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		err := godotenv.Load(".env")
		if err != nil {
			err = godotenv.Load("environments/.env.development")
			if err != nil {
				log.Println("⚠️  No .env file found - checking environment variables")
			}
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	// Initialize storage
	var store storage.Store

	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		database.Connect()

		log.Println("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.User{},
			&models.Contact{},
			&models.Message{},
			&models.Keyword{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
		log.Println("✅ Using PostgreSQL database storage")
	}
	storage.SetStore(store)

	// Event gateway, with a NATS relay when configured
	var sinks []gateway.Sink
	var natsRelay *gateway.NATSRelay
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		relay, err := gateway.NewNATSRelay(natsURL, os.Getenv("NATS_SUBJECT_PREFIX"))
		if err != nil {
			log.Printf("⚠️  NATS relay disabled: %v", err)
		} else {
			natsRelay = relay
			sinks = append(sinks, relay)
		}
	}
	hub := gateway.NewHub(sinks...)

	// Automation engine adapter
	factory, twilioFactory := buildEngineFactory()

	// Core services
	resolver := services.NewContactResolver(store)
	autopilot := services.NewAutopilotEngine(store)
	orchestrator := services.NewOrchestrator(store, hub, factory, resolver, autopilot)
	autopilot.SetSender(orchestrator)

	authService := services.NewAuthService(store, jwtSecret)
	keywordService := services.NewKeywordService(store)

	// Re-attach sessions that were live before the last shutdown
	orchestrator.RecoverSessions()

	// Background flag reconciliation
	reconcileJob := jobs.NewReconcileJob(store, orchestrator, 5*time.Minute)
	reconcileJob.Start()

	log.Println("✅ All services initialized")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Wapilot Backend v" + version,
		ErrorHandler: errorHandler,
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	routes.SetupRoutes(app, routes.Deps{
		Store:         store,
		Hub:           hub,
		Orchestrator:  orchestrator,
		Auth:          authService,
		Keywords:      keywordService,
		TwilioFactory: twilioFactory,
		Version:       version,
	})

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		reconcileJob.Stop()
		orchestrator.Shutdown()
		if natsRelay != nil {
			natsRelay.Close()
		}
		_ = app.Shutdown()
	}()

	log.Println("========================================")
	log.Printf("🚀 Wapilot Backend starting on port %s", port)
	log.Printf("📊 Storage: %s", storageType())
	log.Printf("📱 Engine: %s", engineType())
	log.Println("========================================")

	log.Fatal(app.Listen(":" + port))
}

// buildEngineFactory picks the automation engine adapter from the
// environment. The twilio factory is returned separately because the
// webhook handler needs it for inbound delivery.
func buildEngineFactory() (engine.Factory, *engine.TwilioFactory) {
	switch engineType() {
	case "twilio":
		tf, err := engine.NewTwilioFactory(
			os.Getenv("TWILIO_ACCOUNT_SID"),
			os.Getenv("TWILIO_AUTH_TOKEN"),
			os.Getenv("TWILIO_WHATSAPP_FROM"),
		)
		if err != nil {
			log.Fatal("Failed to initialize Twilio engine:", err)
		}
		log.Println("✅ Twilio engine initialized")
		return tf, tf
	default:
		bridgeURL := os.Getenv("BRIDGE_URL")
		if bridgeURL == "" {
			bridgeURL = "http://localhost:3000"
		}
		log.Printf("✅ Bridge engine initialized (%s)", bridgeURL)
		return engine.NewBridgeFactory(bridgeURL), nil
	}
}

func engineType() string {
	if os.Getenv("ENGINE") == "twilio" {
		return "twilio"
	}
	return "bridge"
}

func storageType() string {
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}

// errorHandler maps service errors onto HTTP status codes.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, apperrors.ErrSessionUnavailable):
		// Matches the original API contract for sends on a dead session.
		code = fiber.StatusNotFound
	case apperrors.IsNotFound(err):
		code = fiber.StatusNotFound
	case apperrors.IsConflict(err):
		code = fiber.StatusConflict
	case errors.Is(err, apperrors.ErrUpstreamFailure):
		code = fiber.StatusBadGateway
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
