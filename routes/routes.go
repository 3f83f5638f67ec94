package routes

import (
	controller "nurtura/controllers"
	"nurtura/engine"
	"nurtura/middleware"
	"nurtura/tracker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

// Deps carries the shared components the routes wire controllers to.
type Deps struct {
	Tracker      tracker.Tracker
	Orchestrator *engine.Orchestrator
	Hub          *engine.ProgressHub
	Logger       *logrus.Logger
}

// SetupRoutes registers every HTTP and websocket endpoint.
func SetupRoutes(app *fiber.App, deps Deps) {
	controller.InitStripe()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	triggerController := controller.NewTriggerController(deps.Orchestrator, deps.Logger.WithField("component", "trigger"))
	sequenceController := controller.NewSequenceController(deps.Tracker, deps.Logger.WithField("component", "sequences"))
	authController := controller.NewAuthController(deps.Logger.WithField("component", "auth"))
	paymentController := controller.NewPaymentController(deps.Tracker, deps.Orchestrator, deps.Logger.WithField("component", "payments"))
	progressController := controller.NewProgressController(deps.Hub, deps.Logger.WithField("component", "progress"))

	// Inbound webhooks: rate-limited trigger intake plus the Stripe
	// conversion signal. Both authenticate by other means (shared secret
	// headers upstream, Stripe signatures), not JWT.
	webhooks := app.Group("/webhooks", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	webhooks.Post("/trigger", middleware.TriggerRateLimiter(), triggerController.HandleTrigger)
	webhooks.Post("/stripe", paymentController.HandleStripeWebhook)

	// Operator token exchange.
	app.Post("/auth/token", authController.IssueToken)

	// Operator API, JWT-protected.
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	sequences := api.Group("/sequences")
	sequences.Get("/", sequenceController.ListByRecipient)
	sequences.Get("/:id", sequenceController.GetInstance)
	sequences.Post("/:id/convert", sequenceController.Convert)
	api.Post("/recipients/convert", sequenceController.ConvertRecipient)

	// WebSocket stream of step-sent events.
	app.Get("/api/v1/progress", websocket.New(progressController.Stream))

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	deps.Logger.Info("Routes initialized successfully")
}
