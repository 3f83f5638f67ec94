package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"nurtura/config"
	"nurtura/engine"
	"nurtura/tracker"
	"nurtura/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
)

// InitStripe sets the global Stripe API key from config.
func InitStripe() {
	stripe.Key = config.AppConfig.StripeSecretKey
}

// PaymentController consumes Stripe webhooks. A completed checkout is
// the strongest conversion signal we get: it converts every live
// sequence for the payer and kicks off the onboarding welcome flow.
type PaymentController struct {
	Tracker      tracker.Tracker
	Orchestrator *engine.Orchestrator
	Logger       *logrus.Entry
}

func NewPaymentController(t tracker.Tracker, o *engine.Orchestrator, logger *logrus.Entry) *PaymentController {
	return &PaymentController{Tracker: t, Orchestrator: o, Logger: logger}
}

// HandleStripeWebhook processes checkout events.
func (pc *PaymentController) HandleStripeWebhook(c *fiber.Ctx) error {
	event, err := utils.ConstructStripeEvent(c)
	if err != nil {
		pc.Logger.WithError(err).Warn("Rejected Stripe webhook")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			pc.Logger.WithError(err).Error("Failed to parse checkout session")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid event data",
			})
		}
		if err := pc.handleCheckoutCompleted(c.Context(), &session); err != nil {
			pc.Logger.WithError(err).Error("Failed to process checkout event")
			// Non-2xx makes Stripe redeliver; conversion is idempotent.
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to process checkout event",
			})
		}
	default:
		pc.Logger.WithField("type", event.Type).Debug("Ignoring Stripe event")
	}

	return c.JSON(fiber.Map{"received": true})
}

func (pc *PaymentController) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	email := ""
	if session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}
	if email == "" && session.CustomerEmail != "" {
		email = session.CustomerEmail
	}
	if email == "" {
		pc.Logger.WithField("session_id", session.ID).Warn("Checkout session has no customer email")
		return nil
	}

	converted, err := pc.Tracker.ConvertByRecipient(ctx, email)
	if err != nil {
		return fmt.Errorf("converting recipient %s on checkout: %w", email, err)
	}

	name := ""
	if session.CustomerDetails != nil {
		name = session.CustomerDetails.Name
	}

	result, err := pc.Orchestrator.Trigger(ctx, engine.TriggerInput{
		Email:        email,
		Name:         name,
		SequenceType: engine.SeqOnboardingWelcome,
	})
	if err != nil {
		// The conversion already landed; a failed welcome trigger is
		// recoverable by hand, so log and acknowledge the webhook.
		pc.Logger.WithError(err).WithField("email", email).Error("Failed to start onboarding sequence")
		return nil
	}

	pc.Logger.WithFields(logrus.Fields{
		"email":       email,
		"converted":   converted,
		"instance_id": result.InstanceID,
		"duplicate":   result.Duplicate,
	}).Info("Checkout completed, onboarding started")
	return nil
}
