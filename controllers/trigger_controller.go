package controller

import (
	"errors"

	"nurtura/engine"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// TriggerController handles inbound trigger webhooks for all sequence
// types: signups, assessment completions, missed appointments and call
// outcomes.
type TriggerController struct {
	Orchestrator *engine.Orchestrator
	Logger       *logrus.Entry
}

func NewTriggerController(o *engine.Orchestrator, logger *logrus.Entry) *TriggerController {
	return &TriggerController{Orchestrator: o, Logger: logger}
}

// HandleTrigger accepts one trigger event, responds synchronously with
// accepted/duplicate/invalid, and leaves all sends to run asynchronously.
func (tc *TriggerController) HandleTrigger(c *fiber.Ctx) error {
	var input engine.TriggerInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := tc.Orchestrator.Trigger(c.Context(), input)
	if err != nil {
		if errors.Is(err, engine.ErrInputInvalid) || errors.Is(err, engine.ErrUnknownSequenceType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status": "invalid",
				"error":  err.Error(),
			})
		}
		tc.Logger.WithError(err).Error("Trigger processing failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process trigger",
		})
	}

	if result.Duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":      "duplicate",
			"instance_id": result.InstanceID,
			"message":     "A live sequence already exists for this recipient and type",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":          "accepted",
		"instance_id":     result.InstanceID,
		"segment":         result.Segment,
		"scheduled_steps": result.ScheduledSteps,
	})
}
