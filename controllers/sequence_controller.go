package controller

import (
	"errors"

	"nurtura/tracker"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// SequenceController exposes operator read and conversion endpoints over
// sequence instances.
type SequenceController struct {
	Tracker tracker.Tracker
	Logger  *logrus.Entry
}

func NewSequenceController(t tracker.Tracker, logger *logrus.Entry) *SequenceController {
	return &SequenceController{Tracker: t, Logger: logger}
}

// GetInstance returns one instance with its steps.
func (sc *SequenceController) GetInstance(c *fiber.Ctx) error {
	instanceID := c.Params("id")
	inst, err := sc.Tracker.Instance(c.Context(), instanceID)
	if err != nil {
		if errors.Is(err, tracker.ErrInstanceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Sequence instance not found",
			})
		}
		sc.Logger.WithError(err).Error("Failed to load sequence instance")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load sequence instance",
		})
	}
	return c.JSON(inst)
}

// ListByRecipient returns every instance for a recipient email, newest
// first.
func (sc *SequenceController) ListByRecipient(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email query parameter is required",
		})
	}
	instances, err := sc.Tracker.InstancesByRecipient(c.Context(), email)
	if err != nil {
		sc.Logger.WithError(err).Error("Failed to list sequence instances")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sequence instances",
		})
	}
	return c.JSON(fiber.Map{
		"email":     email,
		"count":     len(instances),
		"instances": instances,
	})
}

// Convert marks a single instance converted; the remaining scheduled
// steps short-circuit at execution time.
func (sc *SequenceController) Convert(c *fiber.Ctx) error {
	instanceID := c.Params("id")
	if err := sc.Tracker.MarkConverted(c.Context(), instanceID); err != nil {
		if errors.Is(err, tracker.ErrInstanceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Sequence instance not found",
			})
		}
		sc.Logger.WithError(err).Error("Failed to convert sequence instance")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to convert sequence instance",
		})
	}
	sc.Logger.WithField("instance_id", instanceID).Info("Instance converted by operator")
	return c.JSON(fiber.Map{
		"status":      "converted",
		"instance_id": instanceID,
	})
}

type convertRecipientInput struct {
	Email string `json:"email" validate:"required,email"`
}

// ConvertRecipient converts every active instance for a recipient. Used
// when a conversion signal arrives without an instance reference, e.g. a
// manual CRM update.
func (sc *SequenceController) ConvertRecipient(c *fiber.Ctx) error {
	var input convertRecipientInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if input.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email is required",
		})
	}
	converted, err := sc.Tracker.ConvertByRecipient(c.Context(), input.Email)
	if err != nil {
		sc.Logger.WithError(err).Error("Failed to convert recipient instances")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to convert recipient instances",
		})
	}
	sc.Logger.WithFields(logrus.Fields{
		"email":     input.Email,
		"converted": converted,
	}).Info("Recipient instances converted")
	return c.JSON(fiber.Map{
		"status":    "converted",
		"email":     input.Email,
		"converted": converted,
	})
}
