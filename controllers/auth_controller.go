package controller

import (
	"nurtura/config"
	"nurtura/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AuthController exchanges the shared operator key for a short-lived JWT
// used on the read and conversion endpoints.
type AuthController struct {
	Logger *logrus.Entry
}

func NewAuthController(logger *logrus.Entry) *AuthController {
	return &AuthController{Logger: logger}
}

type tokenInput struct {
	OperatorKey string `json:"operator_key"`
}

// IssueToken verifies the operator key against its bcrypt hash and
// returns a signed token.
func (ac *AuthController) IssueToken(c *fiber.Ctx) error {
	var input tokenInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if input.OperatorKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "operator_key is required",
		})
	}

	hash := config.AppConfig.OperatorKeyHash
	if hash == "" {
		ac.Logger.Error("OPERATOR_KEY_HASH is not configured")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Operator authentication is not configured",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(input.OperatorKey)); err != nil {
		ac.Logger.WithField("ip", c.IP()).Warn("Rejected operator key")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid operator key",
		})
	}

	token, expiresAt, err := utils.GenerateOperatorToken()
	if err != nil {
		ac.Logger.WithError(err).Error("Failed to sign operator token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to issue token",
		})
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": expiresAt,
	})
}
