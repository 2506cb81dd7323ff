package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"terracrm/pipeline"
)

type WebhookController struct {
	Pipeline *pipeline.Pipeline
	Logger   *log.Logger
}

func NewWebhookController(p *pipeline.Pipeline, logger *log.Logger) *WebhookController {
	return &WebhookController{
		Pipeline: p,
		Logger:   logger,
	}
}

// VerifyWebhook answers the Meta subscription handshake. The provider sends
// hub.mode, hub.verify_token and hub.challenge as query params; a match
// echoes the challenge back as plain text.
func (wc *WebhookController) VerifyWebhook(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	echo, ok := wc.Pipeline.VerifyHandshake(c.Context(), mode, token, challenge)
	if !ok {
		wc.Logger.Printf("webhook verification rejected: mode=%s ip=%s", mode, c.IP())
		return c.SendStatus(fiber.StatusForbidden)
	}

	return c.Status(fiber.StatusOK).SendString(echo)
}

// HandleWebhook ingests a provider delivery. The provider retries anything
// that is not a 200, so processing outcomes are reported in the body and the
// status code stays 200 for every recognized payload shape.
func (wc *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	body := c.Body()
	raw := make([]byte, len(body))
	copy(raw, body)

	status := wc.Pipeline.Process(c.Context(), raw)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": status,
	})
}
