package handlers

import (
	"io"
	"net/http"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/models/splitpayment/service"
	"github.com/gin-gonic/gin"
)

// maxWebhookBytes is the body size Stripe documents as the upper bound for events.
const maxWebhookBytes = 65536

type WebhookHandler struct {
	charges service.ChargeServiceInterface
}

func NewWebhookHandler(charges service.ChargeServiceInterface) *WebhookHandler {
	return &WebhookHandler{charges: charges}
}

// StripeWebhookHandler godoc
// @Summary Stripe webhook
// @Description Receives payment intent events. The body is verified against the Stripe-Signature header
// @Tags webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe signature"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 401 {object} middleware.ErrorResponse
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) StripeWebhookHandler(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes+1))
	if err != nil {
		_ = c.Error(apperrors.ValidationFailed("invalid_webhook", "failed to read request body"))
		return
	}
	if len(payload) > maxWebhookBytes {
		_ = c.Error(apperrors.ValidationFailed("invalid_webhook", "payload too large"))
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		_ = c.Error(apperrors.AuthenticationFailed("missing webhook signature"))
		return
	}

	if err := h.charges.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		logger.GetLogger().Warnw("Webhook processing failed", "error", err)
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
