package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"retail-svc/payments"
	"retail-svc/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody matches the payload ceiling Stripe documents for events.
const maxWebhookBody = 65536

type WebhookDispatcher interface {
	Handle(ctx context.Context, payload []byte, signature string) (webhook.Result, error)
}

type WebhookHandler struct {
	dispatcher WebhookDispatcher
	logger     *zap.Logger
}

func NewWebhookHandler(dispatcher WebhookDispatcher, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, logger: logger}
}

// Receive acknowledges every authenticated delivery with 200, whatever the
// domain outcome, so Stripe does not redeliver on business failures.
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("Webhook payload too large", zap.Int64("limit", tooLarge.Limit))
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	res, err := h.dispatcher.Handle(c.Request.Context(), payload, c.GetHeader(payments.SignatureHeader))
	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": res.Outcome})
}
