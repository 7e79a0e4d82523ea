package handlers

import (
	"context"
	"errors"
	"net/http"

	"retail-svc/middleware"
	"retail-svc/models"
	"retail-svc/payments"
	"retail-svc/vouchers"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type VoucherService interface {
	StartCheckout(ctx context.Context, req vouchers.CheckoutRequest) (*payments.CheckoutSession, error)
	FindBySession(ctx context.Context, sessionID string) (*models.Voucher, bool, error)
	Redeem(ctx context.Context, code string, amount int64) (*models.Voucher, error)
}

type VoucherHandler struct {
	svc    VoucherService
	logger *zap.Logger
}

func NewVoucherHandler(svc VoucherService, logger *zap.Logger) *VoucherHandler {
	return &VoucherHandler{svc: svc, logger: logger}
}

func isVoucherValidation(err error) bool {
	for _, target := range []error{
		vouchers.ErrAmountTooLow,
		vouchers.ErrInvalidDelivery,
		vouchers.ErrScheduleRequired,
		vouchers.ErrScheduleInPast,
		vouchers.ErrBuyerEmailRequired,
		vouchers.ErrRecipientRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *VoucherHandler) Checkout(c *gin.Context) {
	var req vouchers.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.BuyerEmail == "" {
		if actor, ok := middleware.CurrentActor(c); ok {
			req.BuyerEmail = actor.Email
		}
	}

	sess, err := h.svc.StartCheckout(c.Request.Context(), req)
	if err != nil {
		if isVoucherValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to start voucher checkout",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start checkout"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect_url": sess.URL, "session_id": sess.ID})
}

// BySession is polled by the success page until the webhook has issued the
// voucher.
func (h *VoucherHandler) BySession(c *gin.Context) {
	sessionID := c.Param("session_id")
	v, found, err := h.svc.FindBySession(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to look up voucher",
			zap.String("stripe_session_id", sessionID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"found": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"found":        true,
		"code":         v.Code,
		"amount_cents": v.InitialCents,
		"currency":     v.Currency,
		"expires_at":   v.ExpiresAt,
	})
}

type redeemRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required"`
}

func (h *VoucherHandler) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := c.Param("code")
	v, err := h.svc.Redeem(c.Request.Context(), code, req.AmountCents)
	switch {
	case errors.Is(err, vouchers.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Voucher not found"})
	case errors.Is(err, vouchers.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, vouchers.ErrExpired), errors.Is(err, vouchers.ErrInactive), errors.Is(err, vouchers.ErrInsufficientBalance):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Error("Failed to redeem voucher", zap.String("voucher_code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	default:
		c.JSON(http.StatusOK, v)
	}
}
