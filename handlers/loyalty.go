package handlers

import (
	"context"
	"errors"
	"net/http"

	"retail-svc/loyalty"
	"retail-svc/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LoyaltyService interface {
	OptIn(ctx context.Context, userID string) (int64, error)
	Balance(ctx context.Context, userID string) (int64, error)
}

type LoyaltyHandler struct {
	svc    LoyaltyService
	logger *zap.Logger
}

func NewLoyaltyHandler(svc LoyaltyService, logger *zap.Logger) *LoyaltyHandler {
	return &LoyaltyHandler{svc: svc, logger: logger}
}

func (h *LoyaltyHandler) OptIn(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	balance, err := h.svc.OptIn(c.Request.Context(), actor.UserID)
	if err != nil {
		h.logger.Error("Failed to opt in to loyalty", zap.String("user_id", actor.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join loyalty programme"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": true, "balance": balance})
}

func (h *LoyaltyHandler) Balance(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	balance, err := h.svc.Balance(c.Request.Context(), actor.UserID)
	if errors.Is(err, loyalty.ErrNotMember) {
		c.JSON(http.StatusOK, gin.H{"member": false, "balance": 0})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load loyalty balance", zap.String("user_id", actor.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": true, "balance": balance})
}
