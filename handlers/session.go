package handlers

import (
	"context"
	"net/http"

	"retail-svc/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GuestMerger interface {
	Merge(ctx context.Context, userID, email string) (int, error)
}

type SessionHandler struct {
	merger GuestMerger
	logger *zap.Logger
}

func NewSessionHandler(merger GuestMerger, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{merger: merger, logger: logger}
}

// SignedIn folds guest orders into the account. A failed merge is logged and
// never fails the sign-in.
func (h *SessionHandler) SignedIn(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	if actor.Email == "" {
		c.JSON(http.StatusOK, gin.H{"merged": 0})
		return
	}

	merged, err := h.merger.Merge(c.Request.Context(), actor.UserID, actor.Email)
	if err != nil {
		h.logger.Error("Failed to merge guest orders",
			zap.String("user_id", actor.UserID),
			zap.Error(err),
		)
		merged = 0
	}
	c.JSON(http.StatusOK, gin.H{"merged": merged})
}
