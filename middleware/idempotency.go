package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"retail-svc/idempotency"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

// captureWriter tees the response body so it can be stored for replay.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotent makes the rest of the chain run at most once per Idempotency-Key
// for the caller and request path. Requests without the header are passed
// through unchanged. Must run after AuthMiddleware.
func Idempotent(svc *idempotency.Service, scope string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > 255 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "idempotency key too long"})
			return
		}

		actor, _ := CurrentActor(c)
		fullScope := scope + ":" + c.Request.URL.Path
		ran := false

		resp, replayed, err := svc.Do(c.Request.Context(), key, fullScope, actor.UserID,
			func(ctx context.Context) (idempotency.Response, error) {
				ran = true
				w := &captureWriter{ResponseWriter: c.Writer}
				c.Writer = w
				c.Next()
				c.Writer = w.ResponseWriter

				return idempotency.Response{
					StatusCode:  w.Status(),
					ContentType: w.Header().Get("Content-Type"),
					Body:        w.body.Bytes(),
				}, nil
			})

		switch {
		case ran:
			// The handler already wrote its response.
			return
		case errors.Is(err, idempotency.ErrInProgress):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this idempotency key is in progress"})
		case errors.Is(err, idempotency.ErrKeyMismatch):
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency key was used by another caller"})
		case err != nil:
			logger.Error("Idempotency check failed",
				zap.String("trace_id", GetTraceID(c.Request.Context())),
				zap.String("idempotency_key", key),
				zap.String("scope", fullScope),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		case replayed:
			RecordIdempotentReplay(scope)
			c.Header(ReplayedHeader, "true")
			c.Data(resp.StatusCode, resp.ContentType, resp.Body)
			c.Abort()
		}
	}
}
