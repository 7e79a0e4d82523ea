package handlers

import (
	"context"
	"errors"
	"net/http"

	"retail-svc/bookings"
	"retail-svc/middleware"
	"retail-svc/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type BookingService interface {
	Availability(ctx context.Context, eventID string) (*models.Availability, error)
	StartCheckout(ctx context.Context, eventID string, actor models.Actor, req bookings.CheckoutRequest) (*bookings.Checkout, error)
	Cancel(ctx context.Context, bookingID string, actor models.Actor) (bookings.Outcome, error)
	RequestCancellation(ctx context.Context, bookingID string, actor models.Actor) (*models.EventBooking, error)
	Get(ctx context.Context, bookingID string, actor models.Actor) (*models.EventBooking, error)
}

type BookingHandler struct {
	svc    BookingService
	logger *zap.Logger
}

func NewBookingHandler(svc BookingService, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

// bookingError maps service errors to responses. It reports false when err
// is nil.
func (h *BookingHandler) bookingError(c *gin.Context, err error, msg string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, bookings.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
	case errors.Is(err, bookings.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
	case errors.Is(err, bookings.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, bookings.ErrAlreadyTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": "Booking is already cancelled"})
	case errors.Is(err, bookings.ErrSoldOut):
		c.JSON(http.StatusConflict, gin.H{"error": "Event is sold out"})
	case errors.Is(err, bookings.ErrEventStarted):
		c.JSON(http.StatusConflict, gin.H{"error": "Event has already started"})
	default:
		h.logger.Error(msg,
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("booking_id", c.Param("id")),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
	return true
}

func (h *BookingHandler) Availability(c *gin.Context) {
	a, err := h.svc.Availability(c.Request.Context(), c.Param("id"))
	if h.bookingError(c, err, "failed to load availability") {
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *BookingHandler) Checkout(c *gin.Context) {
	ctx, span := otel.Tracer("retail-service").Start(c.Request.Context(), "EventCheckout")
	defer span.End()

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event.id", eventID))

	var req bookings.CheckoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	actor, _ := middleware.CurrentActor(c)
	checkout, err := h.svc.StartCheckout(ctx, eventID, actor, req)
	if err != nil {
		span.RecordError(err)
	}
	if h.bookingError(c, err, "failed to start checkout") {
		return
	}
	c.JSON(http.StatusOK, checkout)
}

func (h *BookingHandler) Get(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	b, err := h.svc.Get(c.Request.Context(), c.Param("id"), actor)
	if h.bookingError(c, err, "failed to load booking") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b, "state": b.State()})
}

// Cancel answers too_late with 200: it is an outcome, not a failure.
func (h *BookingHandler) Cancel(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	outcome, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), actor)
	if h.bookingError(c, err, "failed to cancel booking") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (h *BookingHandler) RequestCancellation(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	b, err := h.svc.RequestCancellation(c.Request.Context(), c.Param("id"), actor)
	if h.bookingError(c, err, "failed to request cancellation") {
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking_id": b.ID, "cancellation_requested": b.CancellationRequested})
}
