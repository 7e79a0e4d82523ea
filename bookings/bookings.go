package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retail-svc/cache"
	"retail-svc/classifier"
	"retail-svc/middleware"
	"retail-svc/models"
	"retail-svc/notify"
	"retail-svc/payments"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrNotFound                = errors.New("booking not found")
	ErrEventNotFound           = errors.New("event not found")
	ErrForbidden               = errors.New("booking belongs to another user")
	ErrPaymentReferenceMissing = errors.New("payment reference for booking not found")
	ErrAlreadyTerminal         = errors.New("booking is already cancelled")
	ErrSoldOut                 = errors.New("event is sold out")
	ErrEventStarted            = errors.New("event has already started")
	ErrBookingConflict         = errors.New("booking id already used by another checkout")
)

type Outcome string

const (
	OutcomeTooLate           Outcome = "too_late"
	OutcomeRefunded          Outcome = "refunded"
	OutcomeCancelledNoRefund Outcome = "cancelled_no_refund"
)

// minCheckoutLifetime is the shortest expiry Stripe accepts for a session.
const minCheckoutLifetime = 30 * time.Minute

type Store interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	CountActive(ctx context.Context, eventID string) (int, error)
	CreateBooking(ctx context.Context, b *models.EventBooking) (bool, error)
	GetBooking(ctx context.Context, id string) (*models.EventBooking, error)
	LockBooking(ctx context.Context, id string) (*models.EventBooking, error)
	SaveState(ctx context.Context, b *models.EventBooking) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, o *models.Order) (bool, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Holds is satisfied by *cache.HoldStore.
type Holds interface {
	Place(ctx context.Context, eventID, holdID string, limit int, expiresAt time.Time) error
	Count(ctx context.Context, eventID string) (int, error)
	Release(ctx context.Context, eventID, holdID string) error
}

type Gateway interface {
	CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error)
	Refund(ctx context.Context, paymentIntentID, idempotencyKey string) (string, error)
	PaymentIntentForSession(ctx context.Context, sessionID string) (string, error)
}

type Mailer interface {
	Send(ctx context.Context, msg notify.Message) error
}

type EventEmitter interface {
	Emit(ctx context.Context, ev notify.Event) error
}

type Options struct {
	RefundWindow time.Duration
	HoldTTL      time.Duration
	SiteURL      string
}

type Service struct {
	store   Store
	orders  OrderStore
	tx      TxRunner
	holds   Holds
	gateway Gateway
	mailer  Mailer
	events  EventEmitter
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(store Store, orders OrderStore, tx TxRunner, holds Holds, gateway Gateway,
	mailer Mailer, events EventEmitter, opts Options, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		orders:  orders,
		tx:      tx,
		holds:   holds,
		gateway: gateway,
		mailer:  mailer,
		events:  events,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) event(ctx context.Context, id string) (*models.Event, error) {
	e, err := s.store.GetEvent(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	return e, err
}

// Availability reports the seats left for an event. Holds count against the
// remaining seats until they expire or turn into bookings.
func (s *Service) Availability(ctx context.Context, eventID string) (*models.Availability, error) {
	e, err := s.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	active, err := s.store.CountActive(ctx, eventID)
	if err != nil {
		return nil, err
	}
	held, err := s.holds.Count(ctx, eventID)
	if err != nil {
		return nil, err
	}

	remaining := e.Capacity - active - held
	if remaining < 0 {
		remaining = 0
	}
	return &models.Availability{
		EventID:        e.ID,
		Capacity:       e.Capacity,
		ActiveBookings: active,
		Held:           held,
		Remaining:      remaining,
	}, nil
}

// PlaceHold reserves a seat for userID for the hold TTL.
func (s *Service) PlaceHold(ctx context.Context, eventID, userID string) (*models.Hold, error) {
	e, err := s.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.placeHold(ctx, e, userID)
}

func (s *Service) placeHold(ctx context.Context, e *models.Event, userID string) (*models.Hold, error) {
	now := s.now()
	if !e.StartsAt.After(now) {
		return nil, ErrEventStarted
	}
	active, err := s.store.CountActive(ctx, e.ID)
	if err != nil {
		return nil, err
	}

	hold := &models.Hold{
		ID:        uuid.NewString(),
		EventID:   e.ID,
		UserID:    userID,
		ExpiresAt: now.Add(s.opts.HoldTTL),
	}
	err = s.holds.Place(ctx, e.ID, hold.ID, e.Capacity-active, hold.ExpiresAt)
	if errors.Is(err, cache.ErrNoSeats) {
		return nil, ErrSoldOut
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("Seat held",
		zap.String("event_id", e.ID),
		zap.String("hold_id", hold.ID),
		zap.String("user_id", userID),
	)
	return hold, nil
}

type CheckoutRequest struct {
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
}

type Checkout struct {
	SessionID     string    `json:"session_id"`
	RedirectURL   string    `json:"redirect_url"`
	BookingID     string    `json:"booking_id"`
	HoldID        string    `json:"hold_id"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
}

// StartCheckout holds a seat, allocates the booking id and opens a hosted
// checkout for the event. The hold is released if the checkout cannot be
// created.
func (s *Service) StartCheckout(ctx context.Context, eventID string, actor models.Actor, req CheckoutRequest) (*Checkout, error) {
	e, err := s.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	hold, err := s.placeHold(ctx, e, actor.UserID)
	if err != nil {
		return nil, err
	}

	contactEmail := strings.TrimSpace(req.ContactEmail)
	if contactEmail == "" {
		contactEmail = actor.Email
	}
	bookingID := uuid.NewString()
	metadata := map[string]string{
		classifier.KeyKind:      string(models.KindEvent),
		classifier.KeyEventID:   e.ID,
		classifier.KeyUserID:    actor.UserID,
		classifier.KeyBookingID: bookingID,
		classifier.KeyHoldID:    hold.ID,
	}
	if req.ContactName != "" {
		metadata[classifier.KeyContactName] = req.ContactName
	}
	if contactEmail != "" {
		metadata[classifier.KeyContactEmail] = contactEmail
	}

	lifetime := s.opts.HoldTTL
	if lifetime < minCheckoutLifetime {
		lifetime = minCheckoutLifetime
	}
	site := strings.TrimRight(s.opts.SiteURL, "/")
	sess, err := s.gateway.CreateCheckout(ctx, payments.CheckoutRequest{
		ProductName:   e.Title,
		Description:   e.StartsAt.Format("Mon 2 Jan 2006 15:04"),
		AmountCents:   e.PriceCents,
		Currency:      e.Currency,
		Quantity:      1,
		CustomerEmail: contactEmail,
		SuccessURL:    site + "/events/" + e.ID + "/booked?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     site + "/events/" + e.ID,
		Metadata:      metadata,
		ExpiresAt:     s.now().Add(lifetime),
	})
	if err != nil {
		s.releaseHold(ctx, e.ID, hold.ID)
		return nil, fmt.Errorf("failed to create event checkout: %w", err)
	}

	return &Checkout{
		SessionID:     sess.ID,
		RedirectURL:   sess.URL,
		BookingID:     bookingID,
		HoldID:        hold.ID,
		HoldExpiresAt: hold.ExpiresAt,
	}, nil
}

func (s *Service) releaseHold(ctx context.Context, eventID, holdID string) {
	if holdID == "" {
		return
	}
	if err := s.holds.Release(ctx, eventID, holdID); err != nil {
		s.logger.Warn("Failed to release hold",
			zap.String("event_id", eventID),
			zap.String("hold_id", holdID),
			zap.Error(err),
		)
	}
}

// ConfirmPaid records a paid booking together with its receipt order in one
// transaction. It reports false when the checkout session was already
// recorded.
func (s *Service) ConfirmPaid(ctx context.Context, p models.EventPurchase) (bool, error) {
	ctx, span := otel.Tracer("retail-service").Start(ctx, "bookings.ConfirmPaid")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.session_id", p.SessionID),
		attribute.String("booking.id", p.BookingID),
	)

	var (
		created bool
		event   *models.Event
		order   *models.Order
	)
	booking := &models.EventBooking{
		ID:                    p.BookingID,
		EventID:               p.EventID,
		UserID:                p.UserID,
		Paid:                  true,
		StripeSessionID:       p.SessionID,
		StripePaymentIntentID: p.PaymentIntentID,
		ContactName:           p.ContactName,
		ContactEmail:          p.ContactEmail,
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		event, err = s.event(ctx, p.EventID)
		if err != nil {
			return err
		}

		order = &models.Order{
			UserID:                p.UserID,
			TotalCents:            event.PriceCents,
			Currency:              event.Currency,
			Status:                models.OrderStatusCompleted,
			StripeSessionID:       p.SessionID,
			StripePaymentIntentID: p.PaymentIntentID,
			Items: []models.OrderItem{{
				ProductName:    event.Title,
				Quantity:       1,
				UnitPriceCents: event.PriceCents,
			}},
		}
		created, err = s.orders.CreateOrder(ctx, order)
		if err != nil || !created {
			return err
		}

		ok, err := s.store.CreateBooking(ctx, booking)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBookingConflict
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to confirm booking: %w", err)
	}
	if !created {
		return false, nil
	}

	s.logger.Info("Booking paid",
		zap.String("booking_id", booking.ID),
		zap.String("event_id", booking.EventID),
		zap.String("user_id", booking.UserID),
		zap.Int64("order_id", order.ID),
		zap.String("stripe_session_id", p.SessionID),
	)

	s.releaseHold(ctx, p.EventID, p.HoldID)
	s.emit(ctx, notify.Event{
		EventType:   notify.EventBookingPaid,
		SessionID:   p.SessionID,
		BookingID:   booking.ID,
		EventID:     booking.EventID,
		OrderID:     order.ID,
		UserID:      booking.UserID,
		AmountCents: event.PriceCents,
	})
	if booking.ContactEmail != "" {
		s.send(ctx, notify.BookingConfirmation(booking, event))
	}
	return true, nil
}

func terminalOutcome(b *models.EventBooking) Outcome {
	if b.Refunded {
		return OutcomeRefunded
	}
	return OutcomeCancelledNoRefund
}

// Cancel applies the refund policy to a booking under a row lock. A booking
// that is already cancelled reports its existing outcome and is not touched.
func (s *Service) Cancel(ctx context.Context, bookingID string, actor models.Actor) (Outcome, error) {
	ctx, span := otel.Tracer("retail-service").Start(ctx, "bookings.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID))

	var (
		outcome Outcome
		changed bool
		booking *models.EventBooking
		event   *models.Event
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.lockOwned(ctx, bookingID, actor)
		if err != nil {
			return err
		}
		booking = b
		if b.Terminal() {
			outcome = terminalOutcome(b)
			return nil
		}

		event, err = s.store.GetEvent(ctx, b.EventID)
		if err != nil {
			return fmt.Errorf("failed to load event: %w", err)
		}
		if event.StartsAt.Sub(s.now()) < s.opts.RefundWindow {
			outcome = OutcomeTooLate
			return nil
		}

		if b.Paid {
			if err := s.refund(ctx, b); err != nil {
				return err
			}
			outcome = OutcomeRefunded
		} else {
			outcome = OutcomeCancelledNoRefund
		}
		b.Cancelled = true
		b.CancellationRequested = false

		if err := s.store.SaveState(ctx, b); err != nil {
			if b.Refunded {
				s.logger.Error("Refund issued but booking not updated",
					zap.String("booking_id", b.ID),
					zap.String("payment_intent_id", b.StripePaymentIntentID),
					zap.String("refund_id", b.RefundID),
					zap.Error(err),
				)
			}
			return fmt.Errorf("failed to save booking: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	middleware.RecordCancellation(string(outcome))
	if !changed {
		return outcome, nil
	}

	s.logger.Info("Booking cancelled",
		zap.String("booking_id", booking.ID),
		zap.String("outcome", string(outcome)),
		zap.String("actor", actor.UserID),
	)
	s.emit(ctx, notify.Event{
		EventType: notify.EventBookingCancelled,
		BookingID: booking.ID,
		EventID:   booking.EventID,
		UserID:    booking.UserID,
		Outcome:   string(outcome),
	})
	if booking.ContactEmail != "" {
		s.send(ctx, notify.BookingCancelled(booking, event))
	}
	return outcome, nil
}

// refund resolves the payment intent if only the session is known and refunds
// it. The idempotency key is fixed per booking so a retry after a failed local
// write never refunds twice.
func (s *Service) refund(ctx context.Context, b *models.EventBooking) error {
	pi := b.StripePaymentIntentID
	if pi == "" && b.StripeSessionID != "" {
		var err error
		pi, err = s.gateway.PaymentIntentForSession(ctx, b.StripeSessionID)
		if err != nil && !errors.Is(err, payments.ErrNotFound) {
			return fmt.Errorf("failed to resolve payment intent: %w", err)
		}
	}
	if pi == "" {
		s.logger.Error("Paid booking has no payment reference",
			zap.String("booking_id", b.ID),
			zap.String("stripe_session_id", b.StripeSessionID),
		)
		return ErrPaymentReferenceMissing
	}

	refundID, err := s.gateway.Refund(ctx, pi, "refund-"+b.ID)
	if err != nil {
		s.logger.Error("Refund failed",
			zap.String("booking_id", b.ID),
			zap.String("payment_intent_id", pi),
			zap.Error(err),
		)
		return fmt.Errorf("failed to refund booking: %w", err)
	}
	b.StripePaymentIntentID = pi
	b.RefundID = refundID
	b.Refunded = true
	return nil
}

// RequestCancellation flags a booking for review. Repeating it is harmless.
func (s *Service) RequestCancellation(ctx context.Context, bookingID string, actor models.Actor) (*models.EventBooking, error) {
	var booking *models.EventBooking
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.lockOwned(ctx, bookingID, actor)
		if err != nil {
			return err
		}
		if b.Terminal() {
			return ErrAlreadyTerminal
		}
		booking = b
		if b.CancellationRequested {
			return nil
		}
		b.CancellationRequested = true
		return s.store.SaveState(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Cancellation requested",
		zap.String("booking_id", booking.ID),
		zap.String("user_id", booking.UserID),
	)
	return booking, nil
}

// Get returns a booking the actor may see.
func (s *Service) Get(ctx context.Context, bookingID string, actor models.Actor) (*models.EventBooking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(b.UserID) {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *Service) lockOwned(ctx context.Context, bookingID string, actor models.Actor) (*models.EventBooking, error) {
	b, err := s.store.LockBooking(ctx, bookingID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(b.UserID) {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *Service) send(ctx context.Context, msg notify.Message) {
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("Failed to send booking email",
			zap.String("booking_id", msg.Ref),
			zap.String("kind", msg.Kind),
			zap.Error(err),
		)
	}
}

func (s *Service) emit(ctx context.Context, ev notify.Event) {
	if err := s.events.Emit(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("event_type", ev.EventType), zap.Error(err))
	}
}
