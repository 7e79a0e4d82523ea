package vouchers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retail-svc/classifier"
	"retail-svc/middleware"
	"retail-svc/models"
	"retail-svc/notify"
	"retail-svc/payments"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrAmountTooLow       = errors.New("voucher amount is below the minimum")
	ErrInvalidDelivery    = errors.New("unknown delivery mode")
	ErrScheduleRequired   = errors.New("scheduled delivery needs a delivery date")
	ErrScheduleInPast     = errors.New("scheduled delivery date must be in the future")
	ErrBuyerEmailRequired = errors.New("buyer email is required")
	ErrRecipientRequired  = errors.New("scheduled delivery needs a recipient email")

	ErrNotFound            = errors.New("voucher not found")
	ErrInvalidAmount       = errors.New("redeem amount must be positive")
	ErrExpired             = errors.New("voucher has expired")
	ErrInactive            = errors.New("voucher is not active")
	ErrInsufficientBalance = errors.New("voucher balance is too low")
)

// maxCodeAttempts bounds regeneration after a code collision.
const maxCodeAttempts = 5

type Store interface {
	CreateVoucher(ctx context.Context, v *models.Voucher) (bool, error)
	GetBySession(ctx context.Context, sessionID string) (*models.Voucher, error)
	GetByCode(ctx context.Context, code string) (*models.Voucher, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.Voucher, error)
	ReleaseClaim(ctx context.Context, id int64) error
	Debit(ctx context.Context, code string, amount int64, now time.Time) (*models.Voucher, bool, error)
}

type Gateway interface {
	CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error)
}

type Mailer interface {
	Send(ctx context.Context, msg notify.Message) error
}

type EventEmitter interface {
	Emit(ctx context.Context, ev notify.Event) error
}

type Options struct {
	MinimumCents int64
	ValidMonths  int
	Currency     string
	SiteURL      string
}

type Service struct {
	store   Store
	gateway Gateway
	mailer  Mailer
	events  EventEmitter
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
	newCode func() (string, error)
}

func NewService(store Store, gateway Gateway, mailer Mailer, events EventEmitter, opts Options, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		mailer:  mailer,
		events:  events,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		newCode: GenerateCode,
	}
}

type CheckoutRequest struct {
	AmountCents    int64               `json:"amount_cents"`
	BuyerName      string              `json:"buyer_name"`
	BuyerEmail     string              `json:"buyer_email"`
	RecipientName  string              `json:"recipient_name"`
	RecipientEmail string              `json:"recipient_email"`
	Message        string              `json:"message"`
	Delivery       models.DeliveryMode `json:"delivery"`
	ScheduledFor   *time.Time          `json:"scheduled_for"`
}

func (s *Service) validate(req *CheckoutRequest) error {
	req.BuyerEmail = strings.TrimSpace(req.BuyerEmail)
	req.RecipientEmail = strings.TrimSpace(req.RecipientEmail)

	if req.AmountCents < s.opts.MinimumCents {
		return fmt.Errorf("%w (%s)", ErrAmountTooLow, notify.FormatAmount(s.opts.MinimumCents, s.opts.Currency))
	}
	if !req.Delivery.Valid() {
		return ErrInvalidDelivery
	}
	if req.BuyerEmail == "" {
		return ErrBuyerEmailRequired
	}
	if req.Delivery == models.DeliverySchedule {
		if req.ScheduledFor == nil || req.ScheduledFor.IsZero() {
			return ErrScheduleRequired
		}
		if !req.ScheduledFor.After(s.now()) {
			return ErrScheduleInPast
		}
		if req.RecipientEmail == "" {
			return ErrRecipientRequired
		}
	}
	return nil
}

// StartCheckout validates the purchase and opens a hosted checkout whose
// metadata carries everything Issue needs.
func (s *Service) StartCheckout(ctx context.Context, req CheckoutRequest) (*payments.CheckoutSession, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	metadata := map[string]string{
		classifier.KeyKind:       string(models.KindVoucher),
		classifier.KeyDelivery:   string(req.Delivery),
		classifier.KeyBuyerName:  req.BuyerName,
		classifier.KeyBuyerEmail: req.BuyerEmail,
	}
	if req.RecipientName != "" {
		metadata[classifier.KeyRecipientName] = req.RecipientName
	}
	if req.RecipientEmail != "" {
		metadata[classifier.KeyRecipientEmail] = req.RecipientEmail
	}
	if req.Message != "" {
		metadata[classifier.KeyMessage] = req.Message
	}
	if req.Delivery == models.DeliverySchedule {
		metadata[classifier.KeyScheduledFor] = req.ScheduledFor.UTC().Format(time.RFC3339)
	}

	site := strings.TrimRight(s.opts.SiteURL, "/")
	sess, err := s.gateway.CreateCheckout(ctx, payments.CheckoutRequest{
		ProductName:   "Gift voucher",
		Description:   notify.FormatAmount(req.AmountCents, s.opts.Currency) + " gift voucher",
		AmountCents:   req.AmountCents,
		Currency:      s.opts.Currency,
		Quantity:      1,
		CustomerEmail: req.BuyerEmail,
		SuccessURL:    site + "/vouchers/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     site + "/vouchers",
		Metadata:      metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create voucher checkout: %w", err)
	}
	return sess, nil
}

// Issue creates the voucher for a paid checkout session. A second call for
// the same session returns created=false and changes nothing.
func (s *Service) Issue(ctx context.Context, p models.VoucherPurchase) (*models.Voucher, bool, error) {
	ctx, span := otel.Tracer("retail-service").Start(ctx, "vouchers.Issue")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.session_id", p.SessionID))

	now := s.now().UTC()
	v := &models.Voucher{
		InitialCents:          p.AmountCents,
		RemainingCents:        p.AmountCents,
		Currency:              p.Currency,
		Status:                models.VoucherStatusActive,
		BuyerName:             p.BuyerName,
		BuyerEmail:            p.BuyerEmail,
		RecipientName:         p.RecipientName,
		RecipientEmail:        p.RecipientEmail,
		Message:               p.Message,
		DeliveryMode:          p.Delivery,
		ScheduledFor:          p.ScheduledFor,
		ExpiresAt:             now.AddDate(0, s.opts.ValidMonths, 0),
		StripeSessionID:       p.SessionID,
		StripePaymentIntentID: p.PaymentIntentID,
	}
	if v.Currency == "" {
		v.Currency = s.opts.Currency
	}
	if p.Delivery != models.DeliverySchedule {
		v.DeliveredAt = &now
	}

	created, err := s.insertWithFreshCode(ctx, v)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	if !created {
		return nil, false, nil
	}

	s.logger.Info("Voucher issued",
		zap.String("voucher_code", v.Code),
		zap.String("stripe_session_id", v.StripeSessionID),
		zap.Int64("amount_cents", v.InitialCents),
		zap.String("delivery", string(v.DeliveryMode)),
	)
	middleware.RecordVoucherIssued(string(v.DeliveryMode))

	s.deliver(ctx, v)
	if err := s.events.Emit(ctx, notify.Event{
		EventType:   notify.EventVoucherIssued,
		SessionID:   v.StripeSessionID,
		VoucherCode: v.Code,
		AmountCents: v.InitialCents,
	}); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("event_type", notify.EventVoucherIssued), zap.Error(err))
	}
	return v, true, nil
}

func (s *Service) insertWithFreshCode(ctx context.Context, v *models.Voucher) (bool, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return false, err
		}
		v.Code = code

		created, err := s.store.CreateVoucher(ctx, v)
		if errors.Is(err, models.ErrDuplicateCode) {
			s.logger.Warn("Voucher code collision, regenerating", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to issue voucher: %w", err)
		}
		return created, nil
	}
	return false, fmt.Errorf("failed to issue voucher: no free code after %d attempts", maxCodeAttempts)
}

// deliver runs after the voucher is committed; send failures are logged with
// the code so the voucher can be re-sent by hand.
func (s *Service) deliver(ctx context.Context, v *models.Voucher) {
	var msgs []notify.Message
	switch v.DeliveryMode {
	case models.DeliveryEmailNow:
		msgs = append(msgs, notify.VoucherDelivery(v))
	case models.DeliveryPrint:
		msgs = append(msgs, notify.VoucherPrint(v))
	}
	msgs = append(msgs, notify.VoucherReceipt(v))

	for _, msg := range msgs {
		if err := s.mailer.Send(ctx, msg); err != nil {
			s.logger.Error("Failed to send voucher email",
				zap.String("voucher_code", v.Code),
				zap.String("kind", msg.Kind),
				zap.Error(err),
			)
		}
	}
}

// FindBySession looks up the voucher bought in a checkout session. A voucher
// that does not exist yet is reported with found=false, not an error.
func (s *Service) FindBySession(ctx context.Context, sessionID string) (*models.Voucher, bool, error) {
	v, err := s.store.GetBySession(ctx, sessionID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// DeliverDue sends scheduled vouchers whose date has come. A voucher whose
// email could not be queued is released and retried on the next run.
func (s *Service) DeliverDue(ctx context.Context) (int, error) {
	due, err := s.store.ClaimDue(ctx, s.now().UTC(), 50)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		v := &due[i]
		if err := s.mailer.Send(ctx, notify.VoucherDelivery(v)); err != nil {
			s.logger.Error("Failed to deliver scheduled voucher",
				zap.String("voucher_code", v.Code),
				zap.Error(err),
			)
			if relErr := s.store.ReleaseClaim(ctx, v.ID); relErr != nil {
				s.logger.Error("Failed to release voucher claim", zap.String("voucher_code", v.Code), zap.Error(relErr))
			}
			continue
		}
		sent++
		s.logger.Info("Scheduled voucher delivered", zap.String("voucher_code", v.Code))
	}
	return sent, nil
}

// Redeem spends amount from the voucher balance. The balance never goes
// below zero; reaching zero marks the voucher redeemed.
func (s *Service) Redeem(ctx context.Context, code string, amount int64) (*models.Voucher, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	code = NormalizeCode(code)
	now := s.now()

	v, ok, err := s.store.Debit(ctx, code, amount, now)
	if err != nil {
		return nil, err
	}
	if ok {
		s.logger.Info("Voucher redeemed",
			zap.String("voucher_code", v.Code),
			zap.Int64("amount_cents", amount),
			zap.Int64("remaining_cents", v.RemainingCents),
		)
		return v, nil
	}

	current, err := s.store.GetByCode(ctx, code)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	switch {
	case current.Status != models.VoucherStatusActive:
		return nil, ErrInactive
	case !current.ExpiresAt.After(now):
		return nil, ErrExpired
	default:
		return nil, ErrInsufficientBalance
	}
}
