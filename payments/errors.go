package payments

import "errors"

var (
	ErrInvalidSignature = errors.New("webhook signature invalid")
	ErrMalformedEvent   = errors.New("webhook event malformed")
	ErrProviderDown     = errors.New("payment provider unavailable")
	ErrRefundFailed     = errors.New("refund failed")
	ErrNotFound         = errors.New("payment reference not found")
	ErrNotPaid          = errors.New("checkout session is not paid")
)
