package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "in_progress"
	IdempotencyCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord stores the exact response returned for (Key, Scope).
type IdempotencyRecord struct {
	Key         string
	Scope       string
	Principal   string
	Status      IdempotencyStatus
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
	CompletedAt *time.Time
}
