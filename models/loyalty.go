package models

import (
	"encoding/json"
	"time"
)

type LoyaltyEntryType string

const (
	LoyaltyJoinBonus    LoyaltyEntryType = "join_bonus"
	LoyaltyPurchaseEarn LoyaltyEntryType = "purchase_earn"
	LoyaltyManualAdjust LoyaltyEntryType = "manual_adjust"
	LoyaltyRedeem       LoyaltyEntryType = "redeem"
)

// LoyaltyEntry is append-only; a balance is always the sum of entries.
type LoyaltyEntry struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Points    int64            `json:"points"`
	Type      LoyaltyEntryType `json:"type"`
	Source    string           `json:"source"`
	Metadata  json.RawMessage  `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
