package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit transaction kinds. The ledger writes usage and refund entries;
// purchase and bonus arrive through the billing webhook worker.
const (
	CreditKindUsage    = "usage"
	CreditKindRefund   = "refund"
	CreditKindPurchase = "purchase"
	CreditKindBonus    = "bonus"
)

// CreditTransaction is an append-only ledger row. BalanceAfter is always
// BalanceBefore plus the signed amount (negative for usage).
type CreditTransaction struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Kind          string    `json:"kind"`
	Amount        int       `json:"amount"`
	BalanceBefore int       `json:"balance_before"`
	BalanceAfter  int       `json:"balance_after"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
