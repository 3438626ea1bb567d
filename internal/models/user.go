// internal/models/user.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64     `json:"id"`
	FullName     string    `json:"full_name"`
	Username     string    `json:"username"`
	Birthdate    time.Time `json:"birthdate"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	PlanID       int64     `json:"plan_id"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// PlanAssignment is the single current plan row of a user.
type PlanAssignment struct {
	UserID         int64     `json:"user_id"`
	PlanID         int64     `json:"plan_id"`
	Active         bool      `json:"active"`
	IncludedAt     time.Time `json:"included_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
}

// LedgerEntry is one billing event. Rows are never updated except Reversed.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	PlanID      int64           `json:"plan_id"`
	PaidAt      time.Time       `json:"paid_at"`
	Method      string          `json:"method"`
	Amount      decimal.Decimal `json:"amount"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Reversed    bool            `json:"reversed"`
	ExternalRef string          `json:"external_ref"`
}

// ConfirmedPayment is the normalized fact that money was received for a
// plan. It is consumed by the ledger writer and never stored as such.
type ConfirmedPayment struct {
	UserID         int64
	PlanID         int64
	Amount         decimal.Decimal
	Method         string
	PaidAt         time.Time
	ExpiresAt      time.Time
	ExternalRef    string
	SubscriptionID string
}

// Entry converts the payment into the ledger row that records it.
func (p ConfirmedPayment) Entry() *LedgerEntry {
	return &LedgerEntry{
		UserID:      p.UserID,
		PlanID:      p.PlanID,
		PaidAt:      p.PaidAt,
		Method:      p.Method,
		Amount:      p.Amount,
		ExpiresAt:   p.ExpiresAt,
		ExternalRef: p.ExternalRef,
	}
}

// Assignment converts the payment into the active plan row it establishes.
func (p ConfirmedPayment) Assignment() *PlanAssignment {
	return &PlanAssignment{
		UserID:         p.UserID,
		PlanID:         p.PlanID,
		Active:         true,
		IncludedAt:     p.PaidAt,
		ExpiresAt:      p.ExpiresAt,
		SubscriptionID: p.SubscriptionID,
	}
}

// MinorUnits converts a provider amount in cents into the ledger currency unit.
func MinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
