package model

import "time"

// PaymentStatus is the reconciliation state of a payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentApproved PaymentStatus = "APPROVED"
	PaymentRejected PaymentStatus = "REJECTED"
)

// Payment records a monetary settlement of compensation hours.  Amount is
// in rupiah; HoursEquivalent is what approval removes from the balance.
type Payment struct {
	ID              uint64        `json:"id"`
	UserID          uint64        `json:"user_id"`
	Amount          int64         `json:"amount"`
	HoursEquivalent int           `json:"hours_equivalent"`
	ProofURL        string        `json:"proof_url,omitempty"`
	Note            string        `json:"note,omitempty"`
	Status          PaymentStatus `json:"status"`
	CreatedByID     uint64        `json:"created_by_id"`
	DecidedByID     *uint64       `json:"decided_by_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	DecidedAt       *time.Time    `json:"decided_at,omitempty"`
}
