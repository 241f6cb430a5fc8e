package model

import "time"

// ClearanceStatus is the review state of a clearance request.
type ClearanceStatus string

const (
	ClearancePending  ClearanceStatus = "PENDING"
	ClearanceApproved ClearanceStatus = "APPROVED"
	ClearanceRejected ClearanceStatus = "REJECTED"
)

// ClearanceRequest marks that a student's balance reached zero.  There is
// at most one per user.
type ClearanceRequest struct {
	ID        uint64          `json:"id"`
	UserID    uint64          `json:"user_id"`
	Status    ClearanceStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
