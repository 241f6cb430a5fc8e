package model

import (
	"encoding/json"
	"time"
)

// ActivityLog is one append-only audit row.  Details holds the JSON
// document produced by the audit recorder.
type ActivityLog struct {
	ID         uint64          `json:"id"`
	UserID     uint64          `json:"user_id"`
	Action     string          `json:"action"`
	TargetType string          `json:"target_type"`
	TargetID   *uint64         `json:"target_id,omitempty"`
	Details    json.RawMessage `json:"details"`
	CreatedAt  time.Time       `json:"created_at"`
}
