package service

import (
	"context"
	"encoding/json"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

// Actions recorded in the activity log.
const (
	ActionApplyJob            = "APPLY_JOB"
	ActionAcceptApplication   = "ACCEPT_APPLICATION"
	ActionCompleteApplication = "COMPLETE_APPLICATION"
	ActionRejectApplication   = "REJECT_APPLICATION"
	ActionSubmitProof         = "SUBMIT_PROOF"
	ActionCreateJob           = "CREATE_JOB"
	ActionUpdateJob           = "UPDATE_JOB"
	ActionSetJobStatus        = "SET_JOB_STATUS"
	ActionDeleteJob           = "DELETE_JOB"
	ActionAdjustHours         = "ADJUST_HOURS"
	ActionOverrideHours       = "OVERRIDE_HOURS"
	ActionCreatePayment       = "CREATE_PAYMENT"
	ActionApprovePayment      = "APPROVE_PAYMENT"
	ActionRejectPayment       = "REJECT_PAYMENT"
	ActionCreateClearance     = "CREATE_CLEARANCE"
	ActionDecideClearance     = "DECIDE_CLEARANCE"
	ActionCreateUser          = "CREATE_USER"
	ActionUpdateUser          = "UPDATE_USER"
	ActionDeleteUser          = "DELETE_USER"
	ActionImportUsers         = "IMPORT_USERS"
	ActionUpdateSetting       = "UPDATE_SETTING"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// Audit writes and reads the append-only activity log.
type Audit struct {
	store store.Reader
}

// Record appends one activity row inside tx.  A zero targetID is stored
// as NULL.  Details is marshalled to JSON; nil becomes an empty object.
func (a *Audit) Record(ctx context.Context, tx store.Tx, actor *Actor, action, targetType string, targetID uint64, details interface{}) error {
	raw := json.RawMessage("{}")
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return err
		}
		raw = b
	}
	l := &model.ActivityLog{
		Action:     action,
		TargetType: targetType,
		Details:    raw,
	}
	if actor != nil {
		l.UserID = actor.ID
	}
	if targetID != 0 {
		id := targetID
		l.TargetID = &id
	}
	return tx.AppendActivity(ctx, l)
}

// ListRecent returns the newest activity rows.  limit is clamped to
// [1, 500]; zero or negative means 50.
func (a *Audit) ListRecent(ctx context.Context, actor *Actor, limit int) ([]model.ActivityLog, error) {
	if err := Authorize(actor, OpViewActivity, Resource{}); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultActivityLimit
	case limit > maxActivityLimit:
		limit = maxActivityLimit
	}
	logs, err := a.store.ListActivity(ctx, limit)
	if err != nil {
		return nil, settle("list activity", err)
	}
	return logs, nil
}
