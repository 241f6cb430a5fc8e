package service

import (
	"context"
	"strings"

	"github.com/polteknik/kompen/internal/store"
)

// Balance is a user's hour balance before and after a ledger movement.
type Balance struct {
	UserID uint64 `json:"user_id"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

// Ledger owns User.TotalHours.  No other code writes the balance.
type Ledger struct {
	store store.Store
	audit *Audit
}

// Adjust moves userID's balance by delta inside tx, clamping the result at
// zero, and records the movement in the activity log of the same
// transaction.  Only an ADMIN may increase a balance.
func (l *Ledger) Adjust(ctx context.Context, tx store.Tx, actor *Actor, userID uint64, delta int, reason string) (Balance, error) {
	if actor == nil || actor.ID == 0 {
		return Balance{}, errUnauthorized()
	}
	if delta > 0 {
		if err := Authorize(actor, OpOverrideHours, Resource{}); err != nil {
			return Balance{}, err
		}
	}
	u, err := tx.UserForUpdate(ctx, userID)
	if err != nil {
		return Balance{}, notFound(err, "Mahasiswa")
	}
	after := u.TotalHours + delta
	if after < 0 {
		after = 0
	}
	if err := tx.SetUserHours(ctx, userID, after); err != nil {
		return Balance{}, err
	}
	bal := Balance{UserID: userID, Before: u.TotalHours, After: after}
	err = l.audit.Record(ctx, tx, actor, ActionAdjustHours, "User", userID, map[string]interface{}{
		"before": bal.Before,
		"after":  bal.After,
		"delta":  delta,
		"reason": reason,
	})
	if err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// SetHoursAbsolute is the administrative override of a balance.  The new
// value is clamped at zero and a reason is mandatory.
func (l *Ledger) SetHoursAbsolute(ctx context.Context, actor *Actor, userID uint64, hours int, reason string) (Balance, error) {
	if err := Authorize(actor, OpOverrideHours, Resource{}); err != nil {
		return Balance{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Balance{}, errInvalid("Alasan perubahan jam wajib diisi")
	}
	if hours < 0 {
		hours = 0
	}
	var bal Balance
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.UserForUpdate(ctx, userID)
		if err != nil {
			return notFound(err, "Mahasiswa")
		}
		if err := tx.SetUserHours(ctx, userID, hours); err != nil {
			return err
		}
		bal = Balance{UserID: userID, Before: u.TotalHours, After: hours}
		return l.audit.Record(ctx, tx, actor, ActionOverrideHours, "User", userID, map[string]interface{}{
			"old":    bal.Before,
			"new":    bal.After,
			"reason": reason,
		})
	})
	if err != nil {
		return Balance{}, settle("set hours", err)
	}
	logger.Infof("user %d hours set %d -> %d by %d", userID, bal.Before, bal.After, actor.ID)
	return bal, nil
}
