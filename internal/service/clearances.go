package service

import (
	"context"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

// Clearances lets an administrator settle the clearance requests opened
// when a student's balance reaches zero through completed work.
type Clearances struct {
	store store.Store
	audit *Audit
}

// List returns clearance requests, optionally only those in status.
func (c *Clearances) List(ctx context.Context, actor *Actor, status model.ClearanceStatus) ([]model.ClearanceRequest, error) {
	if err := Authorize(actor, OpManageClearances, Resource{}); err != nil {
		return nil, err
	}
	out, err := c.store.ListClearances(ctx, status)
	if err != nil {
		return nil, settle("list clearances", err)
	}
	return out, nil
}

// Decide approves or rejects a PENDING clearance request.
func (c *Clearances) Decide(ctx context.Context, actor *Actor, id uint64, to model.ClearanceStatus) (model.ClearanceRequest, error) {
	if err := Authorize(actor, OpManageClearances, Resource{}); err != nil {
		return model.ClearanceRequest{}, err
	}
	if to != model.ClearanceApproved && to != model.ClearanceRejected {
		return model.ClearanceRequest{}, errInvalid("Status %q tidak dikenal", to)
	}
	var req model.ClearanceRequest
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if req, err = tx.ClearanceForUpdate(ctx, id); err != nil {
			return notFound(err, "Permohonan bebas kompen")
		}
		if req.Status != model.ClearancePending {
			return fail(InvalidState, "Permohonan sudah diputuskan (%s)", req.Status)
		}
		req.Status = to
		if err := tx.UpdateClearance(ctx, req); err != nil {
			return err
		}
		return c.audit.Record(ctx, tx, actor, ActionDecideClearance, "ClearanceRequest", req.ID, map[string]interface{}{
			"user_id": req.UserID,
			"to":      to,
		})
	})
	if err != nil {
		return model.ClearanceRequest{}, settle("decide clearance", err)
	}
	return req, nil
}
