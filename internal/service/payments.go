package service

import (
	"context"

	"github.com/juju/clock"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

// PaymentInput is a claim that a student paid money in lieu of hours.
type PaymentInput struct {
	StudentID       uint64 `json:"student_id"`
	Amount          int64  `json:"amount"`
	HoursEquivalent int    `json:"hours_equivalent"`
	ProofURL        string `json:"proof_url"`
	Note            string `json:"note"`
}

// Payments reconciles money payments against hour balances.
type Payments struct {
	store   store.Store
	ledger  *Ledger
	audit   *Audit
	clock   clock.Clock
	outbox  *outbox
	metrics Recorder
}

// CreatePayment records a PENDING payment for a student.  Students may
// only file payments for themselves.
func (p *Payments) CreatePayment(ctx context.Context, actor *Actor, in PaymentInput) (model.Payment, error) {
	if err := Authorize(actor, OpCreatePayment, Resource{OwnerID: in.StudentID}); err != nil {
		return model.Payment{}, err
	}
	switch {
	case in.Amount <= 0:
		return model.Payment{}, errInvalid("Nominal pembayaran harus lebih dari 0")
	case in.HoursEquivalent < 0:
		return model.Payment{}, errInvalid("Jam setara tidak boleh negatif")
	}

	pay := model.Payment{
		UserID:          in.StudentID,
		Amount:          in.Amount,
		HoursEquivalent: in.HoursEquivalent,
		ProofURL:        in.ProofURL,
		Note:            in.Note,
		Status:          model.PaymentPending,
		CreatedByID:     actor.ID,
	}
	err := p.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.UserForUpdate(ctx, in.StudentID)
		if err != nil {
			return notFound(err, "Mahasiswa")
		}
		if u.Role != model.RoleMahasiswa {
			return errInvalid("Pembayaran hanya dapat dicatat untuk mahasiswa")
		}
		if err := tx.CreatePayment(ctx, &pay); err != nil {
			return err
		}
		return p.audit.Record(ctx, tx, actor, ActionCreatePayment, "Payment", pay.ID, map[string]interface{}{
			"student_id":       in.StudentID,
			"amount":           in.Amount,
			"hours_equivalent": in.HoursEquivalent,
		})
	})
	if err != nil {
		return model.Payment{}, settle("create payment", err)
	}
	p.metrics.Transition("payment", string(pay.Status))
	return pay, nil
}

// DecidePayment approves or rejects a PENDING payment.  Approval relieves
// the student's balance by the payment's hour equivalent in the same
// transaction.  Unlike completed work, an approval never opens a
// clearance request.
func (p *Payments) DecidePayment(ctx context.Context, actor *Actor, id uint64, to model.PaymentStatus) (model.Payment, error) {
	if err := Authorize(actor, OpDecidePayment, Resource{}); err != nil {
		return model.Payment{}, err
	}
	if to != model.PaymentApproved && to != model.PaymentRejected {
		return model.Payment{}, errInvalid("Status %q tidak dikenal", to)
	}

	var (
		pay    model.Payment
		relief int
	)
	err := p.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		pay, err = tx.PaymentForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "Pembayaran")
		}
		if pay.Status != model.PaymentPending {
			return fail(InvalidState, "Pembayaran sudah diputuskan (%s)", pay.Status)
		}
		action := ActionRejectPayment
		if to == model.PaymentApproved {
			bal, err := p.ledger.Adjust(ctx, tx, actor, pay.UserID, -pay.HoursEquivalent, "Pembayaran disetujui")
			if err != nil {
				return err
			}
			relief = bal.Before - bal.After
			action = ActionApprovePayment
		}
		now := p.clock.Now().UTC()
		decidedBy := actor.ID
		pay.Status = to
		pay.DecidedByID = &decidedBy
		pay.DecidedAt = &now
		if err := tx.UpdatePayment(ctx, pay); err != nil {
			return err
		}
		return p.audit.Record(ctx, tx, actor, action, "Payment", pay.ID, map[string]interface{}{
			"from":             model.PaymentPending,
			"to":               to,
			"amount":           pay.Amount,
			"hours_equivalent": pay.HoursEquivalent,
		})
	})
	if err != nil {
		return model.Payment{}, settle("decide payment", err)
	}

	p.metrics.Transition("payment", string(to))
	if relief > 0 {
		p.metrics.HoursRelieved(relief)
	}
	template := "approval"
	if to == model.PaymentRejected {
		template = "rejection"
	}
	p.outbox.send(ctx, Notification{
		Template: template,
		Subject:  "payment",
		UserID:   pay.UserID,
		EntityID: pay.ID,
		Data: map[string]interface{}{
			"status":           to,
			"amount":           pay.Amount,
			"hours_equivalent": pay.HoursEquivalent,
		},
	})
	return pay, nil
}

// ListPayments lists payments visible to the actor.  Students see only
// their own.
func (p *Payments) ListPayments(ctx context.Context, actor *Actor, f store.PaymentFilter) ([]model.Payment, error) {
	scope, err := Allowed(actor, OpListPayments)
	if err != nil {
		return nil, err
	}
	if scope == ScopeOwner {
		f.UserID = actor.ID
	}
	out, err := p.store.ListPayments(ctx, f)
	if err != nil {
		return nil, settle("list payments", err)
	}
	return out, nil
}
