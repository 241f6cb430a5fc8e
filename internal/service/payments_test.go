package service

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

func TestApprovePaymentClampsWithoutClearance(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 10)

	pay, err := f.svc.Payments.CreatePayment(f.ctx, s, PaymentInput{
		StudentID: s.ID, Amount: 150000, HoursEquivalent: 15, ProofURL: "proof/tf.jpg",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(pay.Status, qt.Equals, model.PaymentPending)
	c.Assert(pay.CreatedByID, qt.Equals, s.ID)

	pay, err = f.svc.Payments.DecidePayment(f.ctx, f.keuangan, pay.ID, model.PaymentApproved)
	c.Assert(err, qt.IsNil)
	c.Assert(pay.Status, qt.Equals, model.PaymentApproved)
	c.Assert(*pay.DecidedByID, qt.Equals, f.keuangan.ID)
	c.Assert(pay.DecidedAt.Equal(epoch), qt.IsTrue)
	c.Assert(f.hours(c, s), qt.Equals, 0)

	// Reaching zero through a payment does not open a clearance request,
	// unlike completing a job.
	c.Assert(f.clearances(c), qt.HasLen, 0)

	c.Assert(f.metrics.relieved, qt.Equals, 10)
	sent := f.notifier.sent()
	c.Assert(sent, qt.HasLen, 1)
	c.Assert(sent[0].Subject, qt.Equals, "payment")
	c.Assert(sent[0].Template, qt.Equals, "approval")
}

func TestDecidePaymentOnlyOnce(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 10)
	pay, err := f.svc.Payments.CreatePayment(f.ctx, f.admin, PaymentInput{StudentID: s.ID, Amount: 50000, HoursEquivalent: 5})
	c.Assert(err, qt.IsNil)

	_, err = f.svc.Payments.DecidePayment(f.ctx, f.admin, pay.ID, model.PaymentRejected)
	c.Assert(err, qt.IsNil)
	c.Assert(f.hours(c, s), qt.Equals, 10)

	_, err = f.svc.Payments.DecidePayment(f.ctx, f.admin, pay.ID, model.PaymentApproved)
	c.Assert(err, qt.ErrorIs, InvalidState)
	c.Assert(f.hours(c, s), qt.Equals, 10)

	_, err = f.svc.Payments.DecidePayment(f.ctx, f.admin, pay.ID, model.PaymentPending)
	c.Assert(err, qt.ErrorIs, errors.NotValid)
	_, err = f.svc.Payments.DecidePayment(f.ctx, f.admin, 999, model.PaymentApproved)
	c.Assert(err, qt.ErrorIs, errors.NotFound)
}

func TestCreatePaymentRules(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 10)
	other := f.student(c, "citra", 10)

	_, err := f.svc.Payments.CreatePayment(f.ctx, other, PaymentInput{StudentID: s.ID, Amount: 1, HoursEquivalent: 1})
	c.Assert(err, qt.ErrorIs, errors.Forbidden)
	_, err = f.svc.Payments.CreatePayment(f.ctx, f.pengawas, PaymentInput{StudentID: s.ID, Amount: 1, HoursEquivalent: 1})
	c.Assert(err, qt.ErrorIs, errors.Forbidden)
	_, err = f.svc.Payments.CreatePayment(f.ctx, s, PaymentInput{StudentID: s.ID, Amount: 0, HoursEquivalent: 1})
	c.Assert(err, qt.ErrorIs, errors.NotValid)
	_, err = f.svc.Payments.CreatePayment(f.ctx, s, PaymentInput{StudentID: s.ID, Amount: 10, HoursEquivalent: -1})
	c.Assert(err, qt.ErrorIs, errors.NotValid)
	_, err = f.svc.Payments.CreatePayment(f.ctx, f.admin, PaymentInput{StudentID: f.pengawas.ID, Amount: 10})
	c.Assert(err, qt.ErrorIs, errors.NotValid)
	_, err = f.svc.Payments.CreatePayment(f.ctx, f.admin, PaymentInput{StudentID: 999, Amount: 10})
	c.Assert(err, qt.ErrorIs, errors.NotFound)

	_, err = f.svc.Payments.DecidePayment(f.ctx, s, 1, model.PaymentApproved)
	c.Assert(err, qt.ErrorIs, errors.Forbidden)
}

func TestListPaymentsScope(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 10)
	other := f.student(c, "citra", 10)
	for _, who := range []*Actor{s, other} {
		_, err := f.svc.Payments.CreatePayment(f.ctx, who, PaymentInput{StudentID: who.ID, Amount: 1000, HoursEquivalent: 1})
		c.Assert(err, qt.IsNil)
	}

	mine, err := f.svc.Payments.ListPayments(f.ctx, s, store.PaymentFilter{})
	c.Assert(err, qt.IsNil)
	c.Assert(mine, qt.HasLen, 1)
	c.Assert(mine[0].UserID, qt.Equals, s.ID)

	all, err := f.svc.Payments.ListPayments(f.ctx, f.keuangan, store.PaymentFilter{Status: model.PaymentPending})
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 2)

	_, err = f.svc.Payments.ListPayments(f.ctx, f.pengawas, store.PaymentFilter{})
	c.Assert(err, qt.ErrorIs, errors.Forbidden)
}
