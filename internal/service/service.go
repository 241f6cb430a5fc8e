// Package service holds the compensation-hours core: the hour ledger,
// the job marketplace and its application state machine, payment
// reconciliation, the audit trail and the admin operations around them.
//
// Every mutating operation runs inside one store transaction and returns
// either the committed entity or a *Failure.
package service

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo"

	"github.com/polteknik/kompen/internal/store"
)

var logger = loggo.GetLogger("kompen.service")

const notifyTimeout = 5 * time.Second

// Notification is a message for a student about a decision taken on one of
// their applications or payments.
type Notification struct {
	Template string // "approval" or "rejection"
	Subject  string // "application" or "payment"
	UserID   uint64
	EntityID uint64
	Data     map[string]interface{}
}

// Notifier delivers notifications.  It is only called after the
// transaction that produced the decision has committed.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Recorder receives counters about committed transitions.
type Recorder interface {
	Transition(entity, status string)
	HoursRelieved(hours int)
}

type nopRecorder struct{}

func (nopRecorder) Transition(string, string) {}
func (nopRecorder) HoursRelieved(int)         {}

// Deps are the collaborators of the core services.
type Deps struct {
	Store      store.Store
	Clock      clock.Clock
	Notifier   Notifier
	Metrics    Recorder
	BcryptCost int
}

// Services bundles the core services wired against one store.
type Services struct {
	Audit       *Audit
	Ledger      *Ledger
	Marketplace *Marketplace
	Payments    *Payments
	Users       *Users
	Settings    *Settings
	Clearances  *Clearances
	Reports     *Reports
}

// New wires the core services.
func New(d Deps) *Services {
	if d.Clock == nil {
		d.Clock = clock.WallClock
	}
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	audit := &Audit{store: d.Store}
	ledger := &Ledger{store: d.Store, audit: audit}
	out := &outbox{notifier: d.Notifier}
	return &Services{
		Audit:  audit,
		Ledger: ledger,
		Marketplace: &Marketplace{
			store:   d.Store,
			ledger:  ledger,
			audit:   audit,
			clock:   d.Clock,
			outbox:  out,
			metrics: d.Metrics,
		},
		Payments: &Payments{
			store:   d.Store,
			ledger:  ledger,
			audit:   audit,
			clock:   d.Clock,
			outbox:  out,
			metrics: d.Metrics,
		},
		Users:      &Users{store: d.Store, audit: audit, bcryptCost: d.BcryptCost},
		Settings:   &Settings{store: d.Store, audit: audit},
		Clearances: &Clearances{store: d.Store, audit: audit},
		Reports:    &Reports{store: d.Store},
	}
}

// outbox sends notifications once their transaction is committed.  A
// failed delivery is logged and otherwise ignored; the decision stands.
type outbox struct {
	notifier Notifier
}

func (o *outbox) send(ctx context.Context, n Notification) {
	if o == nil || o.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := o.notifier.Notify(ctx, n); err != nil {
		logger.Warningf("notify user %d about %s %d: %v", n.UserID, n.Subject, n.EntityID, err)
	}
}
