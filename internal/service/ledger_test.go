package service

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/store"
)

func (f *fixture) adjust(c *qt.C, actor *Actor, userID uint64, delta int) (Balance, error) {
	var bal Balance
	err := f.mem.WithinTx(f.ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		bal, err = f.svc.Ledger.Adjust(ctx, tx, actor, userID, delta, "test")
		return err
	})
	return bal, err
}

func TestAdjustRoundTrip(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 12)

	bal, err := f.adjust(c, f.admin, s.ID, -5)
	c.Assert(err, qt.IsNil)
	c.Assert(bal, qt.DeepEquals, Balance{UserID: s.ID, Before: 12, After: 7})

	_, err = f.adjust(c, f.admin, s.ID, 5)
	c.Assert(err, qt.IsNil)
	c.Assert(f.hours(c, s), qt.Equals, 12)
}

func TestAdjustClampsAtZero(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 3)

	bal, err := f.adjust(c, f.pengawas, s.ID, -10)
	c.Assert(err, qt.IsNil)
	c.Assert(bal.After, qt.Equals, 0)
	c.Assert(f.hours(c, s), qt.Equals, 0)
}

func TestAdjustIncreaseNeedsAdmin(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 3)

	_, err := f.adjust(c, f.keuangan, s.ID, 2)
	c.Assert(err, qt.ErrorIs, errors.Forbidden)
	c.Assert(f.hours(c, s), qt.Equals, 3)

	_, err = f.adjust(c, f.admin, 999, -1)
	c.Assert(err, qt.ErrorIs, errors.NotFound)
}

func TestSetHoursAbsolute(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 10)

	_, err := f.svc.Ledger.SetHoursAbsolute(f.ctx, f.admin, s.ID, 5, "")
	c.Assert(err, qt.ErrorIs, errors.NotValid)
	_, err = f.svc.Ledger.SetHoursAbsolute(f.ctx, f.admin, s.ID, 5, "   ")
	c.Assert(err, qt.ErrorIs, errors.NotValid)
	c.Assert(f.hours(c, s), qt.Equals, 10)

	_, err = f.svc.Ledger.SetHoursAbsolute(f.ctx, f.keuangan, s.ID, 5, "correction")
	c.Assert(err, qt.ErrorIs, errors.Forbidden)
	_, err = f.svc.Ledger.SetHoursAbsolute(f.ctx, nil, s.ID, 5, "correction")
	c.Assert(err, qt.ErrorIs, errors.Unauthorized)

	bal, err := f.svc.Ledger.SetHoursAbsolute(f.ctx, f.admin, s.ID, 5, "correction")
	c.Assert(err, qt.IsNil)
	c.Assert(bal, qt.DeepEquals, Balance{UserID: s.ID, Before: 10, After: 5})

	bal, err = f.svc.Ledger.SetHoursAbsolute(f.ctx, f.admin, s.ID, -4, "correction")
	c.Assert(err, qt.IsNil)
	c.Assert(bal.After, qt.Equals, 0)

	logs := f.activity(c)
	c.Assert(logs[0].Action, qt.Equals, ActionOverrideHours)
	c.Assert(string(logs[0].Details), qt.JSONEquals, map[string]interface{}{
		"old": 5, "new": 0, "reason": "correction",
	})
	c.Assert(*logs[0].TargetID, qt.Equals, s.ID)
	c.Assert(logs[0].UserID, qt.Equals, f.admin.ID)

	_, err = f.svc.Ledger.SetHoursAbsolute(f.ctx, f.admin, 999, 1, "correction")
	c.Assert(err, qt.ErrorIs, errors.NotFound)
}

func TestAdjustWithoutActor(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 10)
	before := len(f.activity(c))

	_, err := f.adjust(c, nil, s.ID, -4)
	c.Assert(err, qt.ErrorIs, errors.Unauthorized)
	_, err = f.adjust(c, &Actor{Role: "ADMIN"}, s.ID, -4)
	c.Assert(err, qt.ErrorIs, errors.Unauthorized)

	c.Assert(f.hours(c, s), qt.Equals, 10)
	c.Assert(f.activity(c), qt.HasLen, before)
}
