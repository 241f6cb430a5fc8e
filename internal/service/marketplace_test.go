package service

import (
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

func TestApplyAcceptProofComplete(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 10)
	job := f.job(c, f.admin, 10, 1)

	app, err := f.svc.Marketplace.Apply(f.ctx, s, job.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(app.Status, qt.Equals, model.ApplicationPending)
	c.Assert(app.AppliedAt.Equal(epoch), qt.IsTrue)

	app, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationAccepted)
	c.Assert(err, qt.IsNil)
	c.Assert(app.Status, qt.Equals, model.ApplicationAccepted)
	j := f.getJob(c, job.ID)
	c.Assert(j.Quota, qt.Equals, 0)
	c.Assert(j.Status, qt.Equals, model.JobClosed)

	app, err = f.svc.Marketplace.SubmitProof(f.ctx, s, app.ID, "proof/1.jpg", "", "selesai")
	c.Assert(err, qt.IsNil)
	c.Assert(app.Status, qt.Equals, model.ApplicationVerifying)

	app, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationCompleted)
	c.Assert(err, qt.IsNil)
	c.Assert(app.Status, qt.Equals, model.ApplicationCompleted)
	c.Assert(f.hours(c, s), qt.Equals, 0)

	cl := f.clearances(c)
	c.Assert(cl, qt.HasLen, 1)
	c.Assert(cl[0].UserID, qt.Equals, s.ID)
	c.Assert(cl[0].Status, qt.Equals, model.ClearancePending)

	c.Assert(actions(f.activity(c)), qt.DeepEquals, []string{
		ActionCompleteApplication,
		ActionCreateClearance,
		ActionAdjustHours,
		ActionSubmitProof,
		ActionAcceptApplication,
		ActionApplyJob,
		ActionCreateJob,
	})

	sent := f.notifier.sent()
	c.Assert(sent, qt.HasLen, 2)
	c.Assert(sent[0].Template, qt.Equals, "approval")
	c.Assert(sent[1].UserID, qt.Equals, s.ID)
	c.Assert(f.metrics.relieved, qt.Equals, 10)
}

func TestCompleteTwiceDoesNotDoubleDeduct(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 20)
	job := f.job(c, f.admin, 8, 2)

	app, err := f.svc.Marketplace.Apply(f.ctx, s, job.ID)
	c.Assert(err, qt.IsNil)
	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationAccepted)
	c.Assert(err, qt.IsNil)
	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationCompleted)
	c.Assert(err, qt.IsNil)
	c.Assert(f.hours(c, s), qt.Equals, 12)

	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationCompleted)
	c.Assert(err, qt.ErrorIs, InvalidState)
	c.Assert(f.hours(c, s), qt.Equals, 12)
	c.Assert(f.clearances(c), qt.HasLen, 0)
}

func TestRejectAfterAcceptRestoresQuota(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 10)
	job := f.job(c, f.admin, 10, 1)

	app, err := f.svc.Marketplace.Apply(f.ctx, s, job.ID)
	c.Assert(err, qt.IsNil)
	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationAccepted)
	c.Assert(err, qt.IsNil)
	c.Assert(f.getJob(c, job.ID).Status, qt.Equals, model.JobClosed)

	app, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationRejected)
	c.Assert(err, qt.IsNil)
	c.Assert(app.Status, qt.Equals, model.ApplicationRejected)
	j := f.getJob(c, job.ID)
	c.Assert(j.Quota, qt.Equals, 1)
	c.Assert(j.Status, qt.Equals, model.JobOpen)
	c.Assert(f.hours(c, s), qt.Equals, 10)

	sent := f.notifier.sent()
	c.Assert(sent[len(sent)-1].Template, qt.Equals, "rejection")
}

func TestRejectPendingKeepsQuota(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 10)
	job := f.job(c, f.admin, 4, 2)

	app, err := f.svc.Marketplace.Apply(f.ctx, s, job.ID)
	c.Assert(err, qt.IsNil)
	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationRejected)
	c.Assert(err, qt.IsNil)
	c.Assert(f.getJob(c, job.ID).Quota, qt.Equals, 2)

	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationRejected)
	c.Assert(err, qt.ErrorIs, InvalidState)
}

func TestApplyWithoutDebtFails(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "lunas", 0)
	job := f.job(c, f.admin, 5, 3)

	_, err := f.svc.Marketplace.Apply(f.ctx, s, job.ID)
	c.Assert(err, qt.ErrorIs, InvalidState)
	c.Assert(err, qt.ErrorMatches, ".*jam kompensasi.*")

	apps, err := f.mem.ListApplications(f.ctx, store.ApplicationFilter{UserID: s.ID})
	c.Assert(err, qt.IsNil)
	c.Assert(apps, qt.HasLen, 0)
}

func TestApplyChecks(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 10)
	open := f.job(c, f.admin, 5, 3)
	empty := f.job(c, f.admin, 5, 0)

	_, err := f.svc.Marketplace.Apply(f.ctx, s, 9999)
	c.Assert(err, qt.ErrorIs, errors.NotFound)

	_, err = f.svc.Marketplace.Apply(f.ctx, s, empty.ID)
	c.Assert(err, qt.ErrorIs, InvalidState)

	_, err = f.svc.Marketplace.Apply(f.ctx, s, open.ID)
	c.Assert(err, qt.IsNil)
	_, err = f.svc.Marketplace.Apply(f.ctx, s, open.ID)
	c.Assert(err, qt.ErrorIs, InvalidState)
	c.Assert(err, qt.ErrorMatches, "Anda sudah melamar pekerjaan ini")

	_, err = f.svc.Marketplace.Apply(f.ctx, nil, open.ID)
	c.Assert(err, qt.ErrorIs, errors.Unauthorized)
	_, err = f.svc.Marketplace.Apply(f.ctx, f.pengawas, open.ID)
	c.Assert(err, qt.ErrorIs, errors.Forbidden)
}

func TestApplyPendingCap(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 40)
	var jobs []model.Job
	for i := 0; i < 4; i++ {
		jobs = append(jobs, f.job(c, f.admin, 2, 5))
	}
	for i := 0; i < 2; i++ {
		_, err := f.svc.Marketplace.Apply(f.ctx, s, jobs[i].ID)
		c.Assert(err, qt.IsNil)
	}
	// Two pending: the third still fits.
	_, err := f.svc.Marketplace.Apply(f.ctx, s, jobs[2].ID)
	c.Assert(err, qt.IsNil)

	_, err = f.svc.Marketplace.Apply(f.ctx, s, jobs[3].ID)
	c.Assert(err, qt.ErrorIs, errors.QuotaLimitExceeded)
}

func TestConcurrentAcceptOnLastSlot(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	job := f.job(c, f.admin, 6, 1)
	var ids []uint64
	for _, name := range []string{"ani", "budi"} {
		app, err := f.svc.Marketplace.Apply(f.ctx, f.student(c, name, 10), job.ID)
		c.Assert(err, qt.IsNil)
		ids = append(ids, app.ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uint64) {
			defer wg.Done()
			_, errs[i] = f.svc.Marketplace.Decide(f.ctx, f.admin, id, model.ApplicationAccepted)
		}(i, id)
	}
	wg.Wait()

	var ok, capped int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errors.QuotaLimitExceeded):
			capped++
		default:
			c.Fatalf("unexpected error: %v", err)
		}
	}
	c.Assert(ok, qt.Equals, 1)
	c.Assert(capped, qt.Equals, 1)
	j := f.getJob(c, job.ID)
	c.Assert(j.Quota, qt.Equals, 0)
	c.Assert(j.Status, qt.Equals, model.JobClosed)
}

func TestDecideOwnership(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	other := f.user(c, "pengawas2", model.RolePengawas, 0)
	s := f.student(c, "budi", 10)
	job := f.job(c, f.pengawas, 5, 2)
	app, err := f.svc.Marketplace.Apply(f.ctx, s, job.ID)
	c.Assert(err, qt.IsNil)

	_, err = f.svc.Marketplace.Decide(f.ctx, other, app.ID, model.ApplicationAccepted)
	c.Assert(err, qt.ErrorIs, errors.Forbidden)
	_, err = f.svc.Marketplace.Decide(f.ctx, f.keuangan, app.ID, model.ApplicationAccepted)
	c.Assert(err, qt.ErrorIs, errors.Forbidden)
	_, err = f.svc.Marketplace.Decide(f.ctx, s, app.ID, model.ApplicationAccepted)
	c.Assert(err, qt.ErrorIs, errors.Forbidden)

	_, err = f.svc.Marketplace.Decide(f.ctx, f.pengawas, app.ID, model.ApplicationAccepted)
	c.Assert(err, qt.IsNil)
	c.Assert(f.getJob(c, job.ID).Quota, qt.Equals, 1)
}

func TestDecideRejectsUnknownStatus(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	_, err := f.svc.Marketplace.Decide(f.ctx, f.admin, 1, model.ApplicationVerifying)
	c.Assert(err, qt.ErrorIs, errors.NotValid)
	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, 404, model.ApplicationAccepted)
	c.Assert(err, qt.ErrorIs, errors.NotFound)
}

func TestSubmitProofRules(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 10)
	intruder := f.student(c, "citra", 10)
	job := f.job(c, f.admin, 5, 2)
	app, err := f.svc.Marketplace.Apply(f.ctx, s, job.ID)
	c.Assert(err, qt.IsNil)

	_, err = f.svc.Marketplace.SubmitProof(f.ctx, s, app.ID, "a.jpg", "", "")
	c.Assert(err, qt.ErrorIs, InvalidState)

	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationAccepted)
	c.Assert(err, qt.IsNil)

	_, err = f.svc.Marketplace.SubmitProof(f.ctx, intruder, app.ID, "a.jpg", "", "")
	c.Assert(err, qt.ErrorIs, errors.Forbidden)
	_, err = f.svc.Marketplace.SubmitProof(f.ctx, s, app.ID, "  ", "", "")
	c.Assert(err, qt.ErrorIs, errors.NotValid)

	app, err = f.svc.Marketplace.SubmitProof(f.ctx, s, app.ID, "a.jpg", "b.jpg", "beres")
	c.Assert(err, qt.IsNil)
	c.Assert(app.ProofImage2, qt.Equals, "b.jpg")
	c.Assert(app.SubmissionNote, qt.Equals, "beres")
}

func TestCompletionPartialReliefNoClearance(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 15)
	job := f.job(c, f.admin, 10, 1)
	app, err := f.svc.Marketplace.Apply(f.ctx, s, job.ID)
	c.Assert(err, qt.IsNil)
	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationAccepted)
	c.Assert(err, qt.IsNil)
	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationCompleted)
	c.Assert(err, qt.IsNil)
	c.Assert(f.hours(c, s), qt.Equals, 5)
	c.Assert(f.clearances(c), qt.HasLen, 0)
}

func TestClearanceCreatedOnce(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	s := f.student(c, "budi", 4)
	for i := 0; i < 2; i++ {
		job := f.job(c, f.admin, 4, 1)
		app, err := f.svc.Marketplace.Apply(f.ctx, s, job.ID)
		c.Assert(err, qt.IsNil)
		_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationAccepted)
		c.Assert(err, qt.IsNil)
		_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationCompleted)
		c.Assert(err, qt.IsNil)
		if i == 0 {
			// Back in debt after an override, then cleared again.
			_, err = f.svc.Ledger.SetHoursAbsolute(f.ctx, f.admin, s.ID, 4, "koreksi semester")
			c.Assert(err, qt.IsNil)
		}
	}
	c.Assert(f.hours(c, s), qt.Equals, 0)
	c.Assert(f.clearances(c), qt.HasLen, 1)
}

func TestDecideRollsBackWhenAuditFails(t *testing.T) {
	c := qt.New(t)
	f := newFixtureWith(c, func(m *store.Memory) store.Store {
		return &faultyStore{Memory: m, failAction: ActionCompleteApplication}
	})
	s := f.student(c, "budi", 10)
	job := f.job(c, f.admin, 10, 1)
	app, err := f.svc.Marketplace.Apply(f.ctx, s, job.ID)
	c.Assert(err, qt.IsNil)
	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationAccepted)
	c.Assert(err, qt.IsNil)

	_, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationCompleted)
	c.Assert(err, qt.ErrorIs, PersistenceError)

	c.Assert(f.hours(c, s), qt.Equals, 10)
	c.Assert(f.clearances(c), qt.HasLen, 0)
	got, err := f.mem.GetApplication(f.ctx, app.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Status, qt.Equals, model.ApplicationAccepted)
}

func TestNotifierFailureDoesNotFailDecision(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	f.notifier.err = errors.New("broker down")
	s := f.student(c, "budi", 10)
	job := f.job(c, f.admin, 5, 1)
	app, err := f.svc.Marketplace.Apply(f.ctx, s, job.ID)
	c.Assert(err, qt.IsNil)

	app, err = f.svc.Marketplace.Decide(f.ctx, f.admin, app.ID, model.ApplicationAccepted)
	c.Assert(err, qt.IsNil)
	c.Assert(app.Status, qt.Equals, model.ApplicationAccepted)
	c.Assert(f.notifier.sent(), qt.HasLen, 1)
}

func TestJobManagement(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	other := f.user(c, "pengawas2", model.RolePengawas, 0)
	job := f.job(c, f.pengawas, 5, 2)

	_, err := f.svc.Marketplace.CreateJob(f.ctx, f.admin, JobInput{Title: " ", Hours: 1, Quota: 1})
	c.Assert(err, qt.ErrorIs, errors.NotValid)
	_, err = f.svc.Marketplace.CreateJob(f.ctx, f.keuangan, JobInput{Title: "x", Hours: 1, Quota: 1})
	c.Assert(err, qt.ErrorIs, errors.Forbidden)

	_, err = f.svc.Marketplace.UpdateJob(f.ctx, other, job.ID, JobInput{Title: "x", Hours: 5, Quota: 2})
	c.Assert(err, qt.ErrorIs, errors.Forbidden)

	updated, err := f.svc.Marketplace.UpdateJob(f.ctx, f.pengawas, job.ID, JobInput{Title: "Inventaris", Hours: 6, Quota: 3})
	c.Assert(err, qt.IsNil)
	c.Assert(updated.Hours, qt.Equals, 6)

	_, err = f.svc.Marketplace.Apply(f.ctx, f.student(c, "budi", 10), job.ID)
	c.Assert(err, qt.IsNil)
	_, err = f.svc.Marketplace.UpdateJob(f.ctx, f.pengawas, job.ID, JobInput{Title: "Inventaris", Hours: 9, Quota: 3})
	c.Assert(err, qt.ErrorIs, InvalidState)

	closed, err := f.svc.Marketplace.SetJobStatus(f.ctx, f.pengawas, job.ID, model.JobClosed)
	c.Assert(err, qt.IsNil)
	c.Assert(closed.Status, qt.Equals, model.JobClosed)
	c.Assert(closed.Quota, qt.Equals, 3)

	c.Assert(f.svc.Marketplace.DeleteJob(f.ctx, other, job.ID), qt.ErrorIs, errors.Forbidden)
	c.Assert(f.svc.Marketplace.DeleteJob(f.ctx, f.admin, job.ID), qt.IsNil)
	apps, err := f.mem.ListApplications(f.ctx, store.ApplicationFilter{JobID: job.ID})
	c.Assert(err, qt.IsNil)
	c.Assert(apps, qt.HasLen, 0)
}

func TestOpenWithoutQuotaRefused(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	job := f.job(c, f.admin, 5, 0)
	c.Assert(job.Status, qt.Equals, model.JobClosed)
	_, err := f.svc.Marketplace.SetJobStatus(f.ctx, f.admin, job.ID, model.JobOpen)
	c.Assert(err, qt.ErrorIs, InvalidState)
}

func TestListingScopes(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	other := f.user(c, "pengawas2", model.RolePengawas, 0)
	mine := f.job(c, f.pengawas, 5, 2)
	theirs := f.job(c, other, 5, 2)
	closed := f.job(c, f.admin, 5, 0)

	ani := f.student(c, "ani", 10)
	budi := f.student(c, "budi", 10)
	_, err := f.svc.Marketplace.Apply(f.ctx, ani, mine.ID)
	c.Assert(err, qt.IsNil)
	_, err = f.svc.Marketplace.Apply(f.ctx, budi, theirs.ID)
	c.Assert(err, qt.IsNil)

	jobs, err := f.svc.Marketplace.ListJobs(f.ctx, ani, store.JobFilter{})
	c.Assert(err, qt.IsNil)
	c.Assert(jobs, qt.HasLen, 2)
	for _, j := range jobs {
		c.Assert(j.ID, qt.Not(qt.Equals), closed.ID)
	}

	jobs, err = f.svc.Marketplace.ListJobs(f.ctx, f.pengawas, store.JobFilter{})
	c.Assert(err, qt.IsNil)
	c.Assert(jobs, qt.HasLen, 1)
	c.Assert(jobs[0].ID, qt.Equals, mine.ID)

	_, err = f.svc.Marketplace.GetJob(f.ctx, ani, closed.ID)
	c.Assert(err, qt.ErrorIs, errors.NotFound)

	apps, err := f.svc.Marketplace.ListApplications(f.ctx, budi, store.ApplicationFilter{})
	c.Assert(err, qt.IsNil)
	c.Assert(apps, qt.HasLen, 1)
	c.Assert(apps[0].JobID, qt.Equals, theirs.ID)

	apps, err = f.svc.Marketplace.ListApplications(f.ctx, f.pengawas, store.ApplicationFilter{})
	c.Assert(err, qt.IsNil)
	c.Assert(apps, qt.HasLen, 1)
	c.Assert(apps[0].StudentName, qt.Equals, "ani")

	apps, err = f.svc.Marketplace.ListApplications(f.ctx, f.admin, store.ApplicationFilter{})
	c.Assert(err, qt.IsNil)
	c.Assert(apps, qt.HasLen, 2)

	_, err = f.svc.Marketplace.ListApplications(f.ctx, f.keuangan, store.ApplicationFilter{})
	c.Assert(err, qt.ErrorIs, errors.Forbidden)
}
