package service

import (
	"context"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

// MaxPendingApplications is how many PENDING applications a student may
// hold at once.
const MaxPendingApplications = 3

// Marketplace runs the job board and the application state machine.
type Marketplace struct {
	store   store.Store
	ledger  *Ledger
	audit   *Audit
	clock   clock.Clock
	outbox  *outbox
	metrics Recorder
}

// Apply files a PENDING application of the acting student for jobID.
func (m *Marketplace) Apply(ctx context.Context, actor *Actor, jobID uint64) (model.JobApplication, error) {
	if _, err := Allowed(actor, OpApply); err != nil {
		return model.JobApplication{}, err
	}

	var app model.JobApplication
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		job, err := tx.JobForUpdate(ctx, jobID)
		if err != nil {
			return notFound(err, "Pekerjaan")
		}
		u, err := tx.UserForUpdate(ctx, actor.ID)
		if err != nil {
			return notFound(err, "Mahasiswa")
		}
		if u.TotalHours <= 0 {
			return fail(InvalidState, "Anda tidak memiliki jam kompensasi yang perlu diselesaikan")
		}
		if job.Status != model.JobOpen {
			return fail(InvalidState, "Pekerjaan %q sudah ditutup", job.Title)
		}
		if job.Quota <= 0 {
			return fail(errors.QuotaLimitExceeded, "Kuota pekerjaan %q sudah penuh", job.Title)
		}
		exists, err := tx.ApplicationExists(ctx, jobID, actor.ID)
		if err != nil {
			return err
		}
		if exists {
			return fail(InvalidState, "Anda sudah melamar pekerjaan ini")
		}
		pending, err := tx.CountPendingApplications(ctx, actor.ID)
		if err != nil {
			return err
		}
		if pending >= MaxPendingApplications {
			return fail(errors.QuotaLimitExceeded, "Anda masih memiliki %d lamaran yang menunggu persetujuan", pending)
		}

		app = model.JobApplication{
			JobID:     jobID,
			UserID:    actor.ID,
			Status:    model.ApplicationPending,
			AppliedAt: m.clock.Now().UTC(),
		}
		if err := tx.CreateApplication(ctx, &app); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return fail(InvalidState, "Anda sudah melamar pekerjaan ini")
			}
			return err
		}
		return m.audit.Record(ctx, tx, actor, ActionApplyJob, "JobApplication", app.ID, map[string]interface{}{
			"job_id":    jobID,
			"job_title": job.Title,
		})
	})
	if err != nil {
		return model.JobApplication{}, settle("apply", err)
	}
	m.metrics.Transition("application", string(app.Status))
	return app, nil
}

// Decide moves an application to ACCEPTED, COMPLETED or REJECTED.  Quota,
// job status, the student's balance and the clearance request change in
// the same transaction as the application itself.
func (m *Marketplace) Decide(ctx context.Context, actor *Actor, appID uint64, to model.ApplicationStatus) (model.JobApplication, error) {
	if _, err := Allowed(actor, OpDecideApplication); err != nil {
		return model.JobApplication{}, err
	}
	switch to {
	case model.ApplicationAccepted, model.ApplicationCompleted, model.ApplicationRejected:
	default:
		return model.JobApplication{}, errInvalid("Status %q tidak dikenal", to)
	}

	var (
		app    model.JobApplication
		job    model.Job
		relief int
	)
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		app, err = tx.ApplicationForUpdate(ctx, appID)
		if err != nil {
			return notFound(err, "Lamaran")
		}
		job, err = tx.JobForUpdate(ctx, app.JobID)
		if err != nil {
			return notFound(err, "Pekerjaan")
		}
		if err := Authorize(actor, OpDecideApplication, Resource{OwnerID: job.CreatedByID}); err != nil {
			return err
		}
		student, err := tx.UserForUpdate(ctx, app.UserID)
		if err != nil {
			return notFound(err, "Mahasiswa")
		}

		from := app.Status
		var action string
		switch to {
		case model.ApplicationAccepted:
			if from != model.ApplicationPending {
				return fail(InvalidState, "Lamaran berstatus %s tidak dapat diterima", from)
			}
			if job.Quota <= 0 {
				return fail(errors.QuotaLimitExceeded, "Kuota pekerjaan %q sudah penuh", job.Title)
			}
			job.Quota--
			if job.Quota == 0 {
				job.Status = model.JobClosed
			}
			if err := tx.UpdateJob(ctx, job); err != nil {
				return err
			}
			action = ActionAcceptApplication

		case model.ApplicationCompleted:
			if !from.HoldsSlot() {
				return fail(InvalidState, "Lamaran berstatus %s tidak dapat diselesaikan", from)
			}
			bal, err := m.ledger.Adjust(ctx, tx, actor, student.ID, -job.Hours, "Pekerjaan selesai: "+job.Title)
			if err != nil {
				return err
			}
			relief = bal.Before - bal.After
			if bal.Before > 0 && bal.After <= 0 {
				if err := m.openClearance(ctx, tx, actor, student.ID); err != nil {
					return err
				}
			}
			action = ActionCompleteApplication

		case model.ApplicationRejected:
			if from.Terminal() {
				return fail(InvalidState, "Lamaran berstatus %s tidak dapat ditolak", from)
			}
			if from.HoldsSlot() {
				job.Quota++
				job.Status = model.JobOpen
				if err := tx.UpdateJob(ctx, job); err != nil {
					return err
				}
			}
			action = ActionRejectApplication
		}

		app.Status = to
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return err
		}
		return m.audit.Record(ctx, tx, actor, action, "JobApplication", app.ID, map[string]interface{}{
			"from":         from,
			"to":           to,
			"job_title":    job.Title,
			"student_name": student.Name,
		})
	})
	if err != nil {
		return model.JobApplication{}, settle("decide application", err)
	}

	m.metrics.Transition("application", string(to))
	if relief > 0 {
		m.metrics.HoursRelieved(relief)
	}
	logger.Debugf("application %d -> %s by user %d", app.ID, to, actor.ID)

	template := "approval"
	if to == model.ApplicationRejected {
		template = "rejection"
	}
	m.outbox.send(ctx, Notification{
		Template: template,
		Subject:  "application",
		UserID:   app.UserID,
		EntityID: app.ID,
		Data: map[string]interface{}{
			"status":    to,
			"job_title": job.Title,
			"hours":     job.Hours,
		},
	})
	return app, nil
}

// openClearance files a PENDING clearance request for a student whose
// balance just reached zero, unless one already exists.
func (m *Marketplace) openClearance(ctx context.Context, tx store.Tx, actor *Actor, userID uint64) error {
	c := &model.ClearanceRequest{UserID: userID, Status: model.ClearancePending}
	created, err := tx.CreateClearanceIfAbsent(ctx, c)
	if err != nil || !created {
		return err
	}
	return m.audit.Record(ctx, tx, actor, ActionCreateClearance, "ClearanceRequest", c.ID, map[string]interface{}{
		"user_id": userID,
	})
}

// SubmitProof attaches the proof of work to an ACCEPTED application of the
// acting student and moves it to VERIFYING.
func (m *Marketplace) SubmitProof(ctx context.Context, actor *Actor, appID uint64, proof1, proof2, note string) (model.JobApplication, error) {
	if _, err := Allowed(actor, OpSubmitProof); err != nil {
		return model.JobApplication{}, err
	}
	var app model.JobApplication
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		app, err = tx.ApplicationForUpdate(ctx, appID)
		if err != nil {
			return notFound(err, "Lamaran")
		}
		if err := Authorize(actor, OpSubmitProof, Resource{OwnerID: app.UserID}); err != nil {
			return err
		}
		if app.Status != model.ApplicationAccepted {
			return fail(InvalidState, "Bukti hanya dapat dikirim untuk lamaran yang sudah diterima")
		}
		if strings.TrimSpace(proof1) == "" {
			return errInvalid("Bukti pekerjaan wajib dilampirkan")
		}
		app.ProofImage1 = proof1
		app.ProofImage2 = proof2
		app.SubmissionNote = note
		app.Status = model.ApplicationVerifying
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return err
		}
		return m.audit.Record(ctx, tx, actor, ActionSubmitProof, "JobApplication", app.ID, map[string]interface{}{
			"from": model.ApplicationAccepted,
			"to":   model.ApplicationVerifying,
		})
	})
	if err != nil {
		return model.JobApplication{}, settle("submit proof", err)
	}
	m.metrics.Transition("application", string(app.Status))
	return app, nil
}

// ListApplications lists applications visible to the actor: students see
// their own, a PENGAWAS those on jobs they created.
func (m *Marketplace) ListApplications(ctx context.Context, actor *Actor, f store.ApplicationFilter) ([]model.ApplicationDetail, error) {
	scope, err := Allowed(actor, OpListApplications)
	if err != nil {
		return nil, err
	}
	if scope == ScopeOwner {
		if actor.Role == model.RoleMahasiswa {
			f.UserID = actor.ID
		} else {
			f.JobOwnerID = actor.ID
		}
	}
	apps, err := m.store.ListApplications(ctx, f)
	if err != nil {
		return nil, settle("list applications", err)
	}
	return apps, nil
}
