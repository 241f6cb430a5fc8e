package service

import (
	"context"
	"strings"

	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

// JobInput is the editable part of a job.
type JobInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Hours       int    `json:"hours"`
	Quota       int    `json:"quota"`
}

func (in JobInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return errInvalid("Judul pekerjaan wajib diisi")
	case in.Hours <= 0:
		return errInvalid("Jam kompensasi harus lebih dari 0")
	case in.Quota < 0:
		return errInvalid("Kuota tidak boleh negatif")
	}
	return nil
}

// CreateJob publishes a job owned by the actor.  A job created with no
// quota starts CLOSED.
func (m *Marketplace) CreateJob(ctx context.Context, actor *Actor, in JobInput) (model.Job, error) {
	if err := Authorize(actor, OpCreateJob, Resource{}); err != nil {
		return model.Job{}, err
	}
	if err := in.validate(); err != nil {
		return model.Job{}, err
	}
	job := model.Job{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Hours:       in.Hours,
		Quota:       in.Quota,
		Status:      model.JobOpen,
		CreatedByID: actor.ID,
	}
	if job.Quota == 0 {
		job.Status = model.JobClosed
	}
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateJob(ctx, &job); err != nil {
			return err
		}
		return m.audit.Record(ctx, tx, actor, ActionCreateJob, "Job", job.ID, in)
	})
	if err != nil {
		return model.Job{}, settle("create job", err)
	}
	return job, nil
}

// editJob locks the job and checks that the actor may change it.
func (m *Marketplace) editJob(ctx context.Context, tx store.Tx, actor *Actor, id uint64) (model.Job, error) {
	job, err := tx.JobForUpdate(ctx, id)
	if err != nil {
		return model.Job{}, notFound(err, "Pekerjaan")
	}
	if err := Authorize(actor, OpEditJob, Resource{OwnerID: job.CreatedByID}); err != nil {
		return model.Job{}, err
	}
	return job, nil
}

// UpdateJob edits a job.  Hours are frozen once anyone has applied, since
// completed applications were already credited at the old value.
func (m *Marketplace) UpdateJob(ctx context.Context, actor *Actor, id uint64, in JobInput) (model.Job, error) {
	if _, err := Allowed(actor, OpEditJob); err != nil {
		return model.Job{}, err
	}
	if err := in.validate(); err != nil {
		return model.Job{}, err
	}
	var job model.Job
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if job, err = m.editJob(ctx, tx, actor, id); err != nil {
			return err
		}
		if in.Hours != job.Hours {
			n, err := tx.CountApplicationsForJob(ctx, id)
			if err != nil {
				return err
			}
			if n > 0 {
				return fail(InvalidState, "Jam kompensasi tidak dapat diubah karena sudah ada pelamar")
			}
		}
		before := job
		job.Title = strings.TrimSpace(in.Title)
		job.Description = in.Description
		job.Hours = in.Hours
		job.Quota = in.Quota
		if job.Quota == 0 {
			job.Status = model.JobClosed
		}
		if err := tx.UpdateJob(ctx, job); err != nil {
			return err
		}
		return m.audit.Record(ctx, tx, actor, ActionUpdateJob, "Job", job.ID, map[string]interface{}{
			"before": JobInput{Title: before.Title, Description: before.Description, Hours: before.Hours, Quota: before.Quota},
			"after":  in,
		})
	})
	if err != nil {
		return model.Job{}, settle("update job", err)
	}
	return job, nil
}

// SetJobStatus opens or closes a job by hand.  A job without quota cannot
// be opened.
func (m *Marketplace) SetJobStatus(ctx context.Context, actor *Actor, id uint64, status model.JobStatus) (model.Job, error) {
	if _, err := Allowed(actor, OpEditJob); err != nil {
		return model.Job{}, err
	}
	if status != model.JobOpen && status != model.JobClosed {
		return model.Job{}, errInvalid("Status %q tidak dikenal", status)
	}
	var job model.Job
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if job, err = m.editJob(ctx, tx, actor, id); err != nil {
			return err
		}
		if status == model.JobOpen && job.Quota <= 0 {
			return fail(InvalidState, "Pekerjaan tanpa kuota tidak dapat dibuka")
		}
		from := job.Status
		job.Status = status
		if err := tx.UpdateJob(ctx, job); err != nil {
			return err
		}
		return m.audit.Record(ctx, tx, actor, ActionSetJobStatus, "Job", job.ID, map[string]interface{}{
			"from": from,
			"to":   status,
		})
	})
	if err != nil {
		return model.Job{}, settle("set job status", err)
	}
	return job, nil
}

// DeleteJob removes a job together with its applications.
func (m *Marketplace) DeleteJob(ctx context.Context, actor *Actor, id uint64) error {
	if _, err := Allowed(actor, OpEditJob); err != nil {
		return err
	}
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		job, err := m.editJob(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteJob(ctx, id); err != nil {
			return err
		}
		return m.audit.Record(ctx, tx, actor, ActionDeleteJob, "Job", id, map[string]interface{}{
			"title": job.Title,
		})
	})
	return settle("delete job", err)
}

// GetJob returns one job.  Students only see open jobs.
func (m *Marketplace) GetJob(ctx context.Context, actor *Actor, id uint64) (model.Job, error) {
	scope, err := Allowed(actor, OpListJobs)
	if err != nil {
		return model.Job{}, err
	}
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return model.Job{}, settle("get job", notFound(err, "Pekerjaan"))
	}
	if scope == ScopeOwner {
		visible := job.Status == model.JobOpen
		if actor.Role != model.RoleMahasiswa {
			visible = job.CreatedByID == actor.ID
		}
		if !visible {
			return model.Job{}, fail(errors.NotFound, "Pekerjaan tidak ditemukan")
		}
	}
	return job, nil
}

// ListJobs lists the jobs visible to the actor: students see OPEN jobs, a
// PENGAWAS the jobs they created.
func (m *Marketplace) ListJobs(ctx context.Context, actor *Actor, f store.JobFilter) ([]model.Job, error) {
	scope, err := Allowed(actor, OpListJobs)
	if err != nil {
		return nil, err
	}
	if scope == ScopeOwner {
		if actor.Role == model.RoleMahasiswa {
			f.Status = model.JobOpen
		} else {
			f.CreatedByID = actor.ID
		}
	}
	jobs, err := m.store.ListJobs(ctx, f)
	if err != nil {
		return nil, settle("list jobs", err)
	}
	return jobs, nil
}
