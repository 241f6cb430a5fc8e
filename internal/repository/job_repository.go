package repository

import (
	"context"
	"strings"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

const jobColumns = `id, title, description, hours, quota, status, created_by_id, created_at, updated_at`

func scanJob(row scanner) (model.Job, error) {
	var j model.Job
	err := row.Scan(&j.ID, &j.Title, &j.Description, &j.Hours, &j.Quota, &j.Status,
		&j.CreatedByID, &j.CreatedAt, &j.UpdatedAt)
	return j, translate(err)
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id uint64) (model.Job, error) {
	return scanJob(s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id))
}

// ListJobs returns jobs matching f, newest first.
func (s *Store) ListJobs(ctx context.Context, f store.JobFilter) ([]model.Job, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.CreatedByID != 0 {
		where = append(where, "created_by_id = ?")
		args = append(args, f.CreatedByID)
	}
	query := "SELECT " + jobColumns + " FROM jobs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	lim, largs := limitClause(f.Limit, f.Offset)
	query += lim
	args = append(args, largs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (t *sqlTx) JobForUpdate(ctx context.Context, id uint64) (model.Job, error) {
	return scanJob(t.tx.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ? FOR UPDATE", id))
}

func (t *sqlTx) CreateJob(ctx context.Context, j *model.Job) error {
	now := t.now()
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO jobs (title, description, hours, quota, status, created_by_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.Title, j.Description, j.Hours, j.Quota, j.Status, j.CreatedByID, now, now)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	j.ID = uint64(id)
	j.CreatedAt, j.UpdatedAt = now, now
	return nil
}

func (t *sqlTx) UpdateJob(ctx context.Context, j model.Job) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE jobs SET title = ?, description = ?, hours = ?, quota = ?, status = ?, updated_at = ? WHERE id = ?`,
		j.Title, j.Description, j.Hours, j.Quota, j.Status, t.now(), j.ID)
	return err
}

// DeleteJob removes the job; its applications go with it through the
// ON DELETE CASCADE foreign key.
func (t *sqlTx) DeleteJob(ctx context.Context, id uint64) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *sqlTx) CountApplicationsForJob(ctx context.Context, jobID uint64) (int, error) {
	return count(ctx, t.tx, "SELECT COUNT(*) FROM job_applications WHERE job_id = ?", jobID)
}
