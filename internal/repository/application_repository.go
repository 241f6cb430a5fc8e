package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

const applicationColumns = `id, job_id, user_id, status, applied_at, proof_image1, proof_image2, submission_note, updated_at`

func scanApplication(row scanner) (model.JobApplication, error) {
	var (
		a    model.JobApplication
		note sql.NullString
	)
	err := row.Scan(&a.ID, &a.JobID, &a.UserID, &a.Status, &a.AppliedAt,
		&a.ProofImage1, &a.ProofImage2, &note, &a.UpdatedAt)
	a.SubmissionNote = note.String
	return a, translate(err)
}

const applicationDetailQuery = `SELECT a.id, a.job_id, a.user_id, a.status, a.applied_at, a.proof_image1, a.proof_image2,
       a.submission_note, a.updated_at, j.title, j.hours, j.created_by_id, u.name, COALESCE(u.nim, '')
FROM job_applications a
JOIN jobs j ON j.id = a.job_id
JOIN users u ON u.id = a.user_id`

func scanApplicationDetail(row scanner) (model.ApplicationDetail, error) {
	var (
		d    model.ApplicationDetail
		note sql.NullString
	)
	err := row.Scan(&d.ID, &d.JobID, &d.UserID, &d.Status, &d.AppliedAt, &d.ProofImage1, &d.ProofImage2,
		&note, &d.UpdatedAt, &d.JobTitle, &d.JobHours, &d.JobOwnerID, &d.StudentName, &d.StudentNIM)
	d.SubmissionNote = note.String
	return d, translate(err)
}

// GetApplication fetches an application with its job and student.
func (s *Store) GetApplication(ctx context.Context, id uint64) (model.ApplicationDetail, error) {
	return scanApplicationDetail(s.db.QueryRowContext(ctx, applicationDetailQuery+" WHERE a.id = ?", id))
}

// ListApplications returns applications matching f, newest first.
func (s *Store) ListApplications(ctx context.Context, f store.ApplicationFilter) ([]model.ApplicationDetail, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.UserID != 0 {
		where = append(where, "a.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.JobID != 0 {
		where = append(where, "a.job_id = ?")
		args = append(args, f.JobID)
	}
	if f.JobOwnerID != 0 {
		where = append(where, "j.created_by_id = ?")
		args = append(args, f.JobOwnerID)
	}
	if f.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, f.Status)
	}
	query := applicationDetailQuery
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.id DESC"
	lim, largs := limitClause(f.Limit, f.Offset)
	query += lim
	args = append(args, largs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ApplicationDetail, 0)
	for rows.Next() {
		d, err := scanApplicationDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *sqlTx) ApplicationForUpdate(ctx context.Context, id uint64) (model.JobApplication, error) {
	return scanApplication(t.tx.QueryRowContext(ctx,
		"SELECT "+applicationColumns+" FROM job_applications WHERE id = ? FOR UPDATE", id))
}

func (t *sqlTx) ApplicationExists(ctx context.Context, jobID, userID uint64) (bool, error) {
	return exists(ctx, t.tx,
		"SELECT EXISTS (SELECT 1 FROM job_applications WHERE job_id = ? AND user_id = ?)", jobID, userID)
}

// CountPendingApplications counts with a locking read so that two
// concurrent applications of the same student see each other.
func (t *sqlTx) CountPendingApplications(ctx context.Context, userID uint64) (int, error) {
	return count(ctx, t.tx,
		"SELECT COUNT(*) FROM job_applications WHERE user_id = ? AND status = ? FOR UPDATE",
		userID, model.ApplicationPending)
}

func (t *sqlTx) CreateApplication(ctx context.Context, a *model.JobApplication) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO job_applications (job_id, user_id, status, applied_at, submission_note, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.JobID, a.UserID, a.Status, a.AppliedAt, nullString(a.SubmissionNote), a.AppliedAt)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	a.UpdatedAt = a.AppliedAt
	return nil
}

func (t *sqlTx) UpdateApplication(ctx context.Context, a model.JobApplication) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE job_applications SET status = ?, proof_image1 = ?, proof_image2 = ?, submission_note = ?, updated_at = ?
		 WHERE id = ?`,
		a.Status, a.ProofImage1, a.ProofImage2, nullString(a.SubmissionNote), t.now(), a.ID)
	return err
}
