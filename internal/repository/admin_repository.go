package repository

import (
	"context"
	"encoding/json"

	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

const clearanceColumns = `id, user_id, status, created_at, updated_at`

func scanClearance(row scanner) (model.ClearanceRequest, error) {
	var c model.ClearanceRequest
	err := row.Scan(&c.ID, &c.UserID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, translate(err)
}

// ListClearances returns clearance requests, all of them when status is
// empty.
func (s *Store) ListClearances(ctx context.Context, status model.ClearanceStatus) ([]model.ClearanceRequest, error) {
	query := "SELECT " + clearanceColumns + " FROM clearance_requests"
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id DESC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ClearanceRequest, 0)
	for rows.Next() {
		c, err := scanClearance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListActivity returns the newest activity rows.
func (s *Store) ListActivity(ctx context.Context, limit int) ([]model.ActivityLog, error) {
	query := "SELECT id, user_id, action, target_type, target_id, details, created_at FROM activity_logs ORDER BY id DESC"
	lim, args := limitClause(limit, 0)
	rows, err := s.db.QueryContext(ctx, query+lim, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ActivityLog, 0)
	for rows.Next() {
		var (
			l       model.ActivityLog
			target  *uint64
			details []byte
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.TargetType, &target, &details, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.TargetID = target
		l.Details = json.RawMessage(details)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Settings returns every system setting.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT setting_key, setting_value FROM system_settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Stats computes the dashboard aggregates.
func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	st := model.Stats{
		ApplicationsByState: make(map[model.ApplicationStatus]int),
		PaymentsByState:     make(map[model.PaymentStatus]int),
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_hours > 0), 0), COALESCE(SUM(total_hours), 0)
		 FROM users WHERE role = ?`, model.RoleMahasiswa).
		Scan(&st.Students, &st.StudentsWithDebt, &st.OutstandingHours)
	if err != nil {
		return st, errors.Annotate(err, "student totals")
	}
	if st.OpenJobs, err = count(ctx, s.db, "SELECT COUNT(*) FROM jobs WHERE status = ?", model.JobOpen); err != nil {
		return st, errors.Annotate(err, "open jobs")
	}
	if st.PendingClearances, err = count(ctx, s.db,
		"SELECT COUNT(*) FROM clearance_requests WHERE status = ?", model.ClearancePending); err != nil {
		return st, errors.Annotate(err, "pending clearances")
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = ?", model.PaymentApproved).
		Scan(&st.ApprovedAmount); err != nil {
		return st, errors.Annotate(err, "approved amount")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM job_applications GROUP BY status")
	if err != nil {
		return st, errors.Annotate(err, "applications by status")
	}
	for rows.Next() {
		var (
			status model.ApplicationStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return st, err
		}
		st.ApplicationsByState[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}

	rows, err = s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM payments GROUP BY status")
	if err != nil {
		return st, errors.Annotate(err, "payments by status")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status model.PaymentStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return st, err
		}
		st.PaymentsByState[status] = n
	}
	return st, rows.Err()
}

func (t *sqlTx) ClearanceForUpdate(ctx context.Context, id uint64) (model.ClearanceRequest, error) {
	return scanClearance(t.tx.QueryRowContext(ctx,
		"SELECT "+clearanceColumns+" FROM clearance_requests WHERE id = ? FOR UPDATE", id))
}

// CreateClearanceIfAbsent relies on the unique key on user_id.  A
// duplicate-key failure only rolls back the statement, so the existing
// row can be read in the same transaction.
func (t *sqlTx) CreateClearanceIfAbsent(ctx context.Context, c *model.ClearanceRequest) (bool, error) {
	now := t.now()
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO clearance_requests (user_id, status, created_at, updated_at) VALUES (?, ?, ?, ?)",
		c.UserID, c.Status, now, now)
	if err == nil {
		id, err := res.LastInsertId()
		if err != nil {
			return false, err
		}
		c.ID = uint64(id)
		c.CreatedAt, c.UpdatedAt = now, now
		return true, nil
	}
	if !errors.Is(translate(err), store.ErrDuplicate) {
		return false, err
	}
	existing, err := scanClearance(t.tx.QueryRowContext(ctx,
		"SELECT "+clearanceColumns+" FROM clearance_requests WHERE user_id = ? FOR UPDATE", c.UserID))
	if err != nil {
		return false, err
	}
	*c = existing
	return false, nil
}

func (t *sqlTx) UpdateClearance(ctx context.Context, c model.ClearanceRequest) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE clearance_requests SET status = ?, updated_at = ? WHERE id = ?", c.Status, t.now(), c.ID)
	return err
}

func (t *sqlTx) AppendActivity(ctx context.Context, l *model.ActivityLog) error {
	now := t.now()
	details := []byte(l.Details)
	if len(details) == 0 {
		details = []byte("{}")
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO activity_logs (user_id, action, target_type, target_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.UserID, l.Action, l.TargetType, l.TargetID, details, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	l.Details = details
	l.CreatedAt = now
	return nil
}

func (t *sqlTx) SetSetting(ctx context.Context, key, value string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO system_settings (setting_key, setting_value) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value)`, key, value)
	return err
}

func (t *sqlTx) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := t.tx.QueryRowContext(ctx,
		"SELECT setting_value FROM system_settings WHERE setting_key = ?", key).Scan(&v)
	return v, translate(err)
}
