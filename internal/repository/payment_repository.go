package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

const paymentColumns = `id, user_id, amount, hours_equivalent, proof_url, note, status, created_by_id, decided_by_id, created_at, decided_at`

func scanPayment(row scanner) (model.Payment, error) {
	var (
		p         model.Payment
		note      sql.NullString
		decidedBy sql.NullInt64
		decidedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.HoursEquivalent, &p.ProofURL, &note, &p.Status,
		&p.CreatedByID, &decidedBy, &p.CreatedAt, &decidedAt)
	if err != nil {
		return model.Payment{}, translate(err)
	}
	p.Note = note.String
	if decidedBy.Valid {
		id := uint64(decidedBy.Int64)
		p.DecidedByID = &id
	}
	if decidedAt.Valid {
		at := decidedAt.Time
		p.DecidedAt = &at
	}
	return p, nil
}

// ListPayments returns payments matching f, newest first.
func (s *Store) ListPayments(ctx context.Context, f store.PaymentFilter) ([]model.Payment, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	query := "SELECT " + paymentColumns + " FROM payments"
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
	out := make([]model.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *sqlTx) PaymentForUpdate(ctx context.Context, id uint64) (model.Payment, error) {
	return scanPayment(t.tx.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = ? FOR UPDATE", id))
}

func (t *sqlTx) CreatePayment(ctx context.Context, p *model.Payment) error {
	now := t.now()
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO payments (user_id, amount, hours_equivalent, proof_url, note, status, created_by_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Amount, p.HoursEquivalent, p.ProofURL, nullString(p.Note), p.Status, p.CreatedByID, now)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt = now
	return nil
}

func (t *sqlTx) UpdatePayment(ctx context.Context, p model.Payment) error {
	var (
		decidedBy sql.NullInt64
		decidedAt sql.NullTime
	)
	if p.DecidedByID != nil {
		decidedBy = sql.NullInt64{Int64: int64(*p.DecidedByID), Valid: true}
	}
	if p.DecidedAt != nil {
		decidedAt = sql.NullTime{Time: *p.DecidedAt, Valid: true}
	}
	_, err := t.tx.ExecContext(ctx,
		"UPDATE payments SET status = ?, decided_by_id = ?, decided_at = ? WHERE id = ?",
		p.Status, decidedBy, decidedAt, p.ID)
	return err
}
