package repository

import (
	"context"
	"strings"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

const userColumns = `id, username, password_hash, name, role, COALESCE(nim, ''), prodi, kelas, total_hours, created_at, updated_at`

func scanUser(row scanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Role, &u.NIM,
		&u.Prodi, &u.Kelas, &u.TotalHours, &u.CreatedAt, &u.UpdatedAt)
	return u, translate(err)
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id))
}

// GetUserByUsername fetches a user by login name, case-insensitively.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ? LIMIT 1", strings.TrimSpace(username)))
}

// ListUsers returns users matching f ordered by name.
func (s *Store) ListUsers(ctx context.Context, f store.UserFilter) ([]model.User, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if f.Prodi != "" {
		where = append(where, "prodi = ?")
		args = append(args, f.Prodi)
	}
	if f.Kelas != "" {
		where = append(where, "kelas = ?")
		args = append(args, f.Kelas)
	}
	if f.WithDebt {
		where = append(where, "total_hours > 0")
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		like := "%" + q + "%"
		where = append(where, "(name LIKE ? OR username LIKE ? OR nim LIKE ?)")
		args = append(args, like, like, like)
	}
	query := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, id"
	lim, largs := limitClause(f.Limit, f.Offset)
	query += lim
	args = append(args, largs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (t *sqlTx) UserForUpdate(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(t.tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? FOR UPDATE", id))
}

func (t *sqlTx) CreateUser(ctx context.Context, u *model.User) error {
	now := t.now()
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, name, role, nim, prodi, kelas, total_hours, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.Name, u.Role, nullString(u.NIM), u.Prodi, u.Kelas, u.TotalHours, now, now)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

// UpdateUser writes the profile columns.  total_hours is owned by
// SetUserHours and left alone.
func (t *sqlTx) UpdateUser(ctx context.Context, u model.User) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE users SET username = ?, password_hash = ?, name = ?, role = ?, nim = ?, prodi = ?, kelas = ?, updated_at = ?
		 WHERE id = ?`,
		u.Username, u.PasswordHash, u.Name, u.Role, nullString(u.NIM), u.Prodi, u.Kelas, t.now(), u.ID)
	return translate(err)
}

func (t *sqlTx) SetUserHours(ctx context.Context, id uint64, hours int) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE users SET total_hours = ?, updated_at = ? WHERE id = ?", hours, t.now(), id)
	return err
}

func (t *sqlTx) DeleteUser(ctx context.Context, id uint64) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *sqlTx) UserReferenced(ctx context.Context, id uint64) (bool, error) {
	return exists(ctx, t.tx, `SELECT
		EXISTS (SELECT 1 FROM job_applications WHERE user_id = ?) OR
		EXISTS (SELECT 1 FROM payments WHERE user_id = ? OR created_by_id = ?) OR
		EXISTS (SELECT 1 FROM jobs WHERE created_by_id = ?)`, id, id, id, id)
}
