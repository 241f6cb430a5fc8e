package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
	"github.com/polteknik/kompen/internal/utils"
)

// UserInput carries the fields an administrator sets on an account.
// TotalHours is only honoured on creation; afterwards the balance belongs
// to the ledger.
type UserInput struct {
	Username   string     `json:"username"`
	Password   string     `json:"password,omitempty"`
	Name       string     `json:"name"`
	Role       model.Role `json:"role"`
	NIM        string     `json:"nim"`
	Prodi      string     `json:"prodi"`
	Kelas      string     `json:"kelas"`
	TotalHours int        `json:"total_hours"`
}

// ImportRow is one line of a student import.
type ImportRow struct {
	Line     int
	Username string
	Name     string
	NIM      string
	Prodi    string
	Kelas    string
	Hours    int
}

// ImportSummary reports how a bulk import went.  Rows are independent:
// a failed row does not undo the ones before it.
type ImportSummary struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Users administers accounts.
type Users struct {
	store      store.Store
	audit      *Audit
	bcryptCost int
}

func (u *Users) hash(password string) (string, error) {
	return utils.HashPassword(password, u.bcryptCost)
}

func (in *UserInput) normalise() {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.NIM = strings.TrimSpace(in.NIM)
	in.Prodi = strings.TrimSpace(in.Prodi)
	in.Kelas = strings.TrimSpace(in.Kelas)
}

func (in UserInput) validate(creating bool) error {
	switch {
	case in.Username == "":
		return errInvalid("Username wajib diisi")
	case in.Name == "":
		return errInvalid("Nama wajib diisi")
	case !in.Role.Valid():
		return errInvalid("Peran %q tidak dikenal", in.Role)
	case creating && len(in.Password) < 6:
		return errInvalid("Kata sandi minimal 6 karakter")
	case in.Role == model.RoleMahasiswa && in.NIM == "":
		return errInvalid("NIM wajib diisi untuk mahasiswa")
	case in.TotalHours < 0:
		return errInvalid("Jam kompensasi tidak boleh negatif")
	}
	return nil
}

// hourCap returns the configured cap on initial balances, or -1 when none
// is set.
func hourCap(ctx context.Context, tx store.Tx) (int, error) {
	v, err := tx.Setting(ctx, model.SettingHourCap)
	if errors.Is(err, store.ErrNotFound) || (err == nil && strings.TrimSpace(v) == "") {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return -1, nil
	}
	return n, nil
}

func duplicate(err error, username string) error {
	if errors.Is(err, store.ErrDuplicate) {
		return errInvalid("Username atau NIM %q sudah digunakan", username)
	}
	return err
}

// Create adds an account.
func (u *Users) Create(ctx context.Context, actor *Actor, in UserInput) (model.User, error) {
	if err := Authorize(actor, OpManageUsers, Resource{}); err != nil {
		return model.User{}, err
	}
	in.normalise()
	if err := in.validate(true); err != nil {
		return model.User{}, err
	}
	hash, err := u.hash(in.Password)
	if err != nil {
		return model.User{}, settle("hash password", err)
	}
	user := model.User{
		Username:     in.Username,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         in.Role,
		NIM:          in.NIM,
		Prodi:        in.Prodi,
		Kelas:        in.Kelas,
	}
	if in.Role == model.RoleMahasiswa {
		user.TotalHours = in.TotalHours
	}
	err = u.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := u.checkCap(ctx, tx, user.TotalHours); err != nil {
			return err
		}
		if err := tx.CreateUser(ctx, &user); err != nil {
			return duplicate(err, in.Username)
		}
		return u.audit.Record(ctx, tx, actor, ActionCreateUser, "User", user.ID, map[string]interface{}{
			"username":    user.Username,
			"role":        user.Role,
			"total_hours": user.TotalHours,
		})
	})
	if err != nil {
		return model.User{}, settle("create user", err)
	}
	return user, nil
}

func (u *Users) checkCap(ctx context.Context, tx store.Tx, hours int) error {
	limit, err := hourCap(ctx, tx)
	if err != nil {
		return err
	}
	if limit >= 0 && hours > limit {
		return errInvalid("Jam kompensasi %d melebihi batas %d", hours, limit)
	}
	return nil
}

// Update edits an account.  An empty password keeps the current one and
// the hour balance is never touched.
func (u *Users) Update(ctx context.Context, actor *Actor, id uint64, in UserInput) (model.User, error) {
	if err := Authorize(actor, OpManageUsers, Resource{}); err != nil {
		return model.User{}, err
	}
	in.normalise()
	in.TotalHours = 0
	if err := in.validate(false); err != nil {
		return model.User{}, err
	}
	if in.Password != "" && len(in.Password) < 6 {
		return model.User{}, errInvalid("Kata sandi minimal 6 karakter")
	}
	var user model.User
	err := u.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if user, err = tx.UserForUpdate(ctx, id); err != nil {
			return notFound(err, "Pengguna")
		}
		if user.ID == actor.ID && in.Role != user.Role {
			return fail(InvalidState, "Anda tidak dapat mengubah peran akun sendiri")
		}
		user.Username = in.Username
		user.Name = in.Name
		user.Role = in.Role
		user.NIM = in.NIM
		user.Prodi = in.Prodi
		user.Kelas = in.Kelas
		if in.Password != "" {
			if user.PasswordHash, err = u.hash(in.Password); err != nil {
				return err
			}
		}
		if err := tx.UpdateUser(ctx, user); err != nil {
			return duplicate(err, in.Username)
		}
		return u.audit.Record(ctx, tx, actor, ActionUpdateUser, "User", user.ID, map[string]interface{}{
			"username":         user.Username,
			"role":             user.Role,
			"password_changed": in.Password != "",
		})
	})
	if err != nil {
		return model.User{}, settle("update user", err)
	}
	return user, nil
}

// Delete removes an account that nothing refers to.
func (u *Users) Delete(ctx context.Context, actor *Actor, id uint64) error {
	if err := Authorize(actor, OpManageUsers, Resource{}); err != nil {
		return err
	}
	if id == actor.ID {
		return fail(InvalidState, "Anda tidak dapat menghapus akun sendiri")
	}
	err := u.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		user, err := tx.UserForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "Pengguna")
		}
		used, err := tx.UserReferenced(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return fail(InvalidState, "Pengguna %s masih memiliki riwayat pekerjaan atau pembayaran", user.Username)
		}
		if err := tx.DeleteUser(ctx, id); err != nil {
			return err
		}
		return u.audit.Record(ctx, tx, actor, ActionDeleteUser, "User", id, map[string]interface{}{
			"username": user.Username,
		})
	})
	return settle("delete user", err)
}

// Get returns one account.  Students and supervisors may only read their
// own.
func (u *Users) Get(ctx context.Context, actor *Actor, id uint64) (model.User, error) {
	scope, err := Allowed(actor, OpViewUser)
	if err != nil {
		return model.User{}, err
	}
	if scope == ScopeOwner && id != actor.ID {
		return model.User{}, errForbidden()
	}
	user, err := u.store.GetUser(ctx, id)
	if err != nil {
		return model.User{}, settle("get user", notFound(err, "Pengguna"))
	}
	return user, nil
}

// List returns accounts matching f.
func (u *Users) List(ctx context.Context, actor *Actor, f store.UserFilter) ([]model.User, error) {
	if err := Authorize(actor, OpListUsers, Resource{}); err != nil {
		return nil, err
	}
	users, err := u.store.ListUsers(ctx, f)
	if err != nil {
		return nil, settle("list users", err)
	}
	return users, nil
}

// Import creates student accounts in bulk.  Each row commits on its own;
// rows whose username or NIM already exist are skipped and invalid rows
// are reported in the summary.  New students get their NIM as initial
// password.
func (u *Users) Import(ctx context.Context, actor *Actor, rows []ImportRow) (ImportSummary, error) {
	if err := Authorize(actor, OpManageUsers, Resource{}); err != nil {
		return ImportSummary{}, err
	}
	var sum ImportSummary
	for _, row := range rows {
		err := u.importRow(ctx, actor, row)
		switch {
		case err == nil:
			sum.Created++
		case errors.Is(err, store.ErrDuplicate):
			sum.Skipped++
		default:
			sum.Failed++
			var f *Failure
			if !errors.As(err, &f) {
				logger.Errorf("import line %d: %v", row.Line, err)
				err = fmt.Errorf("gagal menyimpan")
			}
			sum.Errors = append(sum.Errors, fmt.Sprintf("baris %d: %v", row.Line, err))
		}
	}

	err := u.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return u.audit.Record(ctx, tx, actor, ActionImportUsers, "User", 0, sum)
	})
	if err != nil {
		return sum, settle("import users", err)
	}
	logger.Infof("import by user %d: %d created, %d skipped, %d failed", actor.ID, sum.Created, sum.Skipped, sum.Failed)
	return sum, nil
}

func (u *Users) importRow(ctx context.Context, actor *Actor, row ImportRow) error {
	in := UserInput{
		Username:   row.Username,
		Name:       row.Name,
		Role:       model.RoleMahasiswa,
		NIM:        row.NIM,
		Prodi:      row.Prodi,
		Kelas:      row.Kelas,
		TotalHours: row.Hours,
	}
	in.normalise()
	if in.Username == "" {
		in.Username = in.NIM
	}
	in.Password = in.NIM
	if err := in.validate(true); err != nil {
		return err
	}
	hash, err := u.hash(in.Password)
	if err != nil {
		return err
	}
	return u.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := u.checkCap(ctx, tx, in.TotalHours); err != nil {
			return err
		}
		user := model.User{
			Username:     in.Username,
			PasswordHash: hash,
			Name:         in.Name,
			Role:         model.RoleMahasiswa,
			NIM:          in.NIM,
			Prodi:        in.Prodi,
			Kelas:        in.Kelas,
			TotalHours:   in.TotalHours,
		}
		if err := tx.CreateUser(ctx, &user); err != nil {
			return err
		}
		return u.audit.Record(ctx, tx, actor, ActionCreateUser, "User", user.ID, map[string]interface{}{
			"username":    user.Username,
			"role":        user.Role,
			"total_hours": user.TotalHours,
			"import_line": row.Line,
		})
	})
}

// EnsureAdmin creates the first ADMIN account when no user holds username
// yet.  It runs at start-up, before any actor exists, so the audit row is
// attributed to the new account itself.
func (u *Users) EnsureAdmin(ctx context.Context, username, name, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 6 {
		return false, errInvalid("Akun admin awal membutuhkan username dan kata sandi minimal 6 karakter")
	}
	if _, err := u.store.GetUserByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, settle("ensure admin", err)
	}
	hash, err := u.hash(password)
	if err != nil {
		return false, settle("ensure admin", err)
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	user := model.User{Username: username, PasswordHash: hash, Name: name, Role: model.RoleAdmin}
	err = u.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateUser(ctx, &user); err != nil {
			return err
		}
		self := &Actor{ID: user.ID, Role: model.RoleAdmin, Username: user.Username}
		return u.audit.Record(ctx, tx, self, ActionCreateUser, "User", user.ID, map[string]interface{}{
			"username":  user.Username,
			"role":      user.Role,
			"bootstrap": true,
		})
	})
	if errors.Is(err, store.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, settle("ensure admin", err)
	}
	logger.Infof("created initial admin %q", username)
	return true, nil
}
