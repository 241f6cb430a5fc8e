package service

import (
	"context"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

// Reports serves the finance and admin dashboards.
type Reports struct {
	store store.Reader
}

// Stats returns aggregate counts over users, jobs, applications, payments
// and clearance requests.
func (r *Reports) Stats(ctx context.Context, actor *Actor) (model.Stats, error) {
	if err := Authorize(actor, OpViewReports, Resource{}); err != nil {
		return model.Stats{}, err
	}
	st, err := r.store.Stats(ctx)
	if err != nil {
		return model.Stats{}, settle("stats", err)
	}
	return st, nil
}

// Students returns the student rows for an export.  The role filter is
// forced to MAHASISWA and pagination is ignored.
func (r *Reports) Students(ctx context.Context, actor *Actor, f store.UserFilter) ([]model.User, error) {
	if err := Authorize(actor, OpViewReports, Resource{}); err != nil {
		return nil, err
	}
	f.Role = model.RoleMahasiswa
	f.Limit, f.Offset = 0, 0
	users, err := r.store.ListUsers(ctx, f)
	if err != nil {
		return nil, settle("export students", err)
	}
	return users, nil
}
