package service

import (
	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/model"
)

// Actor is the authenticated caller of a core operation.  The core never
// authenticates; it only authorises the actor it is handed.
type Actor struct {
	ID       uint64
	Role     model.Role
	Username string
}

// Operation names a guarded core operation.
type Operation string

const (
	OpApply             Operation = "apply"
	OpDecideApplication Operation = "decide_application"
	OpSubmitProof       Operation = "submit_proof"
	OpListApplications  Operation = "list_applications"
	OpCreateJob         Operation = "create_job"
	OpEditJob           Operation = "edit_job"
	OpListJobs          Operation = "list_jobs"
	OpCreatePayment     Operation = "create_payment"
	OpDecidePayment     Operation = "decide_payment"
	OpListPayments      Operation = "list_payments"
	OpOverrideHours     Operation = "override_hours"
	OpManageUsers       Operation = "manage_users"
	OpViewUser          Operation = "view_user"
	OpListUsers         Operation = "list_users"
	OpViewActivity      Operation = "view_activity"
	OpReadSettings      Operation = "read_settings"
	OpWriteSettings     Operation = "write_settings"
	OpManageClearances  Operation = "manage_clearances"
	OpViewReports       Operation = "view_reports"
)

// Scope is how far a role's permission for an operation reaches.
type Scope int

const (
	// ScopeAny allows the operation on every resource.
	ScopeAny Scope = iota + 1
	// ScopeOwner allows it only on resources owned by the actor: jobs a
	// PENGAWAS created, applications and payments of the student.
	ScopeOwner
)

var (
	admin    = model.RoleAdmin
	pengawas = model.RolePengawas
	keuangan = model.RoleKeuangan
	student  = model.RoleMahasiswa
)

// rules is the role × operation capability table.  A missing entry denies.
var rules = map[Operation]map[model.Role]Scope{
	OpApply:             {student: ScopeOwner},
	OpDecideApplication: {admin: ScopeAny, pengawas: ScopeOwner},
	OpSubmitProof:       {student: ScopeOwner},
	OpListApplications:  {admin: ScopeAny, pengawas: ScopeOwner, student: ScopeOwner},
	OpCreateJob:         {admin: ScopeAny, pengawas: ScopeAny},
	OpEditJob:           {admin: ScopeAny, pengawas: ScopeOwner},
	OpListJobs:          {admin: ScopeAny, keuangan: ScopeAny, pengawas: ScopeOwner, student: ScopeOwner},
	OpCreatePayment:     {admin: ScopeAny, keuangan: ScopeAny, student: ScopeOwner},
	OpDecidePayment:     {admin: ScopeAny, keuangan: ScopeAny},
	OpListPayments:      {admin: ScopeAny, keuangan: ScopeAny, student: ScopeOwner},
	OpOverrideHours:     {admin: ScopeAny},
	OpManageUsers:       {admin: ScopeAny},
	OpViewUser:          {admin: ScopeAny, keuangan: ScopeAny, pengawas: ScopeOwner, student: ScopeOwner},
	OpListUsers:         {admin: ScopeAny, keuangan: ScopeAny},
	OpViewActivity:      {admin: ScopeAny},
	OpReadSettings:      {admin: ScopeAny, keuangan: ScopeAny, pengawas: ScopeAny, student: ScopeAny},
	OpWriteSettings:     {admin: ScopeAny},
	OpManageClearances:  {admin: ScopeAny},
	OpViewReports:       {admin: ScopeAny, keuangan: ScopeAny},
}

// Resource describes the target of an authorisation check.  OwnerID is
// the user that owns it; zero means the owner is unknown and owner-scoped
// permissions fail closed.
type Resource struct {
	OwnerID uint64
}

// Allowed returns the scope the actor holds for op without looking at a
// particular resource.  List operations use it to narrow their filters.
func Allowed(a *Actor, op Operation) (Scope, error) {
	if a == nil || a.ID == 0 {
		return 0, errUnauthorized()
	}
	scope, ok := rules[op][a.Role]
	if !ok {
		return 0, errForbidden()
	}
	return scope, nil
}

// Authorize checks that the actor may perform op on res.
func Authorize(a *Actor, op Operation, res Resource) error {
	scope, err := Allowed(a, op)
	if err != nil {
		return err
	}
	if scope == ScopeOwner && (res.OwnerID == 0 || res.OwnerID != a.ID) {
		return errForbidden()
	}
	return nil
}

// IsForbidden reports whether err is an authorisation failure.
func IsForbidden(err error) bool { return errors.Is(err, errors.Forbidden) }
