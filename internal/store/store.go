// Package store defines the persistence contract the compensation core is
// written against.  Reads that feed dashboards go through Reader; every
// mutation happens inside Store.WithinTx so that the balance, quota and
// status changes commit together with their audit row or not at all.
package store

import (
	"context"

	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/model"
)

const (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.ConstError("row not found")
	// ErrDuplicate is returned when an insert violates a unique key.
	ErrDuplicate = errors.ConstError("duplicate row")
)

// UserFilter narrows ListUsers.  Zero values mean "any".
type UserFilter struct {
	Role     model.Role
	Prodi    string
	Kelas    string
	Search   string // matched against name, username and nim
	WithDebt bool   // only users with total_hours > 0
	Limit    int
	Offset   int
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	Status      model.JobStatus
	CreatedByID uint64
	Limit       int
	Offset      int
}

// ApplicationFilter narrows ListApplications.
type ApplicationFilter struct {
	UserID     uint64
	JobID      uint64
	JobOwnerID uint64
	Status     model.ApplicationStatus
	Limit      int
	Offset     int
}

// PaymentFilter narrows ListPayments.
type PaymentFilter struct {
	UserID uint64
	Status model.PaymentStatus
	Limit  int
	Offset int
}

// Reader holds the non-transactional queries.  Results are ordered newest
// first unless stated otherwise.
type Reader interface {
	GetUser(ctx context.Context, id uint64) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]model.User, error)
	GetJob(ctx context.Context, id uint64) (model.Job, error)
	ListJobs(ctx context.Context, f JobFilter) ([]model.Job, error)
	GetApplication(ctx context.Context, id uint64) (model.ApplicationDetail, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]model.ApplicationDetail, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]model.Payment, error)
	ListClearances(ctx context.Context, status model.ClearanceStatus) ([]model.ClearanceRequest, error)
	ListActivity(ctx context.Context, limit int) ([]model.ActivityLog, error)
	Settings(ctx context.Context) (map[string]string, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// Tx is the set of reads and writes available inside a unit of work.  The
// ...ForUpdate methods lock the row until the transaction ends.
type Tx interface {
	UserForUpdate(ctx context.Context, id uint64) (model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	UpdateUser(ctx context.Context, u model.User) error
	SetUserHours(ctx context.Context, id uint64, hours int) error
	DeleteUser(ctx context.Context, id uint64) error
	// UserReferenced reports whether any job, application or payment
	// points at the user.
	UserReferenced(ctx context.Context, id uint64) (bool, error)

	JobForUpdate(ctx context.Context, id uint64) (model.Job, error)
	CreateJob(ctx context.Context, j *model.Job) error
	UpdateJob(ctx context.Context, j model.Job) error
	DeleteJob(ctx context.Context, id uint64) error
	CountApplicationsForJob(ctx context.Context, jobID uint64) (int, error)

	ApplicationForUpdate(ctx context.Context, id uint64) (model.JobApplication, error)
	ApplicationExists(ctx context.Context, jobID, userID uint64) (bool, error)
	CountPendingApplications(ctx context.Context, userID uint64) (int, error)
	CreateApplication(ctx context.Context, a *model.JobApplication) error
	UpdateApplication(ctx context.Context, a model.JobApplication) error

	PaymentForUpdate(ctx context.Context, id uint64) (model.Payment, error)
	CreatePayment(ctx context.Context, p *model.Payment) error
	UpdatePayment(ctx context.Context, p model.Payment) error

	ClearanceForUpdate(ctx context.Context, id uint64) (model.ClearanceRequest, error)
	// CreateClearanceIfAbsent inserts a PENDING request for userID unless
	// one already exists and reports whether it inserted.
	CreateClearanceIfAbsent(ctx context.Context, c *model.ClearanceRequest) (bool, error)
	UpdateClearance(ctx context.Context, c model.ClearanceRequest) error

	AppendActivity(ctx context.Context, l *model.ActivityLog) error
	SetSetting(ctx context.Context, key, value string) error
	Setting(ctx context.Context, key string) (string, error)
}

// Store is the full persistence contract.
type Store interface {
	Reader
	// WithinTx runs fn in a transaction.  A nil return commits; any error
	// rolls back every write fn made.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
