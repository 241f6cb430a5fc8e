package service

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/store"
)

const (
	// InvalidState marks an operation that is not valid for the current
	// status of the entity it targets.
	InvalidState = errors.ConstError("invalid state")
	// PersistenceError marks a store-level failure, including transaction
	// conflicts that outlived their retries.
	PersistenceError = errors.ConstError("persistence error")
)

// The remaining kinds reuse the juju/errors taxonomy:
//
//	errors.Unauthorized       no actor
//	errors.Forbidden          wrong role or not the owner
//	errors.NotFound           referenced entity missing
//	errors.NotValid           malformed input
//	errors.QuotaLimitExceeded job quota or pending-application cap reached

// Failure is the error every core operation returns.  Message is
// localised and safe to show to the end user as is; Kind classifies it
// and is reachable through errors.Is.
type Failure struct {
	Kind    error
	Message string
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Kind }

func fail(kind error, format string, args ...interface{}) error {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func errUnauthorized() error {
	return fail(errors.Unauthorized, "Silakan login terlebih dahulu")
}

func errForbidden() error {
	return fail(errors.Forbidden, "Anda tidak memiliki akses untuk tindakan ini")
}

func errInvalid(format string, args ...interface{}) error {
	return fail(errors.NotValid, format, args...)
}

// settle turns whatever a transaction returned into a Failure.  Failures
// raised inside the unit of work pass through; anything else is a store
// problem, logged with its cause and hidden behind a generic message.
func settle(op string, err error) error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	logger.Errorf("%s: %v", op, err)
	return &Failure{Kind: PersistenceError, Message: "Terjadi kesalahan pada server, silakan coba lagi"}
}

// notFound maps store.ErrNotFound to a NotFound failure and passes any
// other error through untouched for settle to classify.
func notFound(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fail(errors.NotFound, "%s tidak ditemukan", what)
	}
	return err
}
