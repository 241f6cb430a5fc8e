// Package repository is the MySQL implementation of store.Store.  Driver
// errors are translated into the store sentinels here so that nothing
// above this package needs to know about MySQL error numbers.
package repository

import (
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/store"
)

// MySQL server error numbers the store reacts to.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

func mysqlNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// translate maps driver errors onto store.ErrNotFound and
// store.ErrDuplicate and leaves every other error alone.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case mysqlNumber(err) == errDupEntry:
		return fmt.Errorf("%v: %w", err, store.ErrDuplicate)
	}
	return err
}

// retryable reports whether a transaction failed only because it lost a
// lock race and may succeed when run again.
func retryable(err error) bool {
	switch mysqlNumber(err) {
	case errDeadlock, errLockWaitTimeout:
		return true
	}
	return false
}
