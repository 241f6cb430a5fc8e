package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo"
	"github.com/juju/retry"

	"github.com/polteknik/kompen/internal/store"
)

var logger = loggo.GetLogger("kompen.repository")

// querier is the part of *sql.DB and *sql.Tx the queries need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// RetryPolicy bounds how often a transaction that lost a lock race is run
// again.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// Store implements store.Store on MySQL.  Transactions lock the rows they
// mutate with SELECT ... FOR UPDATE; deadlocks and lock wait timeouts roll
// back and are retried according to the RetryPolicy.
type Store struct {
	db     *sql.DB
	clock  clock.Clock
	policy RetryPolicy
}

var _ store.Store = (*Store)(nil)

// NewStore returns a Store over db.
func NewStore(db *sql.DB, clk clock.Clock, policy RetryPolicy) *Store {
	if clk == nil {
		clk = clock.WallClock
	}
	if policy.Attempts <= 0 {
		policy.Attempts = 3
	}
	if policy.Delay <= 0 {
		policy.Delay = 20 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 200 * time.Millisecond
	}
	return &Store{db: db, clock: clk, policy: policy}
}

// DB exposes the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) now() time.Time { return s.clock.Now().UTC().Truncate(time.Second) }

// WithinTx implements store.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var last error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			last = s.runTx(ctx, fn)
			return last
		},
		IsFatalError: func(err error) bool { return !retryable(err) },
		NotifyFunc: func(err error, attempt int) {
			logger.Warningf("transaction attempt %d lost a lock race: %v", attempt, err)
		},
		Attempts:    s.policy.Attempts,
		Delay:       s.policy.Delay,
		MaxDelay:    s.policy.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       s.clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if last != nil {
		return last
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, &sqlTx{tx: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// sqlTx implements store.Tx over one database transaction.
type sqlTx struct {
	tx  *sql.Tx
	now func() time.Time
}

var _ store.Tx = (*sqlTx)(nil)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func limitClause(limit, offset int) (string, []interface{}) {
	if limit <= 0 {
		return "", nil
	}
	if offset < 0 {
		offset = 0
	}
	return " LIMIT ? OFFSET ?", []interface{}{limit, offset}
}

func exists(ctx context.Context, q querier, query string, args ...interface{}) (bool, error) {
	var ok bool
	if err := q.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func count(ctx context.Context, q querier, query string, args ...interface{}) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
