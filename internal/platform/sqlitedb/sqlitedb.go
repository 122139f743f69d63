// Package sqlitedb is the embedded single-node storage driver. It mirrors the
// postgres driver in internal/platform/db: a connection, a schema, a tx runner
// and a health checker.
package sqlitedb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ehr/medledger/internal/platform/apperror"
)

type contextKey string

const txKey contextKey = "sqlite_tx"

// Connect opens the database at path (":memory:" for a private in-memory
// database) and applies the schema.
func Connect(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("connect sqlite %s: %w", path, err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// Ext is satisfied by *sqlx.DB and *sqlx.Tx.
type Ext interface {
	sqlx.ExtContext
}

// TxFromContext retrieves the open transaction from context.
func TxFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey).(*sqlx.Tx)
	return tx
}

// Conn returns the open transaction if there is one, otherwise db.
func Conn(ctx context.Context, db *sqlx.DB) Ext {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}

// TxRunner runs a unit of work inside one sqlite transaction.
type TxRunner struct {
	db *sqlx.DB
}

func NewTxRunner(db *sqlx.DB) *TxRunner {
	return &TxRunner{db: db}
}

// InTx calls fn with a context carrying the transaction, committing when fn
// returns nil. A transaction already present in ctx is reused.
func (r *TxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return MapError(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return MapError(err)
	}
	if err := tx.Commit(); err != nil {
		return MapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// MapError translates busy/locked errors into ErrConcurrentModification.
func MapError(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%s: %w", se.Error(), apperror.ErrConcurrentModification)
		}
	}
	return err
}

// IsUniqueViolation reports whether err is a unique or primary key violation.
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// Checker reports on the sqlite handle for the health endpoint.
type Checker struct {
	DB *sqlx.DB
}

func (c Checker) Driver() string                 { return "sqlite" }
func (c Checker) Ping(ctx context.Context) error { return c.DB.PingContext(ctx) }
func (c Checker) Stats() interface{} {
	s := c.DB.Stats()
	return map[string]interface{}{
		"open_connections": s.OpenConnections,
		"in_use":           s.InUse,
		"idle":             s.Idle,
		"wait_count":       s.WaitCount,
		"wait_duration":    s.WaitDuration.String(),
	}
}
