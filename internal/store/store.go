// Package store is the Postgres persistence layer. It owns every entity row;
// services keep no authoritative state of their own.
package store

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/lib/pq"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
	// ErrStaleWrite is returned by conditional updates whose precondition no
	// longer holds.
	ErrStaleWrite = errors.New("record changed concurrently")
)

// Queryer is satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	q  Queryer
}

func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// InTx runs fn against a Store bound to one database transaction. All writes
// made through that Store commit or roll back together. Nested calls reuse
// the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// translate maps driver errors onto the package sentinels.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return errors.Wrap(ErrUniqueViolation, pqErr.Constraint)
	}
	return errors.Wrap(err, op)
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, op)
	}
	if n == 0 {
		return ErrStaleWrite
	}
	return nil
}
