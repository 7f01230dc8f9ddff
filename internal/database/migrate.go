package database

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/go-faster/errors"
)

//go:embed schema.sql
var schema string

// Migrate applies the idempotent schema in a single transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin migration")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit migration")
	}
	return nil
}
