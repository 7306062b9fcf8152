// Package storage is the pgx persistence of clinic records. Every query is scoped by the
// clinic id taken from the caller's principal.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/dentalcare/libs/db"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalid           = errors.New("value rejected by a constraint")
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// mapErr translates driver errors into the package sentinels.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w", op, ErrInvalidReference)
	case db.IsCheckViolation(err):
		return fmt.Errorf("%s: %w", op, ErrInvalid)
	case db.IsInvalidText(err):
		// Malformed uuids in path parameters name rows that cannot exist.
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func deleteByID(ctx context.Context, q querier, op, table, clinicID, id string) error {
	tag, err := q.Exec(ctx, "DELETE FROM "+table+" WHERE clinic_id = $1 AND id = $2", clinicID, id)
	if err != nil {
		return mapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func collect[T any](rows pgx.Rows, err error, scan func(scanner) (T, error)) ([]T, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		return scan(row)
	})
}

// escapeLike quotes the LIKE wildcards of user input.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
