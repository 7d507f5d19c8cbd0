// Package runtime holds connection setup and the error taxonomy shared by
// the store, the migration executor and the API.
package runtime

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a record does not exist or is not visible
	// to the caller. The two cases are indistinguishable on purpose.
	ErrNotFound = errors.New("record not found")

	// ErrAccessDenied is returned when a row policy rejects a write.
	ErrAccessDenied = errors.New("access denied")

	// ErrConstraint matches every *ConstraintError via errors.Is.
	ErrConstraint = errors.New("constraint violation")

	// ErrNoConnection is returned when no database connection is available.
	ErrNoConnection = errors.New("no database connection")
)

// SQLSTATE codes mapped by Classify.
const (
	codeUniqueViolation       = "23505"
	codeCheckViolation        = "23514"
	codeForeignKeyViolation   = "23503"
	codeNotNullViolation      = "23502"
	codeInsufficientPrivilege = "42501"
)

// ConstraintKind identifies which integrity rule a write broke.
type ConstraintKind string

const (
	Unique     ConstraintKind = "unique"
	Check      ConstraintKind = "check"
	ForeignKey ConstraintKind = "foreign_key"
	NotNull    ConstraintKind = "not_null"
)

// ConstraintError is a rejected write. The statement had no effect.
type ConstraintError struct {
	Kind       ConstraintKind
	Table      string
	Constraint string
	Column     string
	Err        error
}

// Error implements the error interface.
func (e *ConstraintError) Error() string {
	name := e.Constraint
	if name == "" {
		name = e.Column
	}
	return fmt.Sprintf("%s violation on %s (%s)", e.Kind, e.Table, name)
}

// Is makes errors.Is(err, ErrConstraint) true.
func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraint
}

// Unwrap returns the underlying error.
func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// IsConstraint reports whether err is a constraint violation of kind.
func IsConstraint(err error, kind ConstraintKind) bool {
	var ce *ConstraintError
	return errors.As(err, &ce) && ce.Kind == kind
}

// Classify maps driver errors onto the taxonomy: no rows become ErrNotFound,
// integrity violations become *ConstraintError and privilege errors,
// including row security WITH CHECK failures, become ErrAccessDenied.
// Anything else is returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return newConstraintError(Unique, pgErr)
	case codeCheckViolation:
		return newConstraintError(Check, pgErr)
	case codeForeignKeyViolation:
		return newConstraintError(ForeignKey, pgErr)
	case codeNotNullViolation:
		return newConstraintError(NotNull, pgErr)
	case codeInsufficientPrivilege:
		// The server message names the table and policy; keep it out.
		return ErrAccessDenied
	}
	return err
}

func newConstraintError(kind ConstraintKind, pgErr *pgconn.PgError) *ConstraintError {
	return &ConstraintError{
		Kind:       kind,
		Table:      pgErr.TableName,
		Constraint: pgErr.ConstraintName,
		Column:     pgErr.ColumnName,
		Err:        pgErr,
	}
}

// QueryError represents a query execution error.
type QueryError struct {
	Query string
	Err   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v\nQuery: %s", e.Err, e.Query)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// MigrationError represents a migration error.
type MigrationError struct {
	Version string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration error (version %s): %s: %v", e.Version, e.Message, e.Err)
}

// Unwrap returns the underlying error.
func (e *MigrationError) Unwrap() error {
	return e.Err
}
