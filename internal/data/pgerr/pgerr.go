package pgerr

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repos react to.
const (
	CodeUniqueViolation = "23505"
	CodeUndefinedTable  = "42P01"
	CodeInvalidSchema   = "3F000"
)

// ErrUniqueViolation is returned by repos when an insert hits a unique index.
var ErrUniqueViolation = errors.New("unique violation")

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// Code returns the SQLSTATE of err, or "".
func Code(err error) string {
	if pgErr, ok := pgError(err); ok {
		return pgErr.Code
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation) || Code(err) == CodeUniqueViolation
}

// IsMissingRelation reports undefined-table and invalid-schema errors.
func IsMissingRelation(err error) bool {
	switch Code(err) {
	case CodeUndefinedTable, CodeInvalidSchema:
		return true
	}
	return false
}

// Constraint returns the violated constraint or index name, if any.
func Constraint(err error) string {
	if pgErr, ok := pgError(err); ok {
		return pgErr.ConstraintName
	}
	return ""
}
