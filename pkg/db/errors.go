package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique-constraint violation from
// Postgres or SQLite. When constraint is non-empty the error must also mention
// it (constraint name on Postgres, column list on SQLite).
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		if constraint == "" {
			return true
		}
		return strings.Contains(pgErr.ConstraintName, constraint) || strings.Contains(msg, constraint)
	case strings.Contains(msg, "duplicate key value"), strings.Contains(msg, "UNIQUE constraint failed"):
		return constraint == "" || strings.Contains(msg, constraint)
	}
	return false
}
