package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgresDetail is the server-side part of a driver error.
type PostgresDetail struct {
	Code       string `json:"pg_code"`
	Message    string `json:"pg_message,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
}

// Diagnostics flattens an error for logging. It is never sent to clients.
type Diagnostics struct {
	Message  string          `json:"error"`
	Code     Code            `json:"error_code,omitempty"`
	Chain    []string        `json:"error_chain,omitempty"`
	Postgres *PostgresDetail `json:"postgres,omitempty"`
}

// Diagnose walks err's chain. Both the pgx driver used by gorm and lib/pq
// surface Postgres errors, so either is recognised.
func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	d := Diagnostics{Message: err.Error(), Code: As(err).codeOr("")}
	for cur := err; cur != nil; cur = stdErrors.Unwrap(cur) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", cur, cur))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case stdErrors.As(err, &pgxErr):
		d.Postgres = &PostgresDetail{
			Code: pgxErr.Code, Message: pgxErr.Message, Detail: pgxErr.Detail,
			Table: pgxErr.TableName, Column: pgxErr.ColumnName, Constraint: pgxErr.ConstraintName,
		}
	case stdErrors.As(err, &pqErr):
		d.Postgres = &PostgresDetail{
			Code: string(pqErr.Code), Message: pqErr.Message, Detail: pqErr.Detail,
			Table: pqErr.Table, Column: pqErr.Column, Constraint: pqErr.Constraint,
		}
	}
	return d
}

// Fields returns log fields; the chain and driver detail are only included
// when verbose is set.
func (d Diagnostics) Fields(verbose bool) map[string]any {
	fields := map[string]any{"error_message": d.Message, "error_code": d.Code}
	if !verbose {
		return fields
	}
	fields["error_chain"] = d.Chain
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.Code
		fields["pg_message"] = pg.Message
		fields["pg_detail"] = pg.Detail
		fields["pg_table"] = pg.Table
		fields["pg_constraint"] = pg.Constraint
	}
	return fields
}
