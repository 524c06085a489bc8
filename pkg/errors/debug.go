package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the flattened form of an error chain written to structured logs.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	Retryable  bool   `json:"retryable"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(te.Code()).Retryable
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	if pg := postgresError(err); pg != nil {
		d.PGCode = pg.code
		d.PGConstraint = pg.constraint
		d.PGTable = pg.table
		d.PGColumn = pg.column
		d.PGDetail = pg.detail
		d.PGMessage = pg.message
	}
	return d
}

// SQLState returns the Postgres SQLSTATE carried by err, or "" for non-Postgres errors.
func SQLState(err error) string {
	if pg := postgresError(err); pg != nil {
		return pg.code
	}
	return ""
}

// ConstraintName returns the violated constraint reported by Postgres, if any.
func ConstraintName(err error) string {
	if pg := postgresError(err); pg != nil {
		return pg.constraint
	}
	return ""
}

type pgFields struct {
	code       string
	constraint string
	table      string
	column     string
	detail     string
	message    string
}

func postgresError(err error) *pgFields {
	if err == nil {
		return nil
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &pgFields{
			code:       pgxErr.Code,
			constraint: pgxErr.ConstraintName,
			table:      pgxErr.TableName,
			column:     pgxErr.ColumnName,
			detail:     pgxErr.Detail,
			message:    pgxErr.Message,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &pgFields{
			code:       string(pqErr.Code),
			constraint: pqErr.Constraint,
			table:      pqErr.Table,
			column:     pqErr.Column,
			detail:     pqErr.Detail,
			message:    pqErr.Message,
		}
	}
	return nil
}
