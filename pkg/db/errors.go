package db

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is set, only violations of that constraint match. SQLite
// errors carry no constraint name, so they fall back to message matching.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if state := pkgerrors.SQLState(err); state != "" {
		if state != pgUniqueViolation {
			return false
		}
		return constraintName == "" || pkgerrors.ConstraintName(err) == constraintName
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}

// ForUpdate adds a row lock on dialects that support it. SQLite serializes
// writers already and rejects the clause.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == DriverSQLite {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ForUpdateSkipLocked is ForUpdate with SKIP LOCKED, used by queue style readers.
func ForUpdateSkipLocked(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == DriverSQLite {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
}
