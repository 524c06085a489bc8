package dbtypes

import (
	"database/sql/driver"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringArray stores a list of strings as a Postgres text[] and as the same
// array literal inside a plain TEXT column on SQLite.
type StringArray pq.StringArray

func (a *StringArray) Scan(src any) error {
	if src == nil {
		*a = StringArray{}
		return nil
	}
	var inner pq.StringArray
	if err := inner.Scan(src); err != nil {
		return err
	}
	*a = StringArray(inner)
	return nil
}

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	return pq.StringArray(a).Value()
}

func (StringArray) GormDataType() string {
	return "text[]"
}

func (StringArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}
