// Package pagination implements keyset paging over integer primary keys with
// opaque cursors that are bound to the listing that issued them.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the id of the last row on the previous page.
type Cursor struct {
	ID int64
}

// Keyset describes one paged listing. Scope is baked into every cursor so a
// token from one listing cannot be replayed against another.
type Keyset struct {
	Scope      string
	Descending bool
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Encode returns the URL-safe token for a page ending at id.
func (k Keyset) Encode(id int64) string {
	raw := k.Scope + ":" + strconv.FormatInt(id, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Parse decodes a token issued by Encode. Blank input means the first page.
func (k Keyset) Parse(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	scope, idText, ok := strings.Cut(string(raw), ":")
	if !ok || scope != k.Scope {
		return nil, ErrInvalidCursor
	}
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrInvalidCursor
	}
	return &Cursor{ID: id}, nil
}

// Apply adds the keyset predicate, ordering and a limit with one look-ahead
// row to query.
func (k Keyset) Apply(query *gorm.DB, cursor *Cursor, limit int) *gorm.DB {
	cmp, order := ">", "id ASC"
	if k.Descending {
		cmp, order = "<", "id DESC"
	}
	if cursor != nil {
		query = query.Where("id "+cmp+" ?", cursor.ID)
	}
	return query.Order(order).Limit(NormalizeLimit(limit) + 1)
}

// Trim drops the look-ahead row fetched by Apply and returns the token for
// the next page, or "" when rows was the last page.
func Trim[T any](k Keyset, rows []T, limit int, idOf func(T) int64) ([]T, string) {
	size := NormalizeLimit(limit)
	if len(rows) <= size {
		return rows, ""
	}
	page := rows[:size]
	return page, k.Encode(idOf(page[size-1]))
}
