package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/psecars/merch-backend/pkg/errors"
)

func queryValue(r *http.Request, key string) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	return raw, raw != ""
}

func badQuery(key, msg string, extra ...any) error {
	details := map[string]any{"field": key}
	for i := 0; i+1 < len(extra); i += 2 {
		details[extra[i].(string)] = extra[i+1]
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}

// ParseQueryInt reads key as an int in [lo, hi], returning def when absent.
func ParseQueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badQuery(key, key+" must be an integer")
	}
	if n < lo || n > hi {
		return 0, badQuery(key, key+" is out of range", "min", lo, "max", hi)
	}
	return n, nil
}

// ParseQueryString returns the trimmed value, or nil when key is absent or blank.
func ParseQueryString(r *http.Request, key string) *string {
	raw, ok := queryValue(r, key)
	if !ok {
		return nil
	}
	return &raw
}

// ParseQueryID reads a positive int64 identifier.
func ParseQueryID(r *http.Request, key string) (*int64, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, badQuery(key, key+" must be a positive integer")
	}
	return &id, nil
}

func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badQuery(key, key+" must be a boolean")
	}
	return v, nil
}

// ParseQueryMoney reads a non-negative decimal amount.
func ParseQueryMoney(r *http.Request, key string) (*decimal.Decimal, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, badQuery(key, key+" must be a non-negative number")
	}
	return &d, nil
}
