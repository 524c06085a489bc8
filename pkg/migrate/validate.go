package migrate

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
)

var fileNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// Validate checks every .sql file in fsys: YYYYMMDDHHMMSS_name.sql naming,
// unique versions, and an Up section followed by a Down section with
// balanced StatementBegin/StatementEnd markers.
func Validate(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no migrations found")
	}

	versions := make(map[string]string, len(names))
	for _, name := range names {
		m := fileNameRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, dup := versions[m[1]]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		if err := checkAnnotations(body); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func checkAnnotations(body []byte) error {
	var sawUp, sawDown, open bool
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "-- +goose Up":
			if sawDown {
				return fmt.Errorf("up section after down")
			}
			sawUp = true
		case "-- +goose Down":
			if !sawUp {
				return fmt.Errorf("down section before up")
			}
			sawDown = true
		case "-- +goose StatementBegin":
			if open {
				return fmt.Errorf("nested statement block")
			}
			open = true
		case "-- +goose StatementEnd":
			if !open {
				return fmt.Errorf("statement end without begin")
			}
			open = false
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	switch {
	case !sawUp:
		return fmt.Errorf("missing \"-- +goose Up\"")
	case !sawDown:
		return fmt.Errorf("missing \"-- +goose Down\"")
	case open:
		return fmt.Errorf("unterminated statement block")
	}
	return nil
}
