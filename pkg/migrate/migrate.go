package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migration files are written, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(fmt.Sprintf("migrations sub fs: %v", err))
	}
	return sub
}

// Runner applies the Postgres migrations through a goose provider. SQLite
// databases are built from the models instead; see MaybeRunDev.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, fsys fs.FS) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if fsys == nil {
		fsys = Embedded()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Up applies every pending migration and returns the versions applied.
func (r *Runner) Up(ctx context.Context) ([]int64, error) {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose up: %w", err)
	}
	return versions(results), nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) (int64, error) {
	result, err := r.provider.Down(ctx)
	if err != nil {
		return 0, fmt.Errorf("goose down: %w", err)
	}
	if result == nil || result.Source == nil {
		return 0, nil
	}
	return result.Source.Version, nil
}

// Status is one line of the migration status table.
type Status struct {
	Version int64
	Path    string
	Applied bool
}

func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	rows, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]Status, 0, len(rows))
	for _, row := range rows {
		out = append(out, Status{
			Version: row.Source.Version,
			Path:    row.Source.Path,
			Applied: row.State == goose.StateApplied,
		})
	}
	return out, nil
}

// To moves the schema up or down to target, given as YYYYMMDDHHMMSS.
func (r *Runner) To(ctx context.Context, target string) ([]int64, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("current version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case version == current:
		return nil, nil
	case version > current:
		results, err = r.provider.UpTo(ctx, version)
	default:
		results, err = r.provider.DownTo(ctx, version)
	}
	if err != nil {
		return nil, fmt.Errorf("migrate to %d: %w", version, err)
	}
	return versions(results), nil
}

func versions(results []*goose.MigrationResult) []int64 {
	out := make([]int64, 0, len(results))
	for _, res := range results {
		if res != nil && res.Source != nil {
			out = append(out, res.Source.Version)
		}
	}
	return out
}
