package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

// SourceDir is where new migration files are written, relative to the repo root.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(fmt.Sprintf("embedded migrations: %v", err))
	}
	return sub
}

// RunnerParams configures a Runner. FS defaults to the embedded migrations
// and Dialect to Postgres.
type RunnerParams struct {
	DB      *sql.DB
	FS      fs.FS
	Dialect goose.Dialect
}

// Runner applies goose migrations to one database.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db is required")
	}
	fsys := params.FS
	if fsys == nil {
		fsys = Embedded()
	}
	dialect := params.Dialect
	if dialect == "" {
		dialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(dialect, params.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) ([]*goose.MigrationResult, error) {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return results, fmt.Errorf("goose up: %w", err)
	}
	return results, nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down(ctx context.Context) (*goose.MigrationResult, error) {
	result, err := r.provider.Down(ctx)
	if err != nil {
		return result, fmt.Errorf("goose down: %w", err)
	}
	return result, nil
}

// MigrateTo moves the schema up or down until the database sits at target.
func (r *Runner) MigrateTo(ctx context.Context, target int64) ([]*goose.MigrationResult, error) {
	if target < 0 {
		return nil, fmt.Errorf("target version must not be negative")
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err = r.provider.UpTo(ctx, target)
	default:
		results, err = r.provider.DownTo(ctx, target)
	}
	if err != nil {
		return results, fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return results, nil
}

func (r *Runner) Version(ctx context.Context) (int64, error) {
	return r.provider.GetDBVersion(ctx)
}

func (r *Runner) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return r.provider.Status(ctx)
}

// ParseVersion reads a migration version such as 20260301090000. Zero is
// accepted and means "before the first migration".
func ParseVersion(raw string) (int64, error) {
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 0 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	return version, nil
}
