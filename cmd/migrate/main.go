package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/captures-backend/pkg/config"
	"github.com/angelmondragon/captures-backend/pkg/db"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"github.com/angelmondragon/captures-backend/pkg/migrate"
)

const usage = "up|down|to|status|version|create|validate"

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: "+usage)
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set (create defaults to "+migrate.SourceDir+")")
	name := flag.String("name", "", "migration name for -cmd=create")
	target := flag.String("version", "", "target version for -cmd=to (YYYYMMDDHHMMSS, 0 for empty)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	cfg, err := config.Load()
	if err != nil {
		fail(context.Background(), logg, "load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	switch *cmd {
	case "create":
		outDir := *dir
		if outDir == "" {
			outDir = migrate.SourceDir
		}
		path, err := migrate.CreateSQLMigration(outDir, *name, time.Now())
		if err != nil {
			fail(ctx, logg, "create migration", err)
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return
	case "validate":
		if err := migrate.Validate(source(*dir)); err != nil {
			fail(ctx, logg, "validate migrations", err)
		}
		logg.Info(ctx, "migrations valid")
		return
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(ctx, logg, "connect database", err)
	}
	defer dbClient.Close()
	if dbClient.Dialect() == db.DriverSQLite {
		fail(ctx, logg, "open runner", fmt.Errorf("goose migrations target Postgres; sqlite schemas come from auto-migrate"))
	}
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fail(ctx, logg, "extract sql.DB", err)
	}
	runner, err := migrate.NewRunner(migrate.RunnerParams{DB: sqlDB, FS: source(*dir)})
	if err != nil {
		fail(ctx, logg, "open runner", err)
	}

	switch *cmd {
	case "up":
		results, err := runner.Up(ctx)
		report(ctx, logg, results...)
		if err != nil {
			fail(ctx, logg, "migrate up", err)
		}
	case "down":
		result, err := runner.Down(ctx)
		report(ctx, logg, result)
		if err != nil {
			fail(ctx, logg, "migrate down", err)
		}
	case "to":
		version, err := migrate.ParseVersion(*target)
		if err != nil {
			fail(ctx, logg, "parse version", err)
		}
		results, err := runner.MigrateTo(ctx, version)
		report(ctx, logg, results...)
		if err != nil {
			fail(ctx, logg, "migrate to version", err)
		}
	case "status":
		statuses, err := runner.Status(ctx)
		if err != nil {
			fail(ctx, logg, "migration status", err)
		}
		for _, status := range statuses {
			fields := map[string]any{"version": status.Source.Version, "file": status.Source.Path, "state": status.State}
			if !status.AppliedAt.IsZero() {
				fields["applied_at"] = status.AppliedAt.UTC().Format(time.RFC3339)
			}
			logg.Info(logg.WithFields(ctx, fields), "migration status")
		}
	case "version":
		version, err := runner.Version(ctx)
		if err != nil {
			fail(ctx, logg, "read version", err)
		}
		logg.Info(logg.WithField(ctx, "version", version), "current schema version")
	default:
		fail(ctx, logg, "parse flags", fmt.Errorf("unknown -cmd %q (expected %s)", *cmd, usage))
	}
}

func source(dir string) fs.FS {
	if dir == "" {
		return migrate.Embedded()
	}
	return os.DirFS(dir)
}

func report(ctx context.Context, logg *logger.Logger, results ...*goose.MigrationResult) {
	for _, result := range results {
		if result == nil || result.Source == nil {
			continue
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     result.Source.Version,
			"file":        result.Source.Path,
			"direction":   result.Direction,
			"duration_ms": result.Duration.Milliseconds(),
		}), "migration applied")
	}
}

func fail(ctx context.Context, logg *logger.Logger, step string, err error) {
	logg.Error(ctx, step+" failed", err)
	os.Exit(1)
}
