package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/psecars/merch-backend/pkg/config"
	"github.com/psecars/merch-backend/pkg/db"
	"github.com/psecars/merch-backend/pkg/logger"
	"github.com/psecars/merch-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory for create and validate")
	name := flag.String("name", "", "migration name for -cmd=create")
	target := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch files
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create", nil)
		}
		path, err := migrate.CreateSQLMigration(*dir, *name, time.Now())
		if err != nil {
			fail("create migration", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.Validate(os.DirFS(*dir)); err != nil {
			fail("validate migrations", err)
		}
		fmt.Println("migrations valid")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fail("load config", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	if cfg.FeatureFlags.UseSQLite {
		fail("goose migrations target postgres; sqlite schemas come from MERCH_AUTO_MIGRATE", nil)
	}

	dbClient, err := db.New(ctx, cfg.DB, false, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.SQL()
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}
	runner, err := migrate.NewRunner(sqlDB, migrate.Embedded())
	if err != nil {
		logg.Error(ctx, "migration runner", err)
		os.Exit(1)
	}

	switch *cmd {
	case "up":
		applied, err := runner.Up(ctx)
		report(ctx, logg, "up", applied, err)
	case "down":
		version, err := runner.Down(ctx)
		report(ctx, logg, "down", []int64{version}, err)
	case "version":
		if *target == "" {
			fail("missing -version for version command", nil)
		}
		moved, err := runner.To(ctx, *target)
		report(ctx, logg, "version", moved, err)
	case "status":
		rows, err := runner.Status(ctx)
		if err != nil {
			logg.Error(ctx, "migration status", err)
			os.Exit(1)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tAPPLIED\tFILE")
		for _, row := range rows {
			fmt.Fprintf(w, "%d\t%t\t%s\n", row.Version, row.Applied, row.Path)
		}
		_ = w.Flush()
	default:
		fail("unknown -cmd value "+*cmd, nil)
	}
}

func report(ctx context.Context, logg *logger.Logger, op string, versions []int64, err error) {
	if err != nil {
		logg.Error(ctx, "migrate "+op+" failed", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "versions", versions), "migrate "+op+" complete")
}

func fail(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}
