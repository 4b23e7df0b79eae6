package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsDir is the path of the SQL migrations within migrationsFS.
const migrationsDir = "migrations"

// slogGooseLogger adapts goose's logger interface to slog so migration
// output lands in the structured log stream with everything else.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...), slog.String("component", "goose"))
}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	// goose only calls Fatalf on unrecoverable internal errors; surface them
	// loudly but let the caller decide process fate via the returned error.
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "goose"))
}

// MigrateUp applies all pending migrations from the embedded migration set.
// It is safe to call on every startup; goose tracks applied versions in the
// goose_db_version table and skips migrations that have already run.
func MigrateUp(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if db == nil {
		return fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	goose.SetLogger(&slogGooseLogger{logger: logger})
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	start := time.Now()
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		logger.Error("failed to apply migrations",
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("migrations applied",
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}
