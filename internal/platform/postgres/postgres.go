// Package postgres opens the shared database handle and applies migrations.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // register postgres driver
	"github.com/pressly/goose/v3"

	"kycvault/internal/platform/config"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Connect opens a pool and verifies connectivity within the ping timeout.
func Connect(ctx context.Context, cfg config.Database) (*sqlx.DB, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate applies all embedded migrations.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if err := setup(); err != nil {
		return err
	}
	return goose.UpContext(ctx, db.DB, "migrations")
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, db *sqlx.DB) error {
	if err := setup(); err != nil {
		return err
	}
	return goose.DownContext(ctx, db.DB, "migrations")
}

// Version reports the current schema version.
func Version(db *sqlx.DB) (int64, error) {
	if err := setup(); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db.DB)
}

func setup() error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Health pings the database; used by the ops health endpoint.
func Health(db *sqlx.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// LogStats writes pool statistics at debug level.
func LogStats(ctx context.Context, logger *slog.Logger, db *sqlx.DB) {
	s := db.Stats()
	logger.DebugContext(ctx, "database pool",
		"open", s.OpenConnections, "in_use", s.InUse, "idle", s.Idle, "wait_count", s.WaitCount)
}
