package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/studio-reminders/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationDir = "migrations"

// timestampLayout is used for every persisted timestamp column.
const timestampLayout = time.RFC3339Nano

// Storage bundles the SQLite-backed repositories over a single connection pool.
type Storage struct {
	*BookingRepository
	*ActionTokenRepository
	*ReminderDeliveryRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

// Open connects to the database described by cfg. Call Migrate before use.
func Open(cfg migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	return &Storage{
		BookingRepository:          NewBookingRepository(pool),
		ActionTokenRepository:      NewActionTokenRepository(pool),
		ReminderDeliveryRepository: NewReminderDeliveryRepository(pool),
		pool:                       pool,
		logger:                     logger.With("component", "sqlite"),
	}, nil
}

// OpenPath opens a file database at path with the default tuning.
func OpenPath(path string, logger *slog.Logger) (*Storage, error) {
	return Open(migration.DefaultSQLiteConfig(path), logger)
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	if err := s.migrationManager().RunMigrations(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// MigrationStatus reports applied and pending schema migrations.
func (s *Storage) MigrationStatus(ctx context.Context) (*migration.MigrationStatus, error) {
	return s.migrationManager().GetMigrationStatus(ctx)
}

func (s *Storage) migrationManager() migration.MigrationManager {
	return migration.NewMigrationManager(
		migration.NewFileScanner(migrationFiles),
		migration.NewSQLiteExecutor(s.pool.DB()),
		migrationDir,
		s.logger,
	)
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(column, value string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse %s %q: %w", column, value, err)
	}
	return t, nil
}
