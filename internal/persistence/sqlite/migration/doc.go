// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migrations are read from an fs.FS (normally an embed.FS compiled into the
// binary) and must follow the naming convention {version}_{description}.sql,
// for example "001_bookings.sql". Applied versions are tracked in the
// schema_migrations table; each migration runs inside its own transaction.
//
// Example usage:
//
//	scanner := migration.NewFileScanner(migrationFiles)
//	executor := migration.NewSQLiteExecutor(db)
//	manager := migration.NewMigrationManager(scanner, executor, "migrations", logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
