package database

import (
	"database/sql"
	"embed"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationTable = "schema_migrations"

func source() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFS,
		Root:       "migrations",
	}
}

// MigrateUp applies all pending migrations and returns how many ran.
func MigrateUp(db *sql.DB) (int, error) {
	migrate.SetTable(migrationTable)
	n, err := migrate.Exec(db, "postgres", source(), migrate.Up)
	if err != nil {
		return n, fmt.Errorf("apply migrations: %w", err)
	}
	return n, nil
}

// MigrateDown rolls back at most steps migrations.
func MigrateDown(db *sql.DB, steps int) (int, error) {
	migrate.SetTable(migrationTable)
	n, err := migrate.ExecMax(db, "postgres", source(), migrate.Down, steps)
	if err != nil {
		return n, fmt.Errorf("rollback migrations: %w", err)
	}
	return n, nil
}
