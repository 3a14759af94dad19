package database

import (
	_ "embed"
	"fmt"

	"github.com/jmoiron/sqlx"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

// Migrate applies the schema for the connected driver. It is idempotent.
func Migrate(db *sqlx.DB) error {
	schema := postgresSchema
	if IsSQLite(db) {
		schema = sqliteSchema
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply %s schema: %w", db.DriverName(), err)
	}
	return nil
}

// IsSQLite reports whether the handle talks to SQLite.
func IsSQLite(db interface{ DriverName() string }) bool {
	return db.DriverName() == "sqlite3"
}
