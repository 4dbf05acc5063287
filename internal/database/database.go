// Package database opens the libsql connection and runs schema
// migrations.
package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tursodatabase/go-libsql"

	"github.com/roomvibe/roomvibe-api/internal/database/migrations"
)

// New opens a libsql database. A plain DSN ("file:roomvibe.db" or an
// http URL for a local libsql server) opens directly; when TURSO_URL and
// TURSO_AUTH_TOKEN are both set, the local file becomes an embedded
// replica synced with Turso cloud.
func New(dsn string) (*sql.DB, error) {
	db, err := open(dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func open(dsn string) (*sql.DB, error) {
	tursoURL := os.Getenv("TURSO_URL")
	tursoToken := os.Getenv("TURSO_AUTH_TOKEN")
	if tursoURL == "" || tursoToken == "" {
		db, err := sql.Open("libsql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return db, nil
	}

	path := strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	connector, err := libsql.NewEmbeddedReplicaConnector(path, tursoURL,
		libsql.WithAuthToken(tursoToken),
		libsql.WithReadYourWrites(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Turso connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// Migrate applies pending migrations. User identity lives with the auth
// provider; user_id columns hold its IDs without a local FK target.
func Migrate(db *sql.DB) error {
	return MigrateWithLogger(db, nil)
}

// MigrateWithLogger applies pending migrations logging through logger.
func MigrateWithLogger(db *sql.DB, logger *slog.Logger) error {
	return migrations.Run(db, logger)
}
