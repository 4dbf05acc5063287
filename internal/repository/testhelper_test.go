package repository

import (
	"database/sql"
	"testing"

	"github.com/roomvibe/roomvibe-api/internal/database/migrations"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// insertTestProfile is a helper to insert a profile with a balance directly.
func insertTestProfile(t *testing.T, db *sql.DB, userID string, credits int) {
	t.Helper()
	query := `
		INSERT INTO profiles (id, email, credits, created_at, updated_at)
		VALUES (?, ?, ?, datetime('now'), datetime('now'))
	`
	if _, err := db.Exec(query, userID, userID+"@example.com", credits); err != nil {
		t.Fatalf("failed to insert test profile: %v", err)
	}
}
