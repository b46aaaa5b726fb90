package testutil

import (
	"database/sql"
	"testing"

	"parkpro-backend/internal/db"
	"parkpro-backend/pkg/migrations"
)

// OpenDB opens a private in-memory database holding the parkpro schema, it is
// closed when the test ends.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()

	sqlite, err := migrations.OpenAndMigrateDB(db.Schema, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		sqlite.Close()
	})
	return sqlite
}

// OpenQueries is OpenDB wrapped in the generated query layer.
func OpenQueries(t testing.TB) *db.Queries {
	return db.New(OpenDB(t))
}
