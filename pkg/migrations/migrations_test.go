package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"parkpro-backend/internal/db"

	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrateTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	sqlite, err := OpenAndMigrateDB(db.Schema, path)
	require.NoError(t, err)
	require.NoError(t, sqlite.Close())

	sqlite, err = OpenAndMigrateDB(db.Schema, path)
	require.NoError(t, err)
	defer sqlite.Close()

	qry := db.New(sqlite)
	err = qry.UpsertSniper(context.Background(), db.UpsertSniperParams{
		Email: "a@example.com",
		Date:  "2026-01-20",
		Plate: "BA123XY",
	})
	require.NoError(t, err)

	sniper, err := qry.GetSniper(context.Background(), db.GetSniperParams{
		Email: "a@example.com",
		Date:  "2026-01-20",
	})
	require.NoError(t, err)
	require.Equal(t, db.SniperActive, sniper.Status)
}
