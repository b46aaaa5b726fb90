package configlibsql

import (
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoteDSNCarriesToken(t *testing.T) {
	config := Struct{
		Url:       "libsql://parkpro-example.turso.io",
		AuthToken: "tok en",
	}
	dsn, err := config.remoteDSN()
	require.NoError(t, err)

	parsed, err := url.Parse(dsn)
	require.NoError(t, err)
	require.Equal(t, "libsql", parsed.Scheme)
	require.Equal(t, "tok en", parsed.Query().Get("authToken"))
}

func TestOpenDBRequiresTarget(t *testing.T) {
	_, err := Struct{}.OpenDB()
	require.Error(t, err)
}

func TestOpenDBLocalFile(t *testing.T) {
	db, err := Struct{File: filepath.Join(t.TempDir(), "state.db")}.OpenDB()
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())
}
