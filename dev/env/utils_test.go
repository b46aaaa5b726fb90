package devenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPassthrough(t *testing.T) {
	path, err := ResolvePath("/var/lib/parkpro/state.db")
	require.NoError(t, err)
	require.Equal(t, "/var/lib/parkpro/state.db", path)
}

func TestIsWorkspaceRoot(t *testing.T) {
	dir := t.TempDir()
	require.False(t, isWorkspaceRoot(dir))

	err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module other-module\n\ngo 1.22\n"), 0666)
	require.NoError(t, err)
	require.False(t, isWorkspaceRoot(dir))

	err = os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module parkpro-backend\n\ngo 1.22\n"), 0666)
	require.NoError(t, err)
	require.True(t, isWorkspaceRoot(dir))
}
