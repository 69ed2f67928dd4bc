// Package testutils holds fixtures shared by the adapter and wiring tests.
package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// NewArchiveRepo initializes an unversioned Loam repository in a temporary directory,
// the way a party stores its commitments. It returns the directory and the repository.
func NewArchiveRepo(t *testing.T) (string, core.Repository) {
	t.Helper()

	dir, err := filepath.Abs(t.TempDir())
	require.NoError(t, err)

	repo, err := loam.Init(dir, loam.WithVersioning(false), loam.WithForceTemp(false))
	require.NoError(t, err, "Failed to init loam repo")
	return dir, repo
}

// ToolsFile writes a tools.yaml registering every name with a command that exits 0.
func ToolsFile(t *testing.T, names ...string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("tools:\n")
	for _, name := range names {
		b.WriteString("  - name: " + name + "\n    command: \"true\"\n")
	}
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}
