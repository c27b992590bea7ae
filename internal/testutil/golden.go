package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden compares output with files under a directory. Setting
// UPDATE_GOLDEN=true rewrites the files instead.
type Golden struct {
	t      *testing.T
	dir    string
	update bool
}

// NewGolden creates a helper rooted at dir.
func NewGolden(t *testing.T, dir string) *Golden {
	t.Helper()
	return &Golden{t: t, dir: dir, update: os.Getenv("UPDATE_GOLDEN") == "true"}
}

// Path returns the path of a golden file.
func (g *Golden) Path(name string) string {
	return filepath.Join(g.dir, name)
}

// Assert compares actual byte for byte.
func (g *Golden) Assert(name string, actual []byte) {
	g.t.Helper()
	if want, ok := g.read(name, actual); ok {
		assert.Equal(g.t, string(want), string(actual), "content does not match golden file %s", name)
	}
}

// AssertJSON compares actual as JSON, ignoring formatting.
func (g *Golden) AssertJSON(name string, actual []byte) {
	g.t.Helper()
	if want, ok := g.read(name, actual); ok {
		assert.JSONEq(g.t, string(want), string(actual), "JSON does not match golden file %s", name)
	}
}

// read returns the golden content, or writes actual and returns false in
// update mode.
func (g *Golden) read(name string, actual []byte) ([]byte, bool) {
	g.t.Helper()

	path := g.Path(name)
	if g.update {
		require.NoError(g.t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(g.t, os.WriteFile(path, actual, 0o644))
		g.t.Logf("Updated golden file: %s", path)
		return nil, false
	}

	want, err := os.ReadFile(path)
	require.NoError(g.t, err, "failed to read golden file %s", path)
	return want, true
}
