package gitref

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kagenomi/tvm/internal/backend"
)

func testBackend(t *testing.T) *Backend {
	t.Helper()
	dir := t.TempDir()
	return New(Config{
		Short:     "tool",
		RemoteURL: "https://example.test/owner/tool.git",
	}, filepath.Join(dir, "install"), filepath.Join(dir, "cache"))
}

func TestIdentifier(t *testing.T) {
	b := testBackend(t)
	assert.Equal(t, "tool", b.Identifier().Short)
}

func TestIdiomaticFilenames(t *testing.T) {
	b := testBackend(t)
	assert.Equal(t, []string{".tool-version"}, b.IdiomaticFilenames())
}

func TestListInstalledVersionsEmptyWhenMissing(t *testing.T) {
	b := testBackend(t)
	versions, err := b.ListInstalledVersions()
	assert.NoError(t, err)
	assert.Empty(t, versions)
}

func TestListBinPathsWithSubdir(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{
		Short:     "tool",
		RemoteURL: "https://example.test/owner/tool.git",
		BinSubdir: "bin",
	}, filepath.Join(dir, "install"), filepath.Join(dir, "cache"))

	paths, err := b.ListBinPaths(backend.ResolvedVersion{Canonical: "v1.0.0"})
	assert.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "install", "v1.0.0", "bin")}, paths)
}

func TestListBinPathsWithoutSubdir(t *testing.T) {
	b := testBackend(t)
	paths, err := b.ListBinPaths(backend.ResolvedVersion{Canonical: "v1.0.0"})
	assert.NoError(t, err)
	assert.Len(t, paths, 1)
	assert.Equal(t, "v1.0.0", filepath.Base(paths[0]))
}

func TestDependenciesAndPluginAreNil(t *testing.T) {
	b := testBackend(t)
	assert.Nil(t, b.Dependencies(false))
	assert.Nil(t, b.Plugin())
}

