package aqua

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenomi/tvm/internal/backend"
	"github.com/kagenomi/tvm/internal/checksum"
	registryaqua "github.com/kagenomi/tvm/internal/registry/aqua"
)

func seedRegistryCache(t *testing.T, cacheRoot string, ref registryaqua.RegistryRef, pkg, yaml string) {
	t.Helper()
	cacheFile := filepath.Join(cacheRoot, "registry", ref.String(), "pkgs", pkg, "registry.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(cacheFile), 0755))
	require.NoError(t, os.WriteFile(cacheFile, []byte(yaml), 0644))
}

func TestIdentifierIsNamespacedByPackage(t *testing.T) {
	b := New("cli/cli", t.TempDir(), t.TempDir(), nil)
	assert.Equal(t, "aqua:cli/cli", b.Identifier().Full)
	assert.Equal(t, "cli", b.Identifier().Short)
}

func TestInstallVersionExtractsRawAsset(t *testing.T) {
	dir := t.TempDir()
	installRoot := filepath.Join(dir, "install")
	cacheRoot := filepath.Join(dir, "cache")
	ref := registryaqua.RegistryRef("v4.465.0")

	seedRegistryCache(t, cacheRoot, ref, "example/tool", `packages:
  - type: http
    url: https://example.test/releases/tool-{{.Version}}-{{.OS}}-{{.Arch}}
    format: raw
`)

	b := New("example/tool", installRoot, cacheRoot, func() registryaqua.RegistryRef { return ref })
	b.downloader = fakeDownloader{content: []byte("#!/bin/sh\necho tool\n")}

	tv := backend.ResolvedVersion{Identifier: b.Identifier(), Canonical: "v1.0.0"}
	got, err := b.InstallVersion(backend.InstallContext{Context: context.Background()}, tv)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(installRoot, "v1.0.0"), got.InstallDir)

	bins, err := b.ListBinPaths(got)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(installRoot, "v1.0.0")}, bins)
}

func TestInstallVersionIdempotentWithoutForce(t *testing.T) {
	dir := t.TempDir()
	installRoot := filepath.Join(dir, "install")
	require.NoError(t, os.MkdirAll(filepath.Join(installRoot, "v1.0.0"), 0755))

	b := New("example/tool", installRoot, filepath.Join(dir, "cache"), nil)
	b.downloader = explodingDownloader{t: t}

	tv := backend.ResolvedVersion{Identifier: b.Identifier(), Canonical: "v1.0.0"}
	got, err := b.InstallVersion(backend.InstallContext{Context: context.Background()}, tv)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(installRoot, "v1.0.0"), got.InstallDir)
}

// fakeDownloader writes content to destPath instead of performing a
// real HTTP download.
type fakeDownloader struct{ content []byte }

func (f fakeDownloader) Download(_ context.Context, _, destPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", err
	}
	return destPath, os.WriteFile(destPath, f.content, 0644)
}

func (f fakeDownloader) Verify(_ context.Context, _ string, _ *checksum.Spec) error {
	return nil
}

// explodingDownloader fails the test if Download or Verify is ever
// called, confirming the idempotent-install path performs no I/O.
type explodingDownloader struct{ t *testing.T }

func (d explodingDownloader) Download(_ context.Context, url, _ string) (string, error) {
	d.t.Fatalf("unexpected download of %s on an already-installed version", url)
	return "", nil
}

func (d explodingDownloader) Verify(_ context.Context, _ string, _ *checksum.Spec) error {
	d.t.Fatal("unexpected verify call on an already-installed version")
	return nil
}
