// Package aqua implements the delegated package-manager backend (one
// of the three backends added to exercise the rest of the corpus's
// domain stack): it shells out to the aqua-registry asset-resolution
// machinery in internal/registry/aqua to turn "owner/repo@version"
// requests into a concrete download, the same way tomei's
// InstallerRepository/Installer resources delegate to an external
// package manager rather than embedding one.
package aqua

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kagenomi/tvm/internal/backend"
	"github.com/kagenomi/tvm/internal/checksum"
	tvmerrors "github.com/kagenomi/tvm/internal/errors"
	"github.com/kagenomi/tvm/internal/github"
	"github.com/kagenomi/tvm/internal/installer/download"
	"github.com/kagenomi/tvm/internal/installer/extract"
	registryaqua "github.com/kagenomi/tvm/internal/registry/aqua"
	"github.com/kagenomi/tvm/internal/toolset"
)

// fallbackRegistryRef is used until the first successful
// registryaqua.SyncRegistry call populates state with a real ref.
const fallbackRegistryRef registryaqua.RegistryRef = "v4.0.0"

// RefFunc supplies the aqua-registry ref to resolve packages against,
// letting the backend stay decoupled from the state package.
type RefFunc func() registryaqua.RegistryRef

// Backend implements backend.Backend for a single "owner/repo"
// aqua-registry package.
type Backend struct {
	pkg         string // "owner/repo"
	id          backend.Identifier
	installRoot string
	cacheRoot   string
	resolver    *registryaqua.Resolver
	downloader  download.Downloader
	httpClient  *http.Client
	ref         RefFunc
}

// New constructs the aqua-delegated backend for pkg ("owner/repo"),
// e.g. "cli/cli". ref supplies the aqua-registry version to resolve
// against; if nil, or if a call returns "", a fixed fallback ref is
// used instead. The fallback covers both a caller that never wires a
// live ref and a caller (e.g. before the first registryaqua.SyncRegistry
// run) whose state has no ref recorded yet.
func New(pkg, installRoot, cacheRoot string, ref RefFunc) *Backend {
	client := github.NewHTTPClient(github.TokenFromEnv())
	if ref == nil {
		ref = func() registryaqua.RegistryRef { return fallbackRegistryRef }
	}
	resolvedRef := func() registryaqua.RegistryRef {
		if r := ref(); r != "" {
			return r
		}
		return fallbackRegistryRef
	}
	return &Backend{
		pkg:         pkg,
		id:          backend.NewIdentifier(shortName(pkg), "aqua:"+pkg, backend.KindDelegated),
		installRoot: installRoot,
		cacheRoot:   cacheRoot,
		resolver:    registryaqua.NewResolver(filepath.Join(cacheRoot, "registry"), client),
		downloader:  download.NewDownloader(),
		httpClient:  client,
		ref:         resolvedRef,
	}
}

var _ backend.Backend = (*Backend)(nil)

func shortName(pkg string) string {
	_, repo, ok := strings.Cut(pkg, "/")
	if !ok {
		return pkg
	}
	return repo
}

func (b *Backend) Identifier() backend.Identifier { return b.id }

// ListRemoteVersions fetches the package's registry entry to learn its
// upstream repo_owner/repo_name, then lists every GitHub release tag
// for that repo.
func (b *Backend) ListRemoteVersions(ctx context.Context) ([]string, error) {
	info, err := b.resolver.FetchPackageInfo(ctx, b.ref(), b.pkg)
	if err != nil {
		return nil, fmt.Errorf("aqua: fetch package info for %s: %w", b.pkg, err)
	}
	versions, err := github.ListReleases(ctx, b.httpClient, info.RepoOwner, info.RepoName, info.VersionPrefix)
	if err != nil {
		return nil, fmt.Errorf("aqua: list releases for %s: %w", b.pkg, err)
	}
	return toolset.DedupeSortVersions(versions), nil
}

// ListInstalledVersions derives installed versions from install-root
// subdirectories.
func (b *Backend) ListInstalledVersions() ([]string, error) {
	entries, err := os.ReadDir(b.installRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("aqua: list installed versions for %s: %w", b.pkg, err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	return versions, nil
}

// ListBinPaths returns the installed version's directory; aqua assets
// are extracted flat, so the install dir itself carries the binaries.
func (b *Backend) ListBinPaths(tv backend.ResolvedVersion) ([]string, error) {
	return []string{b.versionDir(tv.Canonical)}, nil
}

func (b *Backend) versionDir(canonical string) string {
	return filepath.Join(b.installRoot, canonical)
}

// InstallVersion resolves the package's download source for tv via the
// aqua-registry asset-resolution rules, downloads the asset, verifies
// its checksum when the registry advertises one, and extracts it into
// the canonical install directory. The install directory is only
// populated after the checksum check (when one exists) succeeds.
func (b *Backend) InstallVersion(ictx backend.InstallContext, tv backend.ResolvedVersion) (backend.ResolvedVersion, error) {
	ctx := ictx.Context
	installDir := b.versionDir(tv.Canonical)

	if !ictx.Force {
		if info, err := os.Stat(installDir); err == nil && info.IsDir() {
			tv.InstallDir = installDir
			return tv, nil
		}
	}

	if ictx.Progress != nil {
		ictx.Progress.SetMessage(fmt.Sprintf("aqua %s: resolving asset for %s", b.pkg, tv.Canonical))
	}
	resolved, err := b.resolver.Resolve(ctx, b.ref(), b.pkg, tv.Canonical)
	if err != nil {
		return tv, tvmerrors.NewResolutionFailedError(b.pkg, tv.Canonical, err)
	}
	if len(resolved.Errors) > 0 {
		return tv, tvmerrors.NewResolutionFailedError(b.pkg, tv.Canonical, fmt.Errorf("%s", strings.Join(resolved.Errors, "; ")))
	}

	stageDir := filepath.Join(b.cacheRoot, shortName(b.pkg))
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return tv, tvmerrors.NewDownloadError(b.pkg, resolved.URL, err)
	}
	assetPath := filepath.Join(stageDir, filepath.Base(resolved.URL))

	if ictx.Progress != nil {
		ictx.Progress.SetMessage(fmt.Sprintf("aqua %s: downloading %s", b.pkg, resolved.URL))
	}
	if _, err := b.downloader.Download(ctx, resolved.URL, assetPath); err != nil {
		return tv, tvmerrors.NewDownloadError(b.pkg, resolved.URL, err)
	}
	defer os.Remove(assetPath)

	if resolved.ChecksumURL != "" {
		if ictx.Progress != nil {
			ictx.Progress.SetMessage(fmt.Sprintf("aqua %s: verifying checksum", b.pkg))
		}
		spec := &checksum.Spec{URL: resolved.ChecksumURL, FilePattern: filepath.Base(resolved.URL)}
		if err := b.downloader.Verify(ctx, assetPath, spec); err != nil {
			return tv, tvmerrors.NewVerificationError(b.pkg, tv.Canonical, err)
		}
	}

	if ictx.Progress != nil {
		ictx.Progress.SetMessage(fmt.Sprintf("aqua %s: extracting", b.pkg))
	}
	if err := b.extractInto(assetPath, installDir, resolved.Format); err != nil {
		return tv, tvmerrors.NewExtractionError(b.pkg, tv.Canonical, err)
	}

	tv.InstallDir = installDir
	tv.DownloadDir = stageDir
	return tv, nil
}

func (b *Backend) extractInto(assetPath, installDir string, format extract.ArchiveType) error {
	if format == "" {
		format = extract.DetectArchiveType(assetPath)
	}
	if format == "" {
		format = extract.ArchiveTypeRaw
	}

	if err := os.MkdirAll(filepath.Dir(installDir), 0755); err != nil {
		return fmt.Errorf("create install parent dir: %w", err)
	}
	scratch, err := os.MkdirTemp(filepath.Dir(installDir), "aqua-extract-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	f, err := os.Open(assetPath)
	if err != nil {
		return fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	extractor, err := extract.NewExtractor(format)
	if err != nil {
		return err
	}
	if err := extractor.Extract(f, scratch); err != nil {
		return fmt.Errorf("extract asset: %w", err)
	}
	if format == extract.ArchiveTypeRaw {
		if err := os.Rename(filepath.Join(scratch, filepath.Base(scratch)), filepath.Join(scratch, shortName(b.pkg))); err != nil {
			return fmt.Errorf("name raw binary: %w", err)
		}
	}

	if err := os.RemoveAll(installDir); err != nil {
		return fmt.Errorf("clear install dir: %w", err)
	}
	return os.Rename(scratch, installDir)
}

// ExecEnv reports no additional env vars for delegated packages.
func (b *Backend) ExecEnv(_ backend.ResolvedVersion) (map[string]string, error) {
	return nil, nil
}

// Which locates binName directly under the install directory, the
// typical aqua extracted-asset layout.
func (b *Backend) Which(tv backend.ResolvedVersion, binName string) (string, bool) {
	candidate := filepath.Join(b.versionDir(tv.Canonical), binName)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, true
	}
	return "", false
}

// Plugin returns nil: package resolution needs no bootstrap step of
// its own; registry sync (registryaqua.SyncRegistry) runs independently.
func (b *Backend) Plugin() backend.Plugin { return nil }

// IdiomaticFilenames returns nil: aqua packages have no per-project
// idiomatic version file convention.
func (b *Backend) IdiomaticFilenames() []string { return nil }

// Dependencies returns nil: delegated packages carry no backend-level
// dependency edges in this registry.
func (b *Backend) Dependencies(_ bool) []backend.Identifier { return nil }

// OutdatedInfo reports the latest upstream tool version if newer than
// tv.Canonical, regardless of bump (aqua packages rarely follow strict
// semver, so finer bump constraints are not applied here).
func (b *Backend) OutdatedInfo(ctx context.Context, tv backend.ResolvedVersion, _ backend.Bump) (*backend.OutdatedInfo, error) {
	owner, repo, ok := strings.Cut(b.pkg, "/")
	if !ok {
		return nil, fmt.Errorf("aqua: malformed package name %q", b.pkg)
	}
	latest, err := b.resolver.VersionClient().GetLatestToolVersion(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	if latest == "" || latest == tv.Canonical {
		return nil, nil
	}
	return &backend.OutdatedInfo{Current: tv.Canonical, Latest: latest}, nil
}
