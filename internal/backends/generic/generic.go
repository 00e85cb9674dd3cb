// Package generic implements a checksum-verified download backend for
// tools distributed as a plain archive or raw binary with a published
// GNU/BSD-style checksums file or a bare sha256/sha512 hash, rather
// than a minisign signature. It exists to give this module's
// checksum.Parse/Verify machinery a home beyond the zig backend's
// signature-based flow, following the same download/verify/extract
// shape as internal/backends/zig.
package generic

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
	"github.com/kagenomi/tvm/internal/toolset"
)

// URLBuilder turns a canonical version string into the archive
// download URL and, optionally, the checksum source for it. Each
// tool using this backend supplies its own builder, the way the
// reference backend hardcodes ziglang.org's own URL shape.
type URLBuilder func(canonical string) (archiveURL string, checksumSpec *checksum.Spec)

// Config describes a single tool installed through this backend.
type Config struct {
	Short     string
	RepoOwner string
	RepoName  string
	TagPrefix string
	BuildURL  URLBuilder
	// BinName is the binary name to expose via Which/ListBinPaths,
	// defaulting to Short when empty.
	BinName string
}

// Backend implements backend.Backend for a checksum-verified download
// of a single tool.
type Backend struct {
	cfg         Config
	id          backend.Identifier
	installRoot string
	cacheRoot   string
	downloader  download.Downloader
	httpClient  *http.Client
}

func (b *Backend) binName() string {
	if b.cfg.BinName != "" {
		return b.cfg.BinName
	}
	return b.cfg.Short
}

// New constructs the generic backend for cfg.
func New(cfg Config, installRoot, cacheRoot string) *Backend {
	return &Backend{
		cfg:         cfg,
		id:          backend.NewIdentifier(cfg.Short, cfg.Short, backend.KindGeneric),
		installRoot: installRoot,
		cacheRoot:   cacheRoot,
		downloader:  download.NewDownloader(),
		httpClient:  github.NewHTTPClient(github.TokenFromEnv()),
	}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) Identifier() backend.Identifier { return b.id }

// ListRemoteVersions lists releases from the tool's GitHub repo,
// deduped and sorted by semantic version.
func (b *Backend) ListRemoteVersions(ctx context.Context) ([]string, error) {
	versions, err := github.ListReleases(ctx, b.httpClient, b.cfg.RepoOwner, b.cfg.RepoName, b.cfg.TagPrefix)
	if err != nil {
		return nil, fmt.Errorf("generic(%s): list releases: %w", b.cfg.Short, err)
	}
	return toolset.DedupeSortVersions(versions), nil
}

func (b *Backend) ListInstalledVersions() ([]string, error) {
	entries, err := os.ReadDir(b.installRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("generic(%s): list installed versions: %w", b.cfg.Short, err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	return versions, nil
}

func (b *Backend) ListBinPaths(tv backend.ResolvedVersion) ([]string, error) {
	return []string{b.versionDir(tv.Canonical)}, nil
}

func (b *Backend) versionDir(canonical string) string {
	return filepath.Join(b.installRoot, canonical)
}

// InstallVersion downloads the archive the URLBuilder names, verifies
// its checksum when one is supplied, and extracts it into the
// canonical install directory. Skipping verification entirely (a nil
// checksumSpec) is a valid, explicit choice left to the caller's
// Config — not a silent default.
func (b *Backend) InstallVersion(ictx backend.InstallContext, tv backend.ResolvedVersion) (backend.ResolvedVersion, error) {
	ctx := ictx.Context
	installDir := b.versionDir(tv.Canonical)

	if !ictx.Force {
		if info, err := os.Stat(installDir); err == nil && info.IsDir() {
			tv.InstallDir = installDir
			return tv, nil
		}
	}

	archiveURL, checksumSpec := b.cfg.BuildURL(tv.Canonical)

	stageDir := filepath.Join(b.cacheRoot, b.cfg.Short)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return tv, tvmerrors.NewDownloadError(b.cfg.Short, archiveURL, err)
	}
	archivePath := filepath.Join(stageDir, filepath.Base(archiveURL))

	if ictx.Progress != nil {
		ictx.Progress.SetMessage(fmt.Sprintf("%s %s: downloading %s", b.cfg.Short, tv.Canonical, archiveURL))
	}
	if _, err := b.downloader.Download(ctx, archiveURL, archivePath); err != nil {
		return tv, tvmerrors.NewDownloadError(b.cfg.Short, archiveURL, err)
	}
	defer os.Remove(archivePath)

	if checksumSpec != nil {
		if ictx.Progress != nil {
			ictx.Progress.SetMessage(fmt.Sprintf("%s %s: verifying checksum", b.cfg.Short, tv.Canonical))
		}
		if err := b.downloader.Verify(ctx, archivePath, checksumSpec); err != nil {
			return tv, tvmerrors.NewVerificationError(b.cfg.Short, tv.Canonical, err)
		}
	}

	if ictx.Progress != nil {
		ictx.Progress.SetMessage(fmt.Sprintf("%s %s: extracting", b.cfg.Short, tv.Canonical))
	}
	if err := b.extractInto(archivePath, installDir); err != nil {
		return tv, tvmerrors.NewExtractionError(b.cfg.Short, tv.Canonical, err)
	}

	tv.InstallDir = installDir
	tv.DownloadDir = stageDir
	return tv, nil
}

func (b *Backend) extractInto(archivePath, installDir string) error {
	archiveType := extract.DetectArchiveType(archivePath)
	if archiveType == "" {
		archiveType = extract.ArchiveTypeRaw
	}

	if err := os.MkdirAll(filepath.Dir(installDir), 0755); err != nil {
		return fmt.Errorf("create install parent dir: %w", err)
	}
	scratch, err := os.MkdirTemp(filepath.Dir(installDir), "generic-extract-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	extractor, err := extract.NewExtractor(archiveType)
	if err != nil {
		return err
	}
	if err := extractor.Extract(f, scratch); err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}
	if archiveType == extract.ArchiveTypeRaw {
		if err := os.Rename(filepath.Join(scratch, filepath.Base(scratch)), filepath.Join(scratch, b.binName())); err != nil {
			return fmt.Errorf("name raw binary: %w", err)
		}
	}

	if err := os.RemoveAll(installDir); err != nil {
		return fmt.Errorf("clear install dir: %w", err)
	}
	return os.Rename(scratch, installDir)
}

func (b *Backend) ExecEnv(_ backend.ResolvedVersion) (map[string]string, error) {
	return nil, nil
}

func (b *Backend) Which(tv backend.ResolvedVersion, binName string) (string, bool) {
	if binName == "" {
		binName = b.binName()
	}
	candidate := filepath.Join(b.versionDir(tv.Canonical), binName)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, true
	}
	return "", false
}

func (b *Backend) Plugin() backend.Plugin { return nil }

func (b *Backend) IdiomaticFilenames() []string {
	return []string{"." + b.cfg.Short + "-version"}
}

func (b *Backend) Dependencies(_ bool) []backend.Identifier { return nil }

func (b *Backend) OutdatedInfo(ctx context.Context, tv backend.ResolvedVersion, bump backend.Bump) (*backend.OutdatedInfo, error) {
	remote, err := b.ListRemoteVersions(ctx)
	if err != nil {
		return nil, err
	}
	if len(remote) == 0 || remote[0] == tv.Canonical {
		return nil, nil
	}
	if bump == backend.BumpPatch && !strings.HasPrefix(remote[0], majorMinorPrefix(tv.Canonical)) {
		return nil, nil
	}
	return &backend.OutdatedInfo{Current: tv.Canonical, Latest: remote[0]}, nil
}

func majorMinorPrefix(v string) string {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return v
	}
	return parts[0] + "." + parts[1]
}
