// Package zig implements the reference download-verify-extract backend
// (C8): a signed-tarball distribution illustrating the full backend
// contract — remote listing, URL selection by version shape, minisign
// signature verification, strip-components extraction, and a bin/
// symlink layout. Grounded on the Zig plugin of the original
// multi-language source this module was distilled from, adapted onto
// the download/extract/checksum machinery the rest of this repo
// already uses for archive backends.
package zig

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jedisct1/go-minisign"

	"github.com/kagenomi/tvm/internal/backend"
	tvmerrors "github.com/kagenomi/tvm/internal/errors"
	"github.com/kagenomi/tvm/internal/github"
	"github.com/kagenomi/tvm/internal/installer/download"
	"github.com/kagenomi/tvm/internal/installer/extract"
	"github.com/kagenomi/tvm/internal/toolset"
)

const (
	shortName = "zig"
	repoOwner = "ziglang"
	repoName  = "zig"

	// masterIndexURL carries the nightly master build's version and
	// per-target tarball locations.
	masterIndexURL = "https://ziglang.org/download/index.json"
	// machIndexURL carries mach-nominated channel builds (e.g. the
	// mach-latest channel), mirrored off the main zig release cadence.
	machIndexURL = "https://machengine.org/zig/index.json"
	// machMirrorBase is the tarball host for dev builds and mach
	// channel builds alike.
	machMirrorBase = "https://pkg.machengine.org/zig/"

	idiomaticFilename = ".zig-version"

	// minisignPublicKey is ziglang.org's published minisign public key,
	// used to verify every release, master, and mach-channel tarball.
	minisignPublicKey = "RWSGOq2NVecA2UPNdBUZykf1CCb147pkmdtYxgb3Ti+JO/wCYvhbAb/U"
)

// Backend implements backend.Backend for the zig toolchain.
type Backend struct {
	id          backend.Identifier
	installRoot string // <user data dir>/tools/zig
	cacheRoot   string // <user cache dir>/zig
	httpClient  *http.Client
	downloader  download.Downloader
}

// New constructs the zig backend rooted at installRoot (where each
// version gets its own subdirectory) and cacheRoot (download staging).
func New(installRoot, cacheRoot string) *Backend {
	return &Backend{
		id:          backend.NewIdentifier(shortName, shortName, backend.KindArchive),
		installRoot: installRoot,
		cacheRoot:   cacheRoot,
		httpClient:  github.NewHTTPClient(github.TokenFromEnv()),
		downloader:  download.NewDownloader(),
	}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) Identifier() backend.Identifier { return b.id }

// ListRemoteVersions fetches every zig release tag, deduped and sorted
// by semantic version with a stable lexicographic tiebreak.
func (b *Backend) ListRemoteVersions(ctx context.Context) ([]string, error) {
	versions, err := github.ListReleases(ctx, b.httpClient, repoOwner, repoName, "")
	if err != nil {
		return nil, fmt.Errorf("zig: list releases: %w", err)
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
		return nil, fmt.Errorf("zig: list installed versions: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	return versions, nil
}

// ListBinPaths returns the directory to prepend to PATH for an
// installed version: bin/ on unix (containing the zig symlink), the
// install root itself on Windows (zig.exe has no symlink there).
func (b *Backend) ListBinPaths(tv backend.ResolvedVersion) ([]string, error) {
	installDir := b.versionDir(tv.Canonical)
	if runtime.GOOS == "windows" {
		return []string{installDir}, nil
	}
	return []string{filepath.Join(installDir, "bin")}, nil
}

// InstallVersion downloads, verifies, and extracts a zig release. The
// install directory only becomes visible once the signature check and
// extraction both succeed; a verification failure leaves no trace at
// the canonical install path.
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
		ictx.Progress.SetMessage(fmt.Sprintf("zig %s: resolving download URL", tv.Canonical))
	}
	archiveURL, err := b.resolveDownloadURL(ctx, tv.Canonical)
	if err != nil {
		return tv, tvmerrors.NewResolutionFailedError(shortName, tv.Canonical, err)
	}

	stageDir := filepath.Join(b.cacheRoot, shortName)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return tv, tvmerrors.NewDownloadError(shortName, archiveURL, err)
	}
	archivePath := filepath.Join(stageDir, filepath.Base(archiveURL))

	if ictx.Progress != nil {
		ictx.Progress.SetMessage(fmt.Sprintf("zig %s: downloading %s", tv.Canonical, archiveURL))
	}
	if _, err := b.downloader.Download(ctx, archiveURL, archivePath); err != nil {
		return tv, tvmerrors.NewDownloadError(shortName, archiveURL, err)
	}
	defer os.Remove(archivePath)

	if ictx.Progress != nil {
		ictx.Progress.SetMessage(fmt.Sprintf("zig %s: verifying signature", tv.Canonical))
	}
	if err := b.verifyArchive(ctx, archiveURL, archivePath); err != nil {
		return tv, tvmerrors.NewVerificationError(shortName, tv.Canonical, err)
	}

	if ictx.Progress != nil {
		ictx.Progress.SetMessage(fmt.Sprintf("zig %s: extracting", tv.Canonical))
	}
	if err := b.extractVersioned(archivePath, installDir); err != nil {
		return tv, tvmerrors.NewExtractionError(shortName, tv.Canonical, err)
	}

	if runtime.GOOS != "windows" {
		if err := ensureBinSymlink(installDir); err != nil {
			os.RemoveAll(installDir)
			return tv, tvmerrors.NewExtractionError(shortName, tv.Canonical, err)
		}
	}

	if ictx.Progress != nil {
		ictx.Progress.SetMessage(fmt.Sprintf("zig %s: verifying install", tv.Canonical))
	}
	if err := b.verifyInstalled(ctx, installDir); err != nil {
		os.RemoveAll(installDir)
		return tv, tvmerrors.NewPostInstallVerifyError(shortName, tv.Canonical, err)
	}

	tv.InstallDir = installDir
	tv.DownloadDir = stageDir
	return tv, nil
}

// ExecEnv reports no additional env vars; zig needs only PATH.
func (b *Backend) ExecEnv(_ backend.ResolvedVersion) (map[string]string, error) {
	return nil, nil
}

// Which locates the zig binary (or another binary shipped alongside
// it, though zig ships none) within an installed version.
func (b *Backend) Which(tv backend.ResolvedVersion, binName string) (string, bool) {
	installDir := b.versionDir(tv.Canonical)
	candidate := filepath.Join(installDir, binName)
	if runtime.GOOS != "windows" {
		candidate = filepath.Join(installDir, "bin", binName)
	}
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, true
	}
	return "", false
}

// Plugin returns nil: the reference backend needs no bootstrap step.
func (b *Backend) Plugin() backend.Plugin { return nil }

func (b *Backend) IdiomaticFilenames() []string { return []string{idiomaticFilename} }

// Dependencies returns nil: zig has no backend-level dependencies.
func (b *Backend) Dependencies(_ bool) []backend.Identifier { return nil }

// OutdatedInfo reports the greatest remote version satisfying bump, if
// newer than tv.Canonical.
func (b *Backend) OutdatedInfo(ctx context.Context, tv backend.ResolvedVersion, bump backend.Bump) (*backend.OutdatedInfo, error) {
	remote, err := b.ListRemoteVersions(ctx)
	if err != nil {
		return nil, err
	}
	latest, ok := greatestSatisfyingBump(remote, tv.Canonical, bump)
	if !ok {
		return nil, nil
	}
	return &backend.OutdatedInfo{Current: tv.Canonical, Latest: latest}, nil
}

func (b *Backend) versionDir(canonical string) string {
	return filepath.Join(b.installRoot, canonical)
}

// resolveDownloadURL discriminates on the requested version the same
// way the original reference implementation does:
//   - "ref:master" resolves the master index JSON to a dev version and
//     builds the ziglang.org/builds/ URL.
//   - any other "ref:<channel>" resolves the mach channel index JSON
//     and builds a mirror URL on the mach host.
//   - a bare dev-build version string (n.n.n-dev.n+hex) builds a mirror
//     URL on the mach host directly, without an index lookup.
//   - anything else is a tagged release, built from the download URL
//     including the version in both path and filename.
func (b *Backend) resolveDownloadURL(ctx context.Context, canonical string) (string, error) {
	platform := osName()
	arch := archName()

	switch {
	case canonical == "ref:master":
		version, err := fetchIndexVersion(ctx, b.httpClient, masterIndexURL, "master")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("https://ziglang.org/builds/zig-%s-%s-%s.tar.xz", platform, arch, version), nil

	case strings.HasPrefix(canonical, "ref:"):
		channel := strings.TrimPrefix(canonical, "ref:")
		version, err := fetchIndexVersion(ctx, b.httpClient, machIndexURL, channel)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%szig-%s-%s-%s.tar.xz", machMirrorBase, platform, arch, version), nil

	case toolset.IsDevBuild(canonical):
		return fmt.Sprintf("%szig-%s-%s-%s.tar.xz", machMirrorBase, platform, arch, canonical), nil

	default:
		return fmt.Sprintf("https://ziglang.org/download/%s/zig-%s-%s-%s.tar.xz", canonical, platform, arch, canonical), nil
	}
}

// indexEntry is the subset of a zig/mach index.json entry this backend
// reads: just the resolved version string for the named channel.
type indexEntry struct {
	Version string `json:"version"`
}

func fetchIndexVersion(ctx context.Context, client *http.Client, indexURL, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch index %s: %w", indexURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch index %s: HTTP %d", indexURL, resp.StatusCode)
	}

	var index map[string]indexEntry
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return "", fmt.Errorf("decode index %s: %w", indexURL, err)
	}
	entry, ok := index[key]
	if !ok || entry.Version == "" {
		return "", fmt.Errorf("index %s has no entry for %q", indexURL, key)
	}
	return entry.Version, nil
}

// verifyArchive fetches the companion .minisig signature and verifies
// it against the downloaded archive bytes. Any failure — fetch,
// decode, or signature mismatch — is treated identically: fatal.
func (b *Backend) verifyArchive(ctx context.Context, archiveURL, archivePath string) error {
	sigText, err := b.fetchSignature(ctx, archiveURL+".minisig")
	if err != nil {
		return err
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("read archive for verification: %w", err)
	}

	pubKey, err := minisign.NewPublicKey(minisignPublicKey)
	if err != nil {
		return fmt.Errorf("parse minisign public key: %w", err)
	}
	sig, err := minisign.DecodeSignature(sigText)
	if err != nil {
		return fmt.Errorf("decode minisign signature: %w", err)
	}
	ok, err := pubKey.Verify(data, sig)
	if err != nil {
		return fmt.Errorf("minisign signature verification: %w", err)
	}
	if !ok {
		return fmt.Errorf("minisign signature verification failed")
	}
	return nil
}

func (b *Backend) fetchSignature(ctx context.Context, sigURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sigURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch signature %s: %w", sigURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch signature %s: HTTP %d", sigURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read signature %s: %w", sigURL, err)
	}
	return string(body), nil
}

// extractVersioned extracts archivePath into a scratch directory under
// the zig cache directory, strips the archive's single top-level
// directory (the reference tarball's strip_components=1 convention),
// then publishes the result by renaming that top-level directory onto
// installDir. The
// rename is the publish barrier: installDir never exists half-written.
func (b *Backend) extractVersioned(archivePath, installDir string) error {
	stageDir := filepath.Join(b.cacheRoot, shortName)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return fmt.Errorf("create stage dir: %w", err)
	}
	scratch, err := os.MkdirTemp(stageDir, "extract-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	extractor, err := extract.NewExtractor(extract.ArchiveTypeTarXz)
	if err != nil {
		return err
	}
	if err := extractor.Extract(f, scratch); err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}

	top, err := soleTopLevelDir(scratch)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(installDir); err != nil {
		return fmt.Errorf("clear install dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(installDir), 0755); err != nil {
		return fmt.Errorf("create install parent dir: %w", err)
	}
	if err := os.Rename(top, installDir); err != nil {
		return fmt.Errorf("publish install dir: %w", err)
	}
	return nil
}

// soleTopLevelDir returns the single top-level directory entry of dir,
// the strip_components=1 equivalent for an already-extracted tree.
func soleTopLevelDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read extracted tree: %w", err)
	}
	var dirs []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		}
	}
	if len(dirs) != 1 {
		return "", fmt.Errorf("expected exactly one top-level directory in archive, found %d", len(dirs))
	}
	return filepath.Join(dir, dirs[0].Name()), nil
}

// ensureBinSymlink creates <installDir>/bin/zig -> ../zig on unix.
func ensureBinSymlink(installDir string) error {
	binDir := filepath.Join(installDir, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return fmt.Errorf("create bin dir: %w", err)
	}
	link := filepath.Join(binDir, "zig")
	if err := os.Symlink(filepath.Join("..", "zig"), link); err != nil {
		return fmt.Errorf("symlink bin/zig: %w", err)
	}
	return nil
}

// verifyInstalled runs the freshly installed binary with "version" and
// treats a non-zero exit as fatal.
func (b *Backend) verifyInstalled(ctx context.Context, installDir string) error {
	zigBin := filepath.Join(installDir, "zig")
	if runtime.GOOS == "windows" {
		zigBin = filepath.Join(installDir, "zig.exe")
	}
	cmd := exec.CommandContext(ctx, zigBin, "version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("zig version check failed: %w", err)
	}
	return nil
}

// osName maps runtime.GOOS to zig's release-tarball OS discriminator.
func osName() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	case "linux":
		return "linux"
	case "freebsd":
		return "freebsd"
	default:
		return runtime.GOOS
	}
}

// archName maps runtime.GOARCH to zig's release-tarball arch discriminator.
func archName() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "arm":
		return "armv7a"
	case "riscv64":
		return "riscv64"
	default:
		return runtime.GOARCH
	}
}

// greatestSatisfyingBump finds the greatest version in remote strictly
// newer than current, constrained by bump (patch/minor/major widen the
// search; an empty bump behaves like major).
func greatestSatisfyingBump(remote []string, current string, bump backend.Bump) (string, bool) {
	sorted := toolset.DedupeSortVersions(remote) // descending
	for _, v := range sorted {
		if v == current {
			break
		}
		if versionSatisfiesBump(current, v, bump) {
			return v, true
		}
	}
	return "", false
}

func versionSatisfiesBump(current, candidate string, bump backend.Bump) bool {
	cv, err1 := semverParse(current)
	dv, err2 := semverParse(candidate)
	if err1 != nil || err2 != nil {
		return candidate != current
	}
	switch bump {
	case backend.BumpPatch:
		return dv.major == cv.major && dv.minor == cv.minor && dv.patch > cv.patch
	case backend.BumpMinor:
		return dv.major == cv.major && (dv.minor > cv.minor || (dv.minor == cv.minor && dv.patch > cv.patch))
	default: // BumpMajor or unset: any greater version
		return dv.major > cv.major ||
			(dv.major == cv.major && dv.minor > cv.minor) ||
			(dv.major == cv.major && dv.minor == cv.minor && dv.patch > cv.patch)
	}
}

type simpleVersion struct{ major, minor, patch int }

func semverParse(s string) (simpleVersion, error) {
	var v simpleVersion
	core, _, _ := strings.Cut(s, "-")
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return v, fmt.Errorf("not a semver-shaped version: %q", s)
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &v.major); err != nil {
		return v, err
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &v.minor); err != nil {
		return v, err
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &v.patch); err != nil {
		return v, err
	}
	return v, nil
}
