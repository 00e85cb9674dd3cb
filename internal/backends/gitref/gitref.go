// Package gitref implements a backend whose "versions" are git refs —
// tags, branches, or raw commit SHAs — resolved and checked out
// directly from a remote, rather than downloaded as a prebuilt archive.
// Remote listing and ref/commit checkout are delegated to internal/git;
// this package layers version-directory placement and backend.Backend
// conformance on top.
package gitref

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/kagenomi/tvm/internal/backend"
	tvmerrors "github.com/kagenomi/tvm/internal/errors"
	tvmgit "github.com/kagenomi/tvm/internal/git"
)

// Config describes a single tool resolved against refs of a remote
// repository.
type Config struct {
	Short     string
	RemoteURL string
	// BinSubdir is a path, relative to the checkout root, where the
	// tool's binaries live (e.g. "bin"). Empty means the checkout
	// root itself.
	BinSubdir string
}

// Backend implements backend.Backend by cloning a specific ref of a
// git remote into a version-named checkout directory.
type Backend struct {
	cfg         Config
	id          backend.Identifier
	installRoot string
	cacheRoot   string
}

// New constructs the git-ref backend for cfg.
func New(cfg Config, installRoot, cacheRoot string) *Backend {
	return &Backend{
		cfg:         cfg,
		id:          backend.NewIdentifier(cfg.Short, cfg.Short, backend.KindGitRef),
		installRoot: installRoot,
		cacheRoot:   cacheRoot,
	}
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) Identifier() backend.Identifier { return b.id }

// ListRemoteVersions lists tag refs from the remote, newest-looking
// first (lexicographic descending, since git tags rarely follow
// strict semver across all tools using this backend).
func (b *Backend) ListRemoteVersions(ctx context.Context) ([]string, error) {
	refs, err := b.listRemoteRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("gitref(%s): list remote refs: %w", b.cfg.Short, err)
	}
	var tags []string
	for _, ref := range refs {
		if ref.Name().IsTag() {
			tags = append(tags, ref.Name().Short())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(tags)))
	return tags, nil
}

func (b *Backend) listRemoteRefs(_ context.Context) ([]*plumbing.Reference, error) {
	return tvmgit.ListRemoteRefs(b.cfg.RemoteURL)
}

// ListBranches lists branch refs from the remote, for callers that
// need to resolve a version request against a branch name rather than
// a tag (e.g. "ref:main").
func (b *Backend) ListBranches(ctx context.Context) ([]string, error) {
	refs, err := b.listRemoteRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("gitref(%s): list remote branches: %w", b.cfg.Short, err)
	}
	var branches []string
	for _, ref := range refs {
		if ref.Name().IsBranch() {
			branches = append(branches, ref.Name().Short())
		}
	}
	sort.Strings(branches)
	return branches, nil
}

func (b *Backend) ListInstalledVersions() ([]string, error) {
	entries, err := os.ReadDir(b.installRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gitref(%s): list installed versions: %w", b.cfg.Short, err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	return versions, nil
}

func (b *Backend) versionDir(canonical string) string {
	return filepath.Join(b.installRoot, canonical)
}

func (b *Backend) ListBinPaths(tv backend.ResolvedVersion) ([]string, error) {
	dir := b.versionDir(tv.Canonical)
	if b.cfg.BinSubdir != "" {
		dir = filepath.Join(dir, b.cfg.BinSubdir)
	}
	return []string{dir}, nil
}

// InstallVersion clones the remote at the ref named by tv.Canonical
// (a tag, branch, or raw commit SHA — distinguished by trying a direct
// reference checkout first, then falling back to a full clone plus
// hard reset for a bare SHA) into the canonical install directory.
func (b *Backend) InstallVersion(ictx backend.InstallContext, tv backend.ResolvedVersion) (backend.ResolvedVersion, error) {
	installDir := b.versionDir(tv.Canonical)

	if !ictx.Force {
		if info, err := os.Stat(installDir); err == nil && info.IsDir() {
			tv.InstallDir = installDir
			return tv, nil
		}
	}

	scratch, err := os.MkdirTemp(b.cacheRoot, "gitref-checkout-*")
	if err != nil {
		return tv, tvmerrors.NewInstallError(b.cfg.Short, tv.Canonical, fmt.Errorf("create scratch checkout dir: %w", err))
	}
	defer os.RemoveAll(scratch)

	if ictx.Progress != nil {
		ictx.Progress.SetMessage(fmt.Sprintf("gitref %s: cloning %s at %s", b.cfg.Short, b.cfg.RemoteURL, tv.Canonical))
	}
	if err := tvmgit.CloneRefOrCommit(ictx.Context, b.cfg.RemoteURL, scratch, tv.Canonical); err != nil {
		return tv, tvmerrors.NewInstallError(b.cfg.Short, "checkout "+tv.Canonical, err)
	}

	if err := os.RemoveAll(installDir); err != nil {
		return tv, tvmerrors.NewInstallError(b.cfg.Short, "clear install dir", err)
	}
	if err := os.MkdirAll(filepath.Dir(installDir), 0755); err != nil {
		return tv, tvmerrors.NewInstallError(b.cfg.Short, "create install parent dir", err)
	}
	if err := os.Rename(scratch, installDir); err != nil {
		return tv, tvmerrors.NewInstallError(b.cfg.Short, "publish checkout", err)
	}

	tv.InstallDir = installDir
	return tv, nil
}

func (b *Backend) ExecEnv(_ backend.ResolvedVersion) (map[string]string, error) {
	return nil, nil
}

func (b *Backend) Which(tv backend.ResolvedVersion, binName string) (string, bool) {
	paths, err := b.ListBinPaths(tv)
	if err != nil || len(paths) == 0 {
		return "", false
	}
	candidate := filepath.Join(paths[0], binName)
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

// OutdatedInfo reports the remote's newest tag if it differs from
// tv.Canonical. Bump constraints don't apply to ref-based versioning,
// so bump is ignored beyond being accepted for interface conformance.
func (b *Backend) OutdatedInfo(ctx context.Context, tv backend.ResolvedVersion, _ backend.Bump) (*backend.OutdatedInfo, error) {
	tags, err := b.ListRemoteVersions(ctx)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 || tags[0] == tv.Canonical {
		return nil, nil
	}
	return &backend.OutdatedInfo{Current: tv.Canonical, Latest: tags[0]}, nil
}
