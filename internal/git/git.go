package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Repository represents a git repository with its metadata.
type Repository struct {
	// Owner is the repository owner (e.g., "aquaproj" for github.com/aquaproj/aqua-registry)
	Owner string
	// Name is the repository name (e.g., "aqua-registry")
	Name string
	// Host is the git host (default: "github.com")
	Host string
}

// NewRepository creates a new Repository with the given owner and name.
// Host defaults to "github.com".
func NewRepository(owner, name string) *Repository {
	return &Repository{
		Owner: owner,
		Name:  name,
		Host:  "github.com",
	}
}

// URL returns the HTTPS clone URL for the repository.
func (r *Repository) URL() string {
	host := r.Host
	if host == "" {
		host = "github.com"
	}
	return fmt.Sprintf("https://%s/%s/%s.git", host, r.Owner, r.Name)
}

// CloneOptions configures clone behavior.
type CloneOptions struct {
	// Branch to checkout (default: default branch)
	Branch string
	// Depth for shallow clone (0 = full clone)
	Depth int
}

// Clone clones the repository to destPath.
func (r *Repository) Clone(ctx context.Context, destPath string, opts *CloneOptions) error {
	return CloneURL(ctx, r.URL(), destPath, opts)
}

// Pull pulls latest changes for the repository at repoPath.
func (r *Repository) Pull(ctx context.Context, repoPath string) error {
	return PullPath(ctx, repoPath)
}

// CloneOrPull clones the repository if it doesn't exist at destPath, or pulls if it does.
func (r *Repository) CloneOrPull(ctx context.Context, destPath string, opts *CloneOptions) error {
	return CloneOrPullURL(ctx, r.URL(), destPath, opts)
}

// CloneURL clones a git repository from url to destPath.
func CloneURL(ctx context.Context, url, destPath string, opts *CloneOptions) error {
	slog.Debug("cloning repository", "url", url, "dest", destPath)

	cloneOpts := &git.CloneOptions{
		URL: url,
	}

	if opts != nil {
		if opts.Depth > 0 {
			cloneOpts.Depth = opts.Depth
			cloneOpts.SingleBranch = true
		}
		if opts.Branch != "" {
			cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
			cloneOpts.SingleBranch = true
		}
	}

	_, err := git.PlainCloneContext(ctx, destPath, false, cloneOpts)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryAlreadyExists) {
			slog.Debug("repository already exists", "path", destPath)
			return fmt.Errorf("repository already exists at %s: %w", destPath, err)
		}
		return fmt.Errorf("failed to clone repository: %w", err)
	}

	slog.Debug("clone completed", "url", url, "path", destPath)
	return nil
}

// PullPath pulls latest changes for the repository at repoPath.
func PullPath(ctx context.Context, repoPath string) error {
	slog.Debug("pulling repository", "path", repoPath)

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	err = w.PullContext(ctx, &git.PullOptions{})
	if err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			slog.Debug("repository already up-to-date", "path", repoPath)
			return nil
		}
		return fmt.Errorf("failed to pull: %w", err)
	}

	slog.Debug("pull completed", "path", repoPath)
	return nil
}

// CloneOrPullURL clones a git repository if it doesn't exist at destPath, or pulls if it does.
func CloneOrPullURL(ctx context.Context, url, destPath string, opts *CloneOptions) error {
	if Exists(destPath) {
		return PullPath(ctx, destPath)
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	return CloneURL(ctx, url, destPath, opts)
}

// Exists checks if a git repository exists at the given path.
func Exists(path string) bool {
	_, err := git.PlainOpen(path)
	return err == nil
}

// ListRemoteRefs lists every ref (tags and branches) advertised by a
// remote without cloning it, backed by an in-memory remote handle.
func ListRemoteRefs(url string) ([]*plumbing.Reference, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	refs, err := remote.List(&git.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list remote refs for %s: %w", url, err)
	}
	return refs, nil
}

// IsUnknownRefError reports whether err indicates the requested ref
// (tag or branch) does not exist on the remote, as opposed to a
// transport or auth failure.
func IsUnknownRefError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "reference not found") ||
		strings.Contains(msg, "couldn't find remote ref")
}

// CloneRefOrCommit clones url at the named ref into dir. It first tries
// ref as a tag (shallow, single-branch); if the remote has no such tag
// it falls back to a full clone followed by a hard checkout of ref as a
// raw commit hash, which covers bare-SHA version requests that a
// shallow tag clone cannot resolve.
func CloneRefOrCommit(ctx context.Context, url, dir, ref string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           url,
		ReferenceName: plumbing.NewTagReferenceName(ref),
		SingleBranch:  true,
		Depth:         1,
	})
	if err == nil {
		return nil
	}
	if !IsUnknownRefError(err) {
		return fmt.Errorf("clone tag %s: %w", ref, err)
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url})
	if err != nil {
		return fmt.Errorf("clone repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(ref), Force: true}); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}
