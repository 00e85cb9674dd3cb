// Package backend defines the uniform contract every tool-install strategy
// implements: release-archive download, delegated package manager, or
// source build. The engine (internal/installer), scheduler, and toolset
// packages only ever talk to this interface.
package backend

import (
	"context"
	"runtime"
)

// Kind distinguishes the install strategy a backend implements.
type Kind string

const (
	KindArchive    Kind = "archive"    // download + verify + extract (e.g. zig)
	KindDelegated  Kind = "delegated"  // shells out to an external package manager (e.g. aqua)
	KindGitRef     Kind = "gitref"     // resolves against a git remote
	KindGeneric    Kind = "generic"    // checksum-verified download, no signature
)

// Identifier is the stable identity of a tool plus its backend type.
// Two Identifiers are equal iff their Full names agree.
type Identifier struct {
	// Short is the human-facing name, e.g. "zig", "node".
	Short string
	// Full is the canonical, possibly namespaced name, e.g. "cargo:cargo-binstall".
	// Equality is defined on this field alone.
	Full string
	// Kind is the backend strategy this identifier resolves to.
	Kind Kind
}

// NewIdentifier builds an Identifier whose Full name defaults to Short when
// no namespace prefix is supplied.
func NewIdentifier(short, full string, kind Kind) Identifier {
	if full == "" {
		full = short
	}
	return Identifier{Short: short, Full: full, Kind: kind}
}

// Equal reports whether two identifiers name the same backend-qualified tool.
func (id Identifier) Equal(other Identifier) bool {
	return id.Full == other.Full
}

func (id Identifier) String() string {
	return id.Full
}

// SupportsOS reports whether the backend is usable on the running OS. A
// backend without an explicit restriction supports every OS.
func (id Identifier) SupportsOS(supported ...string) bool {
	if len(supported) == 0 {
		return true
	}
	for _, s := range supported {
		if s == runtime.GOOS {
			return true
		}
	}
	return false
}

// Plugin is the optional subsystem a backend uses to support a new tool
// kind, distinct from the tool version itself and subject to its own
// install lifecycle.
type Plugin interface {
	IsInstalled() bool
	EnsureInstalled(ctx context.Context, progress ProgressReporter, force bool) error
}

// ProgressReporter is the minimal interface the installer calls into to
// surface human-readable progress. Absence of a TTY collapses this to
// log lines; see internal/progress.
type ProgressReporter interface {
	SetMessage(msg string)
}

// InstallContext carries the per-install collaborators a backend needs:
// the caller's context, a progress sink, and whether a fresh install was
// explicitly forced. It carries no view of the toolset the install is
// part of.
type InstallContext struct {
	Context  context.Context
	Progress ProgressReporter
	Force    bool
}

// OutdatedInfo reports a newer version matching a bump policy, when one
// exists. A nil return (with nil error) means "up to date" or "unknown."
type OutdatedInfo struct {
	Current string
	Latest  string
}

// Bump constrains how aggressively OutdatedInfo should look for a newer
// version: "patch", "minor", or "major" (mirrors semver bump semantics).
type Bump string

const (
	BumpPatch Bump = "patch"
	BumpMinor Bump = "minor"
	BumpMajor Bump = "major"
)

// ResolveOptions is forwarded, opaque, from request resolution into
// backend-specific version matching (e.g. allow-prereleases).
type ResolveOptions struct {
	AllowPrerelease bool
}

// Version and Options are defined in package toolset; Backend methods take
// and return toolset.Version/Options, but Backend itself must not import
// toolset to avoid a cycle (toolset holds a Backend reference obtained
// through a registry of identifier -> Backend). Hence the minimal
// ResolvedVersion shim below, which internal/toolset converts to/from its
// own Version type.

// ResolvedVersion is the backend-facing shape of a resolved tool version:
// enough to drive install/env/bin-path logic without importing toolset.
type ResolvedVersion struct {
	Identifier Identifier
	// Canonical is the fully resolved version string, e.g. "20.5.1" or
	// "ref:abcdef0".
	Canonical string
	// RequestedRaw is the raw string the request asked for (e.g. "latest",
	// "20", a ref value). Retained for diagnostics.
	RequestedRaw string
	// Options are the parsed ToolVersionOptions carried by the request.
	Options map[string]string
	// InstallDir, DownloadDir, CacheDir follow the backend's own install
	// root convention; populated by the backend on first touch.
	InstallDir  string
	DownloadDir string
	CacheDir    string
}

// Backend is the uniform per-tool interface. Every method that performs
// I/O takes a context so callers can cancel in-flight work; cancellation
// of a parent install cancels all in-flight backend calls.
type Backend interface {
	Identifier() Identifier

	// ListRemoteVersions returns available versions sorted by semantic
	// version (stable tiebreak on the raw string), duplicates removed.
	ListRemoteVersions(ctx context.Context) ([]string, error)

	// ListInstalledVersions derives installed versions from the on-disk
	// install root.
	ListInstalledVersions() ([]string, error)

	// ListBinPaths returns directories to prepend to PATH for an
	// installed version. Must succeed and return at least one directory
	// once a version is installed.
	ListBinPaths(tv ResolvedVersion) ([]string, error)

	// InstallVersion installs tv, idempotent on success. On failure it
	// must leave no half-installed directory visible at the canonical
	// install path.
	InstallVersion(ictx InstallContext, tv ResolvedVersion) (ResolvedVersion, error)

	// ExecEnv returns additional environment variables this tool version
	// contributes (e.g. GOROOT). Must never include PATH. Failures are
	// non-fatal; callers degrade to an empty map.
	ExecEnv(tv ResolvedVersion) (map[string]string, error)

	// Which locates a named binary within an installed version.
	Which(tv ResolvedVersion, binName string) (string, bool)

	// Plugin returns the optional plugin handle for this backend, or nil
	// if the backend needs no bootstrap step.
	Plugin() Plugin

	// IdiomaticFilenames lists per-project filenames that carry a bare
	// version string for this tool (e.g. ".zig-version").
	IdiomaticFilenames() []string

	// Dependencies returns identifiers that must be installed before this
	// one. When recursive is true, transitively expands dependencies of
	// dependencies.
	Dependencies(recursive bool) []Identifier

	// OutdatedInfo reports whether a newer version satisfying bump
	// exists. Best-effort: callers log and skip on error.
	OutdatedInfo(ctx context.Context, tv ResolvedVersion, bump Bump) (*OutdatedInfo, error)
}

// Registry resolves a short or namespaced tool name to its Backend. It is
// an external collaborator per the contract: tvm's core only consumes it.
type Registry interface {
	Lookup(name string) (Backend, bool)
}
