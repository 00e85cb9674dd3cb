package main

import (
	"path/filepath"

	"github.com/kagenomi/tvm/internal/backend"
	"github.com/kagenomi/tvm/internal/backends/aqua"
	"github.com/kagenomi/tvm/internal/backends/generic"
	"github.com/kagenomi/tvm/internal/backends/gitref"
	"github.com/kagenomi/tvm/internal/backends/zig"
	"github.com/kagenomi/tvm/internal/checksum"
	registryaqua "github.com/kagenomi/tvm/internal/registry/aqua"
	"github.com/kagenomi/tvm/internal/state"
)

// registryRefFromState reads the aqua-registry ref that
// registryaqua.SyncRegistry last recorded in the install-state store.
// It returns "" (letting the backend fall back to its fixed default)
// whenever the store can't be opened or no sync has run yet.
func registryRefFromState() registryaqua.RegistryRef {
	store, err := state.NewInstalledStore()
	if err != nil {
		return ""
	}
	st, err := store.LoadReadOnly()
	if err != nil || st.Registry == nil || st.Registry.Aqua == nil {
		return ""
	}
	return registryaqua.RegistryRef(st.Registry.Aqua.Ref)
}

// staticRegistry is a fixed backend.Registry built once at startup from
// the backends this binary knows how to construct. A real plugin
// system would discover these dynamically; this registry is a simple
// short-name dispatch table over backend.Backend lookups.
type staticRegistry struct {
	byShort map[string]backend.Backend
}

func (r *staticRegistry) Lookup(name string) (backend.Backend, bool) {
	b, ok := r.byShort[name]
	return b, ok
}

// buildRegistry wires every known backend against the given install
// and cache roots.
func buildRegistry(installRoot, cacheRoot string) *staticRegistry {
	toolRoot := func(short string) string { return filepath.Join(installRoot, short) }
	toolCache := func(short string) string { return filepath.Join(cacheRoot, short) }

	reg := &staticRegistry{byShort: map[string]backend.Backend{}}

	zigBackend := zig.New(toolRoot("zig"), toolCache("zig"))
	reg.byShort[zigBackend.Identifier().Short] = zigBackend

	ripgrep := generic.New(generic.Config{
		Short:     "ripgrep",
		RepoOwner: "BurntSushi",
		RepoName:  "ripgrep",
		BuildURL: func(canonical string) (string, *checksum.Spec) {
			url := "https://github.com/BurntSushi/ripgrep/releases/download/" +
				canonical + "/ripgrep-" + canonical + "-x86_64-unknown-linux-musl.tar.gz"
			return url, &checksum.Spec{URL: url + ".sha256", FilePattern: filepath.Base(url)}
		},
		BinName: "rg",
	}, toolRoot("ripgrep"), toolCache("ripgrep"))
	reg.byShort[ripgrep.Identifier().Short] = ripgrep

	neovim := gitref.New(gitref.Config{
		Short:     "neovim",
		RemoteURL: "https://github.com/neovim/neovim.git",
		BinSubdir: "build/bin",
	}, toolRoot("neovim"), toolCache("neovim"))
	reg.byShort[neovim.Identifier().Short] = neovim

	// registryRefFromState reads whatever ref the last SyncRegistry run
	// published to the install-state store, falling back to the
	// backend's own fixed default until the first sync completes.
	ghCLI := aqua.New("cli/cli", toolRoot("gh"), toolCache("gh"), registryRefFromState)
	reg.byShort[ghCLI.Identifier().Short] = ghCLI

	return reg
}
