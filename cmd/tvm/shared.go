package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kagenomi/tvm/internal/backend"
	"github.com/kagenomi/tvm/internal/config"
	"github.com/kagenomi/tvm/internal/path"
	"github.com/kagenomi/tvm/internal/toolset"
)

const (
	configFileName       = "tvm.yaml"
	toolVersionsFileName = ".tool-versions"
)

// identifierLookup adapts a staticRegistry into a config.IdentifierLookup.
func identifierLookup(reg *staticRegistry) config.IdentifierLookup {
	return func(name string) (backend.Identifier, bool) {
		b, ok := reg.Lookup(name)
		if !ok {
			return backend.Identifier{}, false
		}
		return b.Identifier(), true
	}
}

// loadConfigFile finds tvm.yaml or .tool-versions in the working
// directory (tvm.yaml preferred) and loads it, or returns an empty
// Loaded value if neither is present — an empty config is a valid
// boundary case, not an error.
func loadConfigFile(reg *staticRegistry) (config.Loaded, error) {
	lookup := identifierLookup(reg)

	if _, err := os.Stat(configFileName); err == nil {
		return config.LoadYAMLFile(configFileName, lookup)
	}
	if _, err := os.Stat(toolVersionsFileName); err == nil {
		return config.LoadToolVersionsFile(toolVersionsFileName, lookup)
	}
	return config.Loaded{}, nil
}

// buildToolset loads the working-directory config into a fresh
// toolset.Toolset. It does not resolve the toolset and does not use
// opts; callers run Resolve on the result themselves.
func buildToolset(reg *staticRegistry, opts toolset.ResolveOpts) (*toolset.Toolset, config.Loaded, error) {
	loaded, err := loadConfigFile(reg)
	if err != nil {
		return nil, config.Loaded{}, err
	}

	ts := toolset.New(reg, nil)
	for _, req := range loaded.Requests {
		ts.AddVersion(req)
	}
	return ts, loaded, nil
}

// toolPaths returns the Paths used by this binary's install/cache
// roots, erroring loudly if they cannot be determined.
func toolPaths() (*path.Paths, error) {
	p, err := newPaths()
	if err != nil {
		return nil, err
	}
	if err := path.EnsureDir(p.UserDataDir()); err != nil {
		return nil, fmt.Errorf("ensure user data dir: %w", err)
	}
	if err := path.EnsureDir(p.UserCacheDir()); err != nil {
		return nil, fmt.Errorf("ensure user cache dir: %w", err)
	}
	return p, nil
}

func installRootFor(p *path.Paths) string {
	return filepath.Join(p.UserDataDir(), "tools")
}

func cacheRootFor(p *path.Paths) string {
	return p.UserCacheDir()
}
