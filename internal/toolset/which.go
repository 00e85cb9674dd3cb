package toolset

import (
	"context"

	"github.com/kagenomi/tvm/internal/backend"
)

func backendBump(s string) backend.Bump {
	switch s {
	case "minor":
		return backend.BumpMinor
	case "major":
		return backend.BumpMajor
	default:
		return backend.BumpPatch
	}
}

// Which scans installed versions in Toolset order and returns the first
// backend/version providing a binary named binName. Grounded in
// original_source/src/toolset/mod.rs's which/which_bin.
func (t *Toolset) Which(binName string) (path string, ok bool) {
	for _, k := range t.order {
		list := t.lists[k]
		b, exists := t.registry.Lookup(list.ID.Short)
		if !exists {
			continue
		}
		for _, v := range list.Versions {
			if p, found := b.Which(v.Paths, binName); found {
				return p, true
			}
		}
	}
	return "", false
}

// WhichBin is an alias for Which kept for symmetry with mod.rs's
// which/which_bin split. Unlike which_bin it does not install a missing
// tool: it only searches versions already resolved in the Toolset.
func (t *Toolset) WhichBin(binName string) (string, bool) {
	return t.Which(binName)
}

// ListOutdated reports, per installed version, whether a newer version
// satisfying bump exists. Backend errors are non-fatal: they are
// recorded in the returned map's error slot and otherwise skipped,
// matching the best-effort policy in §7 for diagnostic checks.
func (t *Toolset) ListOutdated(ctx context.Context, bump string) map[string]*OutdatedResult {
	out := make(map[string]*OutdatedResult)
	for _, k := range t.order {
		list := t.lists[k]
		b, ok := t.registry.Lookup(list.ID.Short)
		if !ok {
			continue
		}
		for _, v := range list.Versions {
			if IsSystem(v.Request) {
				continue
			}
			info, err := b.OutdatedInfo(ctx, v.Paths, backendBump(bump))
			if err != nil {
				out[list.ID.Full] = &OutdatedResult{Err: err}
				continue
			}
			if info != nil {
				out[list.ID.Full] = &OutdatedResult{Current: info.Current, Latest: info.Latest}
			}
		}
	}
	return out
}

// OutdatedResult is one entry of ListOutdated's report.
type OutdatedResult struct {
	Current string
	Latest  string
	Err     error
}
