// Package toolset implements the Toolset data structure: a layered,
// order-preserving merge of tool-version requests from one or more
// config sources, and the resolution/installation surface built on top
// of it, following original_source/src/toolset/mod.rs's Toolset
// (IndexMap-backed, JoinSet-resolved) for the semantics left implicit
// elsewhere.
package toolset

import (
	"context"
	"fmt"
	"sync"

	"github.com/kagenomi/tvm/internal/backend"
	tvmerrors "github.com/kagenomi/tvm/internal/errors"
)

// Toolset is an ordered mapping from backend identifier to VersionList,
// with an associated top-level source and a lazily-initialized template
// context (see envcompose for the template evaluation itself).
//
// Invariants:
//   - every VersionList's ID matches its map key;
//   - insertion order is PATH order: earlier entries win;
//   - a disabled backend (unsupported OS, or excluded by policy) is
//     never present.
type Toolset struct {
	order  []string // Identifier.Full, insertion order
	lists  map[string]*VersionList
	Source Source

	registry backend.Registry
	disabled func(backend.Identifier) bool

	ctxOnce sync.Once
	ctxVal  map[string]any
}

// New builds an empty Toolset backed by reg for identifier -> backend
// lookups. disabled, if non-nil, reports whether a BA should never be
// present (OS unsupported, or excluded by enable/disable policy).
func New(reg backend.Registry, disabled func(backend.Identifier) bool) *Toolset {
	if disabled == nil {
		disabled = func(backend.Identifier) bool { return false }
	}
	return &Toolset{
		lists:    make(map[string]*VersionList),
		registry: reg,
		disabled: disabled,
	}
}

// AddVersion inserts a request into the Toolset. A disabled BA is
// silently dropped. Insertion order is
// preserved: a BA seen for the first time is appended at the end of the
// iteration order.
func (t *Toolset) AddVersion(req Request) {
	id := req.Identifier()
	if t.disabled(id) {
		return
	}
	key := id.Full
	list, ok := t.lists[key]
	if !ok {
		list = NewVersionList(id)
		t.lists[key] = list
		t.order = append(t.order, key)
	}
	list.Add(req)
}

// Keys returns the BA keys in iteration (PATH precedence) order.
func (t *Toolset) Keys() []backend.Identifier {
	out := make([]backend.Identifier, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.lists[k].ID)
	}
	return out
}

// Get returns the VersionList for id, if present.
func (t *Toolset) Get(id backend.Identifier) (*VersionList, bool) {
	l, ok := t.lists[id.Full]
	return l, ok
}

// Merge produces a Toolset whose BA key set is keys(self) ∪ keys(other).
// For BAs present in both, other's list replaces self's (the
// later-merged source wins); self's entries for BAs absent from other
// are kept as-is. Disabled BAs are dropped post-merge. The resulting
// top-level Source becomes other.Source.
func (t *Toolset) Merge(other *Toolset) *Toolset {
	out := New(t.registry, t.disabled)
	out.Source = other.Source

	for _, k := range t.order {
		if out.disabled(t.lists[k].ID) {
			continue
		}
		out.order = append(out.order, k)
		out.lists[k] = t.lists[k].Clone()
	}
	for _, k := range other.order {
		if out.disabled(other.lists[k].ID) {
			continue
		}
		if _, exists := out.lists[k]; !exists {
			out.order = append(out.order, k)
		}
		out.lists[k] = other.lists[k].Clone()
	}
	return out
}

// resolveResult pairs a resolved VersionList with its original position
// so results can be reinserted in Toolset order after parallel
// resolution, preserving ordering guarantees.
type resolveResult struct {
	index int
	key   string
	list  *VersionList
	err   error
}

// Resolve parallelizes per-BA resolution with no bound on outstanding
// tasks (resolution is I/O-light network-metadata work; backends are
// expected to cache). Results are reinserted in the original BA order
// so Toolset iteration order — and therefore PATH/env precedence — is
// unchanged.
func (t *Toolset) Resolve(ctx context.Context, opts ResolveOpts) error {
	results := make(chan resolveResult, len(t.order))
	var wg sync.WaitGroup

	for i, k := range t.order {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			list := t.lists[key]
			b, ok := t.registry.Lookup(list.ID.Short)
			if !ok {
				results <- resolveResult{index: i, key: key, err: tvmerrors.NewMissingDependencyError(list.ID.Full, []string{list.ID.Short})}
				return
			}
			resolved := list.Clone()
			resolved.Versions = make([]Version, 0, len(resolved.Requests))
			for _, req := range resolved.Requests {
				v, err := Resolve(ctx, b, req, opts)
				if err != nil {
					results <- resolveResult{index: i, key: key, err: err}
					return
				}
				resolved.Versions = append(resolved.Versions, v)
			}
			results <- resolveResult{index: i, key: key, list: resolved}
		}(i, k)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	byIndex := make([]resolveResult, len(t.order))
	for r := range results {
		byIndex[r.index] = r
	}

	for _, r := range byIndex {
		if r.err != nil {
			return fmt.Errorf("toolset: resolve %s: %w", r.key, r.err)
		}
		t.lists[r.key] = r.list
	}
	return nil
}

// ListMissingVersions returns, for every BA, the requests whose resolved
// version has no matching installed version. When missingArgsOnly is
// true only requests whose Source is SourceArg are included (§4.5
// option table).
func (t *Toolset) ListMissingVersions(missingArgsOnly bool) []Version {
	var missing []Version
	for _, k := range t.order {
		list := t.lists[k]
		b, ok := t.registry.Lookup(list.ID.Short)
		if !ok {
			continue
		}
		installed, err := b.ListInstalledVersions()
		if err != nil {
			installed = nil
		}
		installedSet := make(map[string]bool, len(installed))
		for _, v := range installed {
			installedSet[v] = true
		}
		for _, v := range list.Versions {
			if IsSystem(v.Request) {
				continue
			}
			if _, ok := v.Request.(PathRequest); ok {
				continue
			}
			if missingArgsOnly && v.Request.Source() != SourceArg {
				continue
			}
			if !installedSet[v.Canonical] {
				missing = append(missing, v)
			}
		}
	}
	return missing
}
