// Package installer implements the bounded-concurrency, dependency-aware
// parallel installer: per-backend plugin bootstrap, per-wave scheduling
// via internal/scheduler, semaphore-gated concurrent install, and
// ordered result reporting, with state flushed after every wave.
package installer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kagenomi/tvm/internal/backend"
	tvmerrors "github.com/kagenomi/tvm/internal/errors"
	"github.com/kagenomi/tvm/internal/log"
	"github.com/kagenomi/tvm/internal/scheduler"
	"github.com/kagenomi/tvm/internal/state"
	"github.com/kagenomi/tvm/internal/toolset"
)

// Options controls how InstallAllVersions runs: concurrency, force
// reinstall, raw (serial, no progress) mode, and missing-args-only
// filtering.
type Options struct {
	Force                   bool
	Jobs                    int
	Raw                     bool
	MissingArgsOnly         bool
	AutoInstallDisableTools map[string]bool
	ResolveOptions          toolset.ResolveOpts
}

// normalizeJobs applies the "raw forces jobs=1" rule.
func (o Options) normalizeJobs() int {
	if o.Raw {
		return 1
	}
	if o.Jobs < 1 {
		return 1
	}
	return o.Jobs
}

// EventType classifies a progress event emitted during Apply.
type EventType string

const (
	EventWaveStart EventType = "wave_start"
	EventStart     EventType = "start"
	EventProgress  EventType = "progress"
	EventComplete  EventType = "complete"
	EventError     EventType = "error"
)

// Event is a single progress notification (EventType + payload) keyed
// by the tool identifier it concerns.
type Event struct {
	Type       EventType
	Identifier backend.Identifier
	Message    string
	Err        error
}

// EventHandler receives Events as Apply executes. A nil handler is a
// no-op sink.
type EventHandler func(Event)

// Registry resolves identifiers to backends and also carries plugin
// bootstrap lookups.
type Registry = backend.Registry

// Installer orchestrates InstallAllVersions over a toolset.Toolset using
// a scheduler.Wave sequence.
type Installer struct {
	registry     Registry
	eventHandler EventHandler
	cache        *state.Cache
	logs         *log.Store

	pluginLocks sync.Map // map[string]*sync.Mutex, keyed by Identifier.Full
}

// New builds an Installer. cache is the install-state advisory cache
// (internal/state.Cache); it is flushed after every wave.
func New(reg Registry, cache *state.Cache, handler EventHandler) *Installer {
	if handler == nil {
		handler = func(Event) {}
	}
	return &Installer{registry: reg, cache: cache, eventHandler: handler}
}

// SetLogStore attaches a per-run output log (internal/log.Store). When
// set, every install's output and failure is recorded and flushed to
// disk at the end of InstallAllVersions, so a failed install leaves a
// readable log file behind instead of only the wrapped error string.
func (in *Installer) SetLogStore(store *log.Store) {
	in.logs = store
}

func (in *Installer) emit(e Event) { in.eventHandler(e) }

func (in *Installer) pluginLock(id backend.Identifier) *sync.Mutex {
	v, _ := in.pluginLocks.LoadOrStore(id.Full, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// request is the per-wave unit the installer actually installs: a
// resolved toolset.Version plus its dependency set (needed to build
// scheduler.Node).
type request struct {
	version toolset.Version
	deps    []backend.Identifier
}

// InstallAllVersions is the top-level entry point.
// Empty input returns immediately with an empty slice and runs neither
// hook.
func (in *Installer) InstallAllVersions(ctx context.Context, ts *toolset.Toolset, versions []toolset.Version, opts Options, preHook, postHook func(context.Context) error) ([]toolset.Version, error) {
	if len(versions) == 0 {
		return []toolset.Version{}, nil
	}

	if in.logs != nil {
		defer func() {
			if err := in.logs.Flush(); err != nil {
				in.emit(Event{Type: EventError, Message: "failed to flush install logs: " + err.Error()})
			}
		}()
	}

	if preHook != nil {
		if err := preHook(ctx); err != nil {
			return nil, fmt.Errorf("installer: pre-install hook: %w", err)
		}
	}

	reqs := make([]request, 0, len(versions))
	for _, v := range versions {
		id := v.Identifier()
		if opts.AutoInstallDisableTools[id.Short] {
			continue
		}
		b, ok := in.registry.Lookup(id.Short)
		var deps []backend.Identifier
		if ok {
			deps = b.Dependencies(true)
		}
		reqs = append(reqs, request{version: v, deps: deps})
	}

	nodes := make([]scheduler.Node, 0, len(reqs))
	byID := make(map[string][]request, len(reqs))
	for _, r := range reqs {
		key := r.version.Identifier().Full
		if _, seen := byID[key]; !seen {
			nodes = append(nodes, scheduler.Node{ID: r.version.Identifier(), Dependencies: r.deps})
		}
		byID[key] = append(byID[key], r)
	}

	waves, err := scheduler.Schedule(nodes)
	if err != nil {
		return nil, err
	}

	// submission order, by identifier, to restore result order at the end
	submissionOrder := make([]string, 0, len(versions))
	for _, v := range versions {
		submissionOrder = append(submissionOrder, v.Identifier().Full)
	}

	results := make(map[string][]toolset.Version)
	var resultsMu sync.Mutex

	jobs := opts.normalizeJobs()

	for _, wave := range waves {
		in.emit(Event{Type: EventWaveStart, Message: fmt.Sprintf("%d backend group(s)", len(wave.Nodes))})

		if err := in.bootstrapPlugins(ctx, wave); err != nil {
			return nil, err
		}

		if err := in.executeWave(ctx, wave, byID, opts, jobs, &resultsMu, results); err != nil {
			return nil, err
		}

		if in.cache != nil {
			in.cache.Flush()
		}
	}

	if in.cache != nil {
		in.cache.Reset()
	}
	// Best-effort re-resolve after install; failures are logged, not fatal.
	if err := ts.Resolve(ctx, opts.ResolveOptions); err != nil {
		in.emit(Event{Type: EventError, Message: "post-install resolve (best-effort): " + err.Error()})
	}

	if postHook != nil {
		if err := postHook(ctx); err != nil {
			return nil, fmt.Errorf("installer: post-install hook: %w", err)
		}
	}

	out := make([]toolset.Version, 0, len(versions))
	for _, key := range submissionOrder {
		vs := results[key]
		if len(vs) == 0 {
			continue
		}
		out = append(out, vs[0])
		results[key] = vs[1:]
	}
	return out, nil
}

// bootstrapPlugins serializes plugin bootstrap per backend within a
// wave; a PluginNotInstalled failure is coerced to success so
// auto-install flows continue.
func (in *Installer) bootstrapPlugins(ctx context.Context, wave scheduler.Wave) error {
	var errs []error
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, node := range wave.Nodes {
		wg.Add(1)
		go func(id backend.Identifier) {
			defer wg.Done()
			lock := in.pluginLock(id)
			lock.Lock()
			defer lock.Unlock()

			b, ok := in.registry.Lookup(id.Short)
			if !ok {
				return
			}
			plugin := b.Plugin()
			if plugin == nil || plugin.IsInstalled() {
				return
			}
			if err := plugin.EnsureInstalled(ctx, noopProgress{}, false); err != nil {
				if tvmerrors.IsPluginNotInstalled(err) {
					return
				}
				mu.Lock()
				errs = append(errs, fmt.Errorf("bootstrap %s: %w", id.Full, err))
				mu.Unlock()
			}
		}(node.ID)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// executeWave acquires one semaphore permit per backend group (not per
// request) and installs every request for that group in sequence,
// enforcing one permit per backend group.
func (in *Installer) executeWave(
	ctx context.Context,
	wave scheduler.Wave,
	byID map[string][]request,
	opts Options,
	jobs int,
	resultsMu *sync.Mutex,
	results map[string][]toolset.Version,
) error {
	sem := semaphore.NewWeighted(int64(jobs))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, node := range wave.Nodes {
		key := node.ID.Full
		group := byID[key]
		if len(group) == 0 {
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(id backend.Identifier, group []request) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					errs = append(errs, tvmerrors.NewBackgroundTaskPanickedError(id.Full, r))
					mu.Unlock()
				}
			}()

			b, ok := in.registry.Lookup(id.Short)
			if !ok {
				mu.Lock()
				errs = append(errs, fmt.Errorf("no backend registered for %s", id.Full))
				mu.Unlock()
				return
			}

			installed := make([]toolset.Version, 0, len(group))
			for _, r := range group {
				v := r.version
				in.emit(Event{Type: EventStart, Identifier: id, Message: v.Canonical})

				if toolset.IsSystem(v.Request) {
					installed = append(installed, v)
					continue
				}
				if _, isPath := v.Request.(toolset.PathRequest); isPath {
					installed = append(installed, v)
					continue
				}

				if in.logs != nil {
					in.logs.RecordStart(id.Kind, id.Short, v.Canonical, "install", string(id.Kind))
				}

				ictx := backend.InstallContext{Context: ctx, Progress: eventProgress{in: in, id: id}, Force: opts.Force}
				resolved, err := b.InstallVersion(ictx, v.Paths)
				if err != nil {
					wrapped := fmt.Errorf("failed to install %s@%s: %w", id.Full, v.Canonical, err)
					in.emit(Event{Type: EventError, Identifier: id, Err: wrapped})
					if in.logs != nil {
						in.logs.RecordError(id.Kind, id.Short, wrapped)
					}
					mu.Lock()
					errs = append(errs, wrapped)
					mu.Unlock()
					return
				}
				if in.logs != nil {
					in.logs.RecordComplete(id.Kind, id.Short)
				}
				v.Paths = resolved
				in.emit(Event{Type: EventComplete, Identifier: id, Message: v.Canonical})
				installed = append(installed, v)
			}

			resultsMu.Lock()
			results[id.Full] = append(results[id.Full], installed...)
			resultsMu.Unlock()
		}(node.ID, group)
	}

	wg.Wait()
	return errors.Join(errs...)
}

type noopProgress struct{}

func (noopProgress) SetMessage(string) {}

type eventProgress struct {
	in *Installer
	id backend.Identifier
}

func (p eventProgress) SetMessage(msg string) {
	p.in.emit(Event{Type: EventProgress, Identifier: p.id, Message: msg})
	if p.in.logs != nil {
		p.in.logs.RecordOutput(p.id.Kind, p.id.Short, msg)
	}
}
