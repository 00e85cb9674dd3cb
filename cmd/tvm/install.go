package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kagenomi/tvm/internal/installer"
	"github.com/kagenomi/tvm/internal/log"
	"github.com/kagenomi/tvm/internal/progress"
	registryaqua "github.com/kagenomi/tvm/internal/registry/aqua"
	"github.com/kagenomi/tvm/internal/state"
	"github.com/kagenomi/tvm/internal/toolset"
)

// keepLogSessions bounds how many past install-log sessions are kept
// under the user log directory.
const keepLogSessions = 10

var (
	installForce           bool
	installJobs            int
	installRaw             bool
	installMissingArgsOnly bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Resolve and install every tool version requested by the working directory's config",
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installForce, "force", false, "Reinstall even if already present")
	installCmd.Flags().IntVar(&installJobs, "jobs", 4, "Maximum number of backend groups installing at once (versions within a group install one after another)")
	installCmd.Flags().BoolVar(&installRaw, "raw", false, "Disable concurrency and progress bars (implies jobs=1)")
	installCmd.Flags().BoolVar(&installMissingArgsOnly, "missing-args-only", false, "Install only versions requested directly on the command line")
}

func runInstall(cmd *cobra.Command, _ []string) error {
	p, err := toolPaths()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if syncStore, err := state.NewInstalledStore(); err == nil {
		if err := registryaqua.SyncRegistry(ctx, syncStore); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: aqua registry sync failed: %v\n", err)
		}
	}

	reg := buildRegistry(installRootFor(p), cacheRootFor(p))

	resolveOpts := toolset.ResolveOpts{}
	ts, _, err := buildToolset(reg, resolveOpts)
	if err != nil {
		return err
	}

	if err := ts.Resolve(ctx, resolveOpts); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	missing := ts.ListMissingVersions(installMissingArgsOnly)

	store, err := state.NewInstalledStore()
	if err != nil {
		return fmt.Errorf("open install-state store: %w", err)
	}
	if err := store.Lock(); err != nil {
		return fmt.Errorf("lock install-state store: %w", err)
	}
	defer func() { _ = store.Unlock() }()

	loadedState, err := store.Load()
	if err != nil {
		return fmt.Errorf("load install-state: %w", err)
	}
	cache := state.NewCache(store)
	cache.Init(loadedState)

	group := progress.NewGroup(nil)
	var reportersMu sync.Mutex
	reporters := map[string]*progress.Reporter{}
	reporterFor := func(idFull string) *progress.Reporter {
		reportersMu.Lock()
		defer reportersMu.Unlock()
		r, ok := reporters[idFull]
		if !ok {
			r = group.NewReporter(idFull)
			reporters[idFull] = r
		}
		return r
	}

	handler := func(e installer.Event) {
		if installRaw && e.Type != installer.EventError {
			// Raw mode prints one plain line per event instead of progress bars.
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s %s\n", e.Identifier.Full, e.Type, e.Message)
			return
		}
		switch e.Type {
		case installer.EventStart:
			reporterFor(e.Identifier.Full).SetMessage("starting " + e.Message)
		case installer.EventProgress:
			reporterFor(e.Identifier.Full).SetMessage(e.Message)
		case installer.EventComplete:
			reporterFor(e.Identifier.Full).Done()
		case installer.EventError:
			if e.Err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), e.Err)
			}
		}
	}

	in := installer.New(reg, cache, handler)
	opts := installer.Options{
		Force:           installForce,
		Jobs:            installJobs,
		Raw:             installRaw,
		MissingArgsOnly: installMissingArgsOnly,
		ResolveOptions:  resolveOpts,
	}

	logStore, err := log.NewStore(p.UserLogDir())
	if err != nil {
		return fmt.Errorf("open install-log store: %w", err)
	}
	in.SetLogStore(logStore)

	installed, err := in.InstallAllVersions(ctx, ts, missing, opts, nil, nil)
	group.Wait()
	if err != nil {
		for _, fr := range logStore.FailedResources() {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s failed; log saved to %s\n",
				fr.Kind, fr.Name, filepath.Join(logStore.SessionDir(), fmt.Sprintf("%s_%s.log", fr.Kind, fr.Name)))
		}
		return fmt.Errorf("install: %w", err)
	}
	if err := logStore.Cleanup(keepLogSessions); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to clean up old install logs: %v\n", err)
	}

	for _, v := range installed {
		fmt.Fprintf(cmd.OutOrStdout(), "installed %s %s\n", v.Identifier().Full, v.Canonical)
		cache.Record(v.Identifier(), v.Canonical, v.Paths.InstallDir)
	}
	if err := cache.Flush(); err != nil {
		return fmt.Errorf("flush install-state: %w", err)
	}
	return nil
}
