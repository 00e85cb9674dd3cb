package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kagenomi/tvm/internal/envcompose"
	"github.com/kagenomi/tvm/internal/toolset"
)

var envShell string

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print shell export statements for the resolved toolset",
	Long: `Print environment export statements for every installed tool in the
working directory's config.

  eval "$(tvm env)"`,
	RunE: runEnv,
}

func init() {
	envCmd.Flags().StringVar(&envShell, "shell", "posix", "Shell type (posix, fish)")
	_ = envCmd.RegisterFlagCompletionFunc("shell", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"posix", "fish"}, cobra.ShellCompDirectiveNoFileComp
	})
}

func runEnv(cmd *cobra.Command, _ []string) error {
	shellType, err := envcompose.ParseShellType(envShell)
	if err != nil {
		return err
	}

	p, err := toolPaths()
	if err != nil {
		return err
	}
	reg := buildRegistry(installRootFor(p), cacheRootFor(p))

	resolveOpts := toolset.ResolveOpts{}
	ts, loaded, err := buildToolset(reg, resolveOpts)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := ts.Resolve(ctx, resolveOpts); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	var tools []envcompose.ToolEnv
	for _, id := range ts.Keys() {
		list, _ := ts.Get(id)
		b, ok := reg.Lookup(id.Short)
		if !ok {
			continue
		}
		installed, err := b.ListInstalledVersions()
		if err != nil {
			installed = nil
		}
		installedSet := make(map[string]bool, len(installed))
		for _, iv := range installed {
			installedSet[iv] = true
		}
		for _, v := range list.Versions {
			if toolset.IsSystem(v.Request) {
				continue
			}
			if _, isPath := v.Request.(toolset.PathRequest); !isPath && !installedSet[v.Canonical] {
				continue
			}
			exec, err := b.ExecEnv(v.Paths)
			if err != nil {
				exec = nil
			}
			binPaths, err := b.ListBinPaths(v.Paths)
			if err != nil {
				binPaths = nil
			}
			tools = append(tools, envcompose.ToolEnv{Identifier: id.Full, Env: exec, BinPaths: binPaths})
		}
	}

	result, err := envcompose.Compose(envcompose.Input{
		PristineEnv:    pristineEnv(),
		Tools:          tools,
		ConfigEnv:      loaded.Env,
		ConfigPathDirs: loaded.PathDirs,
	})
	if err != nil {
		return fmt.Errorf("compose env: %w", err)
	}

	formatter := envcompose.NewFormatter(shellType)
	lines := envcompose.GenerateShellLines(result, formatter)

	output := strings.Join(lines, "\n")
	if len(lines) > 0 {
		output += "\n"
	}
	fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}

func pristineEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	return env
}
