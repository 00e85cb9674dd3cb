package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kagenomi/tvm/internal/toolset"
)

var whichBin string

var whichCmd = &cobra.Command{
	Use:   "which <tool>",
	Short: "Print the resolved binary path for a tool in the working directory's config",
	Args:  cobra.ExactArgs(1),
	RunE:  runWhich,
}

func init() {
	whichCmd.Flags().StringVar(&whichBin, "bin", "", "Binary name to look up (when empty, only the generic backend supplies a default name)")
}

func runWhich(cmd *cobra.Command, args []string) error {
	name := args[0]

	p, err := toolPaths()
	if err != nil {
		return err
	}
	reg := buildRegistry(installRootFor(p), cacheRootFor(p))

	b, ok := reg.Lookup(name)
	if !ok {
		return fmt.Errorf("no backend registered for %q", name)
	}

	resolveOpts := toolset.ResolveOpts{}
	ts, _, err := buildToolset(reg, resolveOpts)
	if err != nil {
		return err
	}
	if err := ts.Resolve(context.Background(), resolveOpts); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	list, ok := ts.Get(b.Identifier())
	if !ok || len(list.Versions) == 0 {
		return fmt.Errorf("%q is not requested by the working directory's config", name)
	}
	v := list.Versions[len(list.Versions)-1]

	path, found := b.Which(v.Paths, whichBin)
	if !found {
		return fmt.Errorf("%s %s: binary not found (installed?)", name, v.Canonical)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
