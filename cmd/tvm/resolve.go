package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kagenomi/tvm/internal/toolset"
)

var resolveAllowPrerelease bool

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve tool requests from the working directory's config into concrete versions",
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveAllowPrerelease, "allow-prerelease", false, "Allow prerelease versions to satisfy a request")
}

func runResolve(cmd *cobra.Command, _ []string) error {
	p, err := toolPaths()
	if err != nil {
		return err
	}
	reg := buildRegistry(installRootFor(p), cacheRootFor(p))

	opts := toolset.ResolveOpts{AllowPrerelease: resolveAllowPrerelease}
	ts, _, err := buildToolset(reg, opts)
	if err != nil {
		return err
	}

	if err := ts.Resolve(context.Background(), opts); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	for _, id := range ts.Keys() {
		list, _ := ts.Get(id)
		for _, v := range list.Versions {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id.Full, v.Canonical)
		}
	}
	return nil
}
