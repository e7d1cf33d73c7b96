package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type removeOpts struct {
	*rootOpts
}

func newRemove(parent *rootOpts) *removeOpts {
	return &removeOpts{rootOpts: parent}
}

func (opts *removeOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <application>",
		Short: "stop reconciling an application; with a pruning policy, its resources are deleted",
		RunE:  opts.RunE,
	}
}

func (opts *removeOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return newUsageError("expected one argument, an application name")
	}
	app := args[0]

	if err := opts.API.RemoveApplication(context.Background(), app); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStderr(), "Removed %s\n", app)
	return nil
}
