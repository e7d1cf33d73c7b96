package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/convergeproj/converge/pkg/api"
)

type syncOpts struct {
	*rootOpts
	noFollow bool
}

func newSync(parent *rootOpts) *syncOpts {
	return &syncOpts{rootOpts: parent}
}

func (opts *syncOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <application>",
		Short: "reconcile an application with its repository, now",
		RunE:  opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.noFollow, "no-follow", false, "return immediately instead of waiting for the cycle to finish")
	return cmd
}

func (opts *syncOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return newUsageError("expected one argument, an application name")
	}
	app := args[0]
	ctx := context.Background()

	if err := opts.API.TriggerSync(ctx, app); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStderr(), "Sync of %s requested\n", app)
	if opts.noFollow {
		return nil
	}

	status, err := opts.awaitCycle(ctx, app)
	if err != nil {
		return err
	}
	if status.Phase == api.PhaseFailed {
		return fmt.Errorf("cycle failed: %s", status.Error)
	}
	if status.Result != nil {
		fmt.Fprintf(cmd.OutOrStderr(), "Applied %s (%s)\n", status.Revision, status.Result.Status)
		for _, e := range status.Result.Errored() {
			fmt.Fprintf(cmd.OutOrStderr(), "  %s: %s\n", e.ID, e.Error)
		}
	} else {
		fmt.Fprintf(cmd.OutOrStderr(), "Nothing to apply at %s\n", status.Revision)
	}
	fmt.Fprintln(cmd.OutOrStderr(), "Done.")
	return nil
}

// awaitCycle polls until a cycle started after our request has
// finished (or the timeout elapses).
func (opts *syncOpts) awaitCycle(ctx context.Context, app string) (api.ApplicationStatus, error) {
	requested := time.Now()
	deadline := time.After(opts.Timeout)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			return api.ApplicationStatus{}, fmt.Errorf("timed out waiting for the cycle to finish")
		case <-tick.C:
			status, err := opts.API.Status(ctx, app)
			if err != nil {
				return api.ApplicationStatus{}, err
			}
			finished := status.Phase == api.PhaseIdle || status.Phase == api.PhaseFailed
			if finished && status.Started.After(requested.Add(-time.Second)) && !status.Finished.IsZero() {
				return status, nil
			}
		}
	}
}
