package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/convergeproj/converge/pkg/api"
)

type listOpts struct {
	*rootOpts
}

func newList(parent *rootOpts) *listOpts {
	return &listOpts{rootOpts: parent}
}

func (opts *listOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List declared applications and their reconciliation state.",
		Example: makeExample("convergectl list"),
		RunE:    opts.RunE,
	}
}

func (opts *listOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}

	statuses, err := opts.API.ListApplications(context.Background())
	if err != nil {
		return err
	}

	w := newTabwriter()
	fmt.Fprintf(w, "APPLICATION\tREVISION\tPHASE\tSYNC\tHEALTH\tPENDING\n")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Application, shortRevision(s.Revision), s.Phase, syncColumn(s), healthColumn(s), pendingColumn(s))
	}
	w.Flush()
	return nil
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	if rev == "" {
		return "-"
	}
	return rev
}

func syncColumn(s api.ApplicationStatus) string {
	if s.Result == nil {
		return "-"
	}
	return string(s.Result.Status)
}

func healthColumn(s api.ApplicationStatus) string {
	if s.Health == nil {
		return "-"
	}
	return string(s.Health.Status)
}

func pendingColumn(s api.ApplicationStatus) string {
	if s.PendingChanges == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", s.PendingChanges)
}
