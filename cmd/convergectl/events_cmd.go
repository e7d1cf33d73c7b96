package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type eventsOpts struct {
	*rootOpts
	app   string
	limit int
}

func newEvents(parent *rootOpts) *eventsOpts {
	return &eventsOpts{rootOpts: parent}
}

func (opts *eventsOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "events",
		Short:   "Show recent reconciliation events, newest first.",
		Example: makeExample("convergectl events --app podinfo"),
		RunE:    opts.RunE,
	}
	cmd.Flags().StringVar(&opts.app, "app", "", "only show events for this application")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "number of events to show")
	return cmd
}

func (opts *eventsOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}

	events, err := opts.API.ListEvents(context.Background(), opts.app, opts.limit)
	if err != nil {
		return err
	}

	w := newTabwriter()
	fmt.Fprintf(w, "TIME\tAPPLICATION\tTYPE\tLEVEL\tMESSAGE\n")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.EndedAt.Local().Format("2006-01-02 15:04:05"), e.Application, e.Type, e.LogLevel, e.Message)
	}
	w.Flush()
	return nil
}
