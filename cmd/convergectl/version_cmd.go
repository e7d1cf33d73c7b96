package main

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
)

var version string

func newVersionCommand(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Output the version of convergectl, and of the daemon if reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return errorWantedNoArgs
			}
			if version == "" {
				version = "unversioned"
			}
			fmt.Fprintln(cmd.OutOrStdout(), version)

			server, err := opts.API.Version(context.Background())
			if err != nil {
				// Not being able to reach the daemon is not an error
				// for this command; just say so.
				fmt.Fprintf(cmd.OutOrStderr(), "daemon unreachable: %v\n", err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daemon: %s\n", server)
			warnOnVersionSkew(cmd, version, server)
			return nil
		},
	}
}

// warnOnVersionSkew points out major-version mismatches between
// client and daemon; anything unparseable (dev builds, "unversioned")
// is skipped silently.
func warnOnVersionSkew(cmd *cobra.Command, clientVersion, serverVersion string) {
	cv, err := semver.NewVersion(clientVersion)
	if err != nil {
		return
	}
	sv, err := semver.NewVersion(serverVersion)
	if err != nil {
		return
	}
	if cv.Major() != sv.Major() {
		fmt.Fprintf(cmd.OutOrStderr(), "Warning: convergectl %s may not work correctly against daemon %s; consider matching versions\n",
			clientVersion, serverVersion)
	}
}
