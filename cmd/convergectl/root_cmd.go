package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/convergeproj/converge/pkg/api"
	transport "github.com/convergeproj/converge/pkg/http"
	"github.com/convergeproj/converge/pkg/http/client"
)

const EnvVariableURL = "CONVERGE_URL"

type rootOpts struct {
	URL       string
	Namespace string
	Timeout   time.Duration
	API       api.Server
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
convergectl talks to the converged daemon about the applications it
reconciles.

Workflow:
  convergectl list               # Which applications are declared, and are they in sync?
  convergectl status podinfo     # What happened in the last cycle?
  convergectl sync podinfo       # Reconcile now, rather than on the timer.
  convergectl events             # What has happened recently?
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "convergectl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.URL, "url", "u", "",
		fmt.Sprintf("base URL of the converged API server; you can also set the environment variable %s. When neither is set, a port forward to a converged pod is attempted", EnvVariableURL))
	cmd.PersistentFlags().StringVar(&opts.Namespace, "k8s-fwd-ns", "converge",
		"namespace in which to look for the converged pod when port forwarding")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 60*time.Second,
		"maximum time to wait for a response from the daemon")

	cmd.AddCommand(
		newList(opts).Command(),
		newStatus(opts).Command(),
		newSync(opts).Command(),
		newRemove(opts).Command(),
		newEvents(opts).Command(),
		newVersionCommand(opts),
	)

	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	url := opts.URL
	if !cmd.Flags().Changed("url") {
		url = os.Getenv(EnvVariableURL)
	}

	// Nothing explicit: tunnel to the daemon through the cluster API,
	// the way kubectl port-forward would.
	if url == "" {
		forwarder, err := tryPortforwards(opts.Namespace,
			metav1.LabelSelector{MatchLabels: map[string]string{"name": "converged"}},
			metav1.LabelSelector{MatchLabels: map[string]string{"app": "converged"}},
		)
		if err != nil {
			return errors.Wrap(err, "could not reach a daemon; supply --url or set "+EnvVariableURL)
		}
		url = fmt.Sprintf("http://127.0.0.1:%d/api/converge", forwarder.ListenPort)
	}

	opts.API = client.New(&http.Client{Timeout: opts.Timeout}, transport.NewAPIRouter(), url)
	return nil
}
