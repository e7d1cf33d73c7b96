package main

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

type statusOpts struct {
	*rootOpts
	output string
}

func newStatus(parent *rootOpts) *statusOpts {
	return &statusOpts{rootOpts: parent}
}

func (opts *statusOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <application>",
		Short: "display the reconciliation status of an application",
		Example: makeExample(
			"convergectl status podinfo --output=json",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "yaml", `The format to output ("yaml" or "json")`)
	return cmd
}

func (opts *statusOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return newUsageError("expected one argument, an application name")
	}

	var marshal func(interface{}) ([]byte, error)
	switch opts.output {
	case "yaml":
		marshal = func(v interface{}) ([]byte, error) {
			// Round-trip through JSON so the field names match the API.
			bytes, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			var plain interface{}
			if err := yaml.Unmarshal(bytes, &plain); err != nil {
				return nil, err
			}
			return yaml.Marshal(plain)
		}
	case "json":
		marshal = func(v interface{}) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	default:
		return errors.New("unknown output format " + opts.output)
	}

	status, err := opts.API.Status(context.Background(), args[0])
	if err != nil {
		return err
	}

	bytes, err := marshal(status)
	if err != nil {
		return errors.Wrap(err, "marshalling to output format "+opts.output)
	}
	cmd.OutOrStdout().Write(bytes)
	return nil
}
