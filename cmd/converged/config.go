package main

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/convergeproj/converge/pkg/config"
)

// defineConfigFlags defines the flags that can also be set in a
// config file. These need special treatment, because some care must
// be taken to match them ("bind") with config file field names.
func defineConfigFlags(fs *pflag.FlagSet, bail func(error)) {

	bind := func(fieldName, flagName string) error {
		configStruct := reflect.TypeOf(config.Config{})
		field, ok := configStruct.FieldByName(fieldName)
		if !ok {
			return fmt.Errorf("attempt to bind a flag to a field not present in config.Config, %q", fieldName)
		}
		tag := field.Tag
		// this parallels the logic in
		// github.com/mitchellh/mapstructure, except that we want to
		// bail if a field is mentioned that is marked ignore, like
		// this: `mapstructure:"-"`
		mappedName := field.Name
		mapstructureTagParts := strings.Split(tag.Get("mapstructure"), ",")
		if namePart := mapstructureTagParts[0]; namePart != "" {
			if namePart == "-" { // means ignore this field
				return fmt.Errorf(`attempt to bind a flag to a config field tagged as ignored, %q`, field.Name)
			}
			mappedName = namePart
		}
		return viper.BindPFlag(mappedName, fs.Lookup(flagName))
	}

	bindOrBail := func(fieldName, flagName string) {
		if err := bind(fieldName, flagName); err != nil {
			bail(err)
		}
	}

	defineString := func(fieldName, flagName, def, desc string) {
		fs.String(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineStringP := func(fieldName, flagName, short, def, desc string) {
		fs.StringP(flagName, short, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineDuration := func(fieldName, flagName string, def time.Duration, desc string) {
		fs.Duration(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineInt := func(fieldName, flagName string, def int, desc string) {
		fs.Int(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineStringSlice := func(fieldName, flagName string, def []string, desc string) {
		fs.StringSlice(flagName, def, desc)
		bindOrBail(fieldName, flagName)
	}

	defineString("LogFormat", "log-format", "fmt", "change the log format.")
	defineStringP("Listen", "listen", "l", ":3030", "listen address where /metrics and API will be served")
	defineString("ListenMetrics", "listen-metrics", "", "listen address for /metrics endpoint; empty means serve metrics on the API listener")

	defineString("AppsDir", "apps-dir", "/etc/converge/apps", "directory of application declarations (YAML)")
	defineInt("EventLogSize", "event-log-size", 500, "number of events to keep in the in-memory log")

	defineDuration("GitPollInterval", "git-poll-interval", 5*time.Minute, "period at which to poll git repos for new commits")
	defineDuration("GitTimeout", "git-timeout", 1*time.Minute, "duration after which git operations time out")

	defineDuration("CycleInterval", "cycle-interval", 5*time.Minute, "period at which to reconcile, absent any other prompting")
	defineDuration("SyncTimeout", "sync-timeout", 5*time.Minute, "duration after which the observe/diff/apply steps of a cycle time out")
	defineDuration("HealthTimeout", "health-timeout", 1*time.Minute, "duration after which health checks for a cycle time out")

	defineStringSlice("K8sAllowNamespace", "k8s-allow-namespace", nil, "restrict all operations to the provided namespaces (supports glob patterns)")
}
