// config is the package containing configuration for converged,
// shared so it can be used by converged itself as well as other
// programs that need to interpret the same config file.
package config

import (
	"fmt"
	"time"
)

const (
	ConfigPath            = "/etc/converge/conf"
	ConfigName            = "converge-config.yaml"
	ConfigType            = "yaml"
	ConvergeConfigVersion = "v1"
)

type Config struct {
	// This is expected to be present in a config file (and will not
	// correspond to a flag). The value determines how the config file
	// is interpreted: for now, if it is not equal to
	// ConvergeConfigVersion above, it is considered an invalid
	// configuration.
	ConfigVersion string `mapstructure:"convergeConfigVersion"`

	LogFormat     string `mapstructure:"logFormat"`
	Listen        string `mapstructure:"listen"`
	ListenMetrics string `mapstructure:"listenMetrics"`

	AppsDir      string `mapstructure:"appsDir"`
	EventLogSize int    `mapstructure:"eventLogSize"`

	GitPollInterval time.Duration `mapstructure:"gitPollInterval"`
	GitTimeout      time.Duration `mapstructure:"gitTimeout"`

	CycleInterval time.Duration `mapstructure:"cycleInterval"`
	SyncTimeout   time.Duration `mapstructure:"syncTimeout"`
	HealthTimeout time.Duration `mapstructure:"healthTimeout"`

	K8sAllowNamespace []string `mapstructure:"k8sAllowNamespace"`
}

func (c Config) IsValid() error {
	if c.ConfigVersion != ConvergeConfigVersion {
		return fmt.Errorf("config file is expected to include `convergeConfigVersion: %s` to mark it as a converge config", ConvergeConfigVersion)
	}
	return nil
}
