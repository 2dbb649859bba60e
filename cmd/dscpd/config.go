package main

import (
	"bytes"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"go.aporeto.io/dscpd/collector"
	"go.aporeto.io/dscpd/constants"
	"go.aporeto.io/dscpd/monitor"
)

var validate = validator.New()

// daemonConfig is the configuration of the daemon. It is read from an
// optional YAML file, then overridden by the environment and the flags.
type daemonConfig struct {
	Interface         string `yaml:"interface" validate:"required,max=15"`
	CtrlInterfaceDir  string `yaml:"ctrl_interface_dir" validate:"required"`
	Implementation    string `yaml:"implementation" validate:"oneof=iptables nftables noop"`
	MaxPolicies       int    `yaml:"max_policies" validate:"gte=1,lte=256"`
	MaxResponseLength int    `yaml:"max_response_length" validate:"gte=64"`
	MaxSelectorLength int    `yaml:"max_selector_length" validate:"gte=64"`
	BlanketReject     int    `yaml:"blanket_reject" validate:"gte=0,lte=255"`
	DomainName        bool   `yaml:"domain_name"`
	PortRange         bool   `yaml:"port_range"`
	MetricsAddr       string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	LogLevel          string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat         string `yaml:"log_format" validate:"oneof=json console"`
}

func defaultDaemonConfig() *daemonConfig {
	return &daemonConfig{
		CtrlInterfaceDir:  constants.DefaultCtrlInterfaceDir,
		Implementation:    constants.IPTables.String(),
		MaxPolicies:       monitor.DefaultMaxPolicies,
		MaxResponseLength: collector.DefaultMaxResponseLength,
		MaxSelectorLength: constants.DefaultMaxSelectorLength,
		DomainName:        true,
		PortRange:         true,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// decodeConfig overlays the YAML document read from r on cfg. Unknown keys
// are refused.
func decodeConfig(r io.Reader, cfg *daemonConfig) error {

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return errors.Wrap(err, "invalid configuration")
	}

	return nil
}

// loadConfig resolves the configuration from the file named by the config
// flag, the environment and the flags that were set explicitly.
func loadConfig(flags *pflag.FlagSet) (*daemonConfig, error) {

	cfg := defaultDaemonConfig()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read configuration %s", path)
		}
		if err := decodeConfig(bytes.NewReader(data), cfg); err != nil {
			return nil, errors.Wrapf(err, "%s", path)
		}
	}

	if dir, ok := os.LookupEnv(constants.EnvCtrlInterfaceDir); ok {
		cfg.CtrlInterfaceDir = dir
	}
	if level, ok := os.LookupEnv(constants.EnvLogLevel); ok {
		cfg.LogLevel = level
	}

	if err := applyFlags(flags, cfg); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

func applyFlags(flags *pflag.FlagSet, cfg *daemonConfig) (err error) {

	stringFlags := map[string]*string{
		"interface":      &cfg.Interface,
		"ctrl-dir":       &cfg.CtrlInterfaceDir,
		"implementation": &cfg.Implementation,
		"metrics-addr":   &cfg.MetricsAddr,
		"log-level":      &cfg.LogLevel,
		"log-format":     &cfg.LogFormat,
	}

	for name, dst := range stringFlags {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return err
		}
	}

	if flags.Changed("max-policies") {
		if cfg.MaxPolicies, err = flags.GetInt("max-policies"); err != nil {
			return err
		}
	}

	if flags.Changed("blanket-reject") {
		if cfg.BlanketReject, err = flags.GetInt("blanket-reject"); err != nil {
			return err
		}
	}

	return nil
}
