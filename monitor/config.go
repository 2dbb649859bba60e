package monitor

import (
	"context"

	"go.aporeto.io/dscpd/collector"
	"go.aporeto.io/dscpd/policy"
	"go.aporeto.io/dscpd/supervisor"
)

// DefaultMaxPolicies is the number of distinct policy IDs.
const DefaultMaxPolicies = 256

// Channel is the notification channel of an association. Receive blocks
// until the next notification and is the only point where the monitor
// observes cancellation. Send delivers a command to the peer.
type Channel interface {
	Receive(ctx context.Context) (string, error)
	Send(ctx context.Context, command string) error
}

// Config is the configuration of the monitor
type Config struct {
	// Channel carries the notifications and the acknowledgements
	Channel Channel
	// Implementor installs the rules of the active policies
	Implementor supervisor.Implementor
	// Metrics receives the counters of the monitor. Optional.
	Metrics *Metrics
	// MaxPolicies bounds the number of active policies
	MaxPolicies int
	// MaxResponseLength bounds the acknowledgement of a round
	MaxResponseLength int
	// DecodeOptions gates the optional selectors. Nil accepts all of them.
	DecodeOptions *policy.DecodeOptions
}

// DefaultConfig provides a default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxPolicies:       DefaultMaxPolicies,
		MaxResponseLength: collector.DefaultMaxResponseLength,
	}
}

// SetupDefaultConfig adds defaults to a partial configuration
func SetupDefaultConfig(monitorConfig *Config) *Config {

	defaultConfig := DefaultConfig()

	if monitorConfig.MaxPolicies <= 0 {
		monitorConfig.MaxPolicies = defaultConfig.MaxPolicies
	}
	if monitorConfig.MaxResponseLength <= 0 {
		monitorConfig.MaxResponseLength = defaultConfig.MaxResponseLength
	}
	if monitorConfig.DecodeOptions == nil {
		opts := policy.DefaultDecodeOptions()
		monitorConfig.DecodeOptions = &opts
	}
	if monitorConfig.Metrics == nil {
		monitorConfig.Metrics = NewMetrics()
	}
	return monitorConfig
}
