package dscpd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"go.aporeto.io/dscpd/collector"
	"go.aporeto.io/dscpd/constants"
	"go.aporeto.io/dscpd/monitor"
	"go.aporeto.io/dscpd/policy"
	"go.aporeto.io/dscpd/supervisor"
)

// config specifies all configurations accepted by the agent to start.
type config struct {
	// Required Parameters.
	iface   string
	channel monitor.Channel

	// External Interface implementations that we allow to plugin to components.
	implementor supervisor.Implementor
	registerer  prometheus.Registerer

	// Configurations for fine tuning internal components.
	implementation    constants.ImplementationType
	maxSelectorLength int
	maxPolicies       int
	maxResponseLength int
	decodeOptions     *policy.DecodeOptions
	blanketReject     collector.Status
}

// Option is provided using functional arguments.
type Option func(*config)

// OptionChannel is an option to provide the notification channel of the association.
func OptionChannel(c monitor.Channel) Option {
	return func(cfg *config) {
		cfg.channel = c
	}
}

// OptionImplementation is an option to select the packet filter implementation.
func OptionImplementation(i constants.ImplementationType) Option {
	return func(cfg *config) {
		cfg.implementation = i
	}
}

// OptionImplementor is an option to provide an external packet filter implementation.
// It takes precedence over OptionImplementation.
func OptionImplementor(i supervisor.Implementor) Option {
	return func(cfg *config) {
		cfg.implementor = i
	}
}

// OptionMaxSelectorLength is an option to bound the rendered selector of a rule.
func OptionMaxSelectorLength(n int) Option {
	return func(cfg *config) {
		cfg.maxSelectorLength = n
	}
}

// OptionMaxPolicies is an option to bound the number of active policies.
func OptionMaxPolicies(n int) Option {
	return func(cfg *config) {
		cfg.maxPolicies = n
	}
}

// OptionMaxResponseLength is an option to bound the acknowledgement of a round.
func OptionMaxResponseLength(n int) Option {
	return func(cfg *config) {
		cfg.maxResponseLength = n
	}
}

// OptionDecodeOptions is an option to gate the optional selectors.
func OptionDecodeOptions(o policy.DecodeOptions) Option {
	return func(cfg *config) {
		cfg.decodeOptions = &o
	}
}

// OptionBlanketReject is an option to reject every policy addition with code.
func OptionBlanketReject(code collector.Status) Option {
	return func(cfg *config) {
		cfg.blanketReject = code
	}
}

// OptionMetricsRegisterer is an option to register the agent metrics while it runs.
func OptionMetricsRegisterer(r prometheus.Registerer) Option {
	return func(cfg *config) {
		cfg.registerer = r
	}
}

// New returns an agent for the association on iface.
func New(iface string, opts ...Option) Agent {

	c := &config{
		iface:             iface,
		implementation:    constants.IPTables,
		maxSelectorLength: constants.DefaultMaxSelectorLength,
		maxPolicies:       monitor.DefaultMaxPolicies,
	}

	for _, opt := range opts {
		opt(c)
	}

	zap.L().Debug("DSCP agent", zap.String("Configuration", fmt.Sprintf("%+v", c)))

	return newAgent(c)
}
