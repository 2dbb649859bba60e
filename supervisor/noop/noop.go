package noop

import (
	"context"

	"go.uber.org/zap"

	"go.aporeto.io/dscpd/policy"
)

// Instance accepts every operation without touching the packet filter.
type Instance struct {
	iface string
}

// NewInstance returns a dry run implementation for the given interface.
func NewInstance(iface string) *Instance {
	return &Instance{iface: iface}
}

// Run does nothing.
func (i *Instance) Run(ctx context.Context) error {
	zap.L().Info("Packet filter disabled, policies will only be acknowledged", zap.String("interface", i.iface))
	return nil
}

// Apply logs p. Selectors no rule could express are refused the same way the
// packet filter implementations refuse them.
func (i *Instance) Apply(p *policy.DSCPPolicy) error {

	if _, err := p.Transport(); err != nil {
		return err
	}

	zap.L().Debug("Dry run apply", zap.Stringer("policy", p))
	return nil
}

// Remove logs p.
func (i *Instance) Remove(p *policy.DSCPPolicy) error {
	zap.L().Debug("Dry run remove", zap.Stringer("policy", p))
	return nil
}

// FlushAll does nothing.
func (i *Instance) FlushAll() error {
	return nil
}

// CleanUp does nothing.
func (i *Instance) CleanUp() error {
	return nil
}
