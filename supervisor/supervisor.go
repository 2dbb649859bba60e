package supervisor

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"go.aporeto.io/dscpd/constants"
	"go.aporeto.io/dscpd/supervisor/iptablesctrl"
	"go.aporeto.io/dscpd/supervisor/nftablesctrl"
	"go.aporeto.io/dscpd/supervisor/noop"
)

// Config is the structure holding the parameters of the implementation.
type Config struct {
	// Implementation selects the packet filter
	Implementation constants.ImplementationType
	// Interface is the interface whose outgoing traffic is marked
	Interface string
	// MaxSelectorLength bounds the rendered selector of a rule
	MaxSelectorLength int
}

// NewImplementor returns the packet filter implementation selected by cfg.
// The choice is made once and never changes for the life of the instance.
func NewImplementor(cfg *Config) (Implementor, error) {

	if cfg == nil {
		return nil, errors.New("supervisor configuration cannot be nil")
	}

	if cfg.Interface == "" {
		return nil, errors.New("interface cannot be empty")
	}

	zap.L().Debug("Selecting packet filter implementation",
		zap.Stringer("implementation", cfg.Implementation),
		zap.String("interface", cfg.Interface),
	)

	switch cfg.Implementation {
	case constants.IPTables:
		impl, err := iptablesctrl.NewInstance(cfg.Interface, cfg.MaxSelectorLength)
		if err != nil {
			return nil, errors.Wrap(err, "unable to initialize iptables implementation")
		}
		return impl, nil

	case constants.NFTables:
		impl, err := nftablesctrl.NewInstance(cfg.Interface, cfg.MaxSelectorLength)
		if err != nil {
			return nil, errors.Wrap(err, "unable to initialize nftables implementation")
		}
		return impl, nil

	case constants.Noop:
		return noop.NewInstance(cfg.Interface), nil

	default:
		return nil, errors.Errorf("unknown implementation %s", cfg.Implementation)
	}
}
