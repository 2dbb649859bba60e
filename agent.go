package dscpd

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"

	"go.aporeto.io/dscpd/collector"
	"go.aporeto.io/dscpd/monitor"
	"go.aporeto.io/dscpd/supervisor"
	"go.aporeto.io/dscpd/utils/panicrecovery"
)

// linkByName resolves the interface of the association.
var linkByName = netlink.LinkByName

// agent contains references to all the different components involved.
type agent struct {
	cfg *config

	impl    supervisor.Implementor
	monitor *monitor.Monitor
	metrics *monitor.Metrics

	cancel context.CancelFunc
	done   chan struct{}
	err    error

	sync.Mutex
}

func newAgent(cfg *config) *agent {
	return &agent{
		cfg: cfg,
	}
}

// Start validates the configuration, prepares the packet filter and starts
// the monitor of the association.
func (a *agent) Start(ctx context.Context) error {

	a.Lock()
	defer a.Unlock()

	if a.done != nil {
		return errors.New("agent already started")
	}

	if a.cfg.channel == nil {
		return errors.New("notification channel cannot be nil")
	}

	if _, err := linkByName(a.cfg.iface); err != nil {
		return errors.Wrapf(err, "interface %s", a.cfg.iface)
	}

	impl := a.cfg.implementor
	if impl == nil {
		var err error
		impl, err = supervisor.NewImplementor(&supervisor.Config{
			Implementation:    a.cfg.implementation,
			Interface:         a.cfg.iface,
			MaxSelectorLength: a.cfg.maxSelectorLength,
		})
		if err != nil {
			return errors.Wrap(err, "unable to create packet filter implementation")
		}
	}

	mcfg := &monitor.Config{
		Channel:           a.cfg.channel,
		Implementor:       impl,
		MaxPolicies:       a.cfg.maxPolicies,
		MaxResponseLength: a.cfg.maxResponseLength,
		DecodeOptions:     a.cfg.decodeOptions,
	}

	m, err := monitor.New(mcfg)
	if err != nil {
		return errors.Wrap(err, "unable to create monitor")
	}
	m.SetBlanketReject(a.cfg.blanketReject)

	if err := impl.Run(ctx); err != nil {
		return errors.Wrap(err, "unable to prepare packet filter")
	}

	if a.cfg.registerer != nil {
		if err := a.cfg.registerer.Register(mcfg.Metrics); err != nil {
			zap.L().Warn("Unable to register metrics", zap.Error(err))
		}
	}

	mctx, cancel := context.WithCancel(ctx)

	a.impl = impl
	a.monitor = m
	a.metrics = mcfg.Metrics
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.run(mctx)

	zap.L().Info("DSCP agent started",
		zap.String("interface", a.cfg.iface),
		zap.Stringer("implementation", a.cfg.implementation),
	)

	return nil
}

func (a *agent) run(ctx context.Context) {

	defer panicrecovery.HandleEventualPanic("dscp monitor", a.cancel, a.teardown)

	err := a.monitor.Run(ctx)

	if cerr := a.impl.CleanUp(); cerr != nil {
		zap.L().Warn("Unable to clean up packet filter", zap.Error(cerr))
	}

	if a.cfg.registerer != nil {
		a.cfg.registerer.Unregister(a.metrics)
	}

	a.Lock()
	a.err = err
	close(a.done)
	a.Unlock()

	zap.L().Info("DSCP agent stopped", zap.String("interface", a.cfg.iface), zap.Error(err))
}

// teardown removes every rule and the scaffolding of the packet filter.
func (a *agent) teardown() error {

	if err := a.impl.FlushAll(); err != nil {
		zap.L().Warn("Unable to flush policy rules", zap.Error(err))
	}

	return a.impl.CleanUp()
}

// Stop cancels the monitor. The monitor observes it the next time it waits
// for a notification.
func (a *agent) Stop() {

	a.Lock()
	defer a.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
}

// Wait blocks until the monitor exited. It returns immediately if the agent
// was never started.
func (a *agent) Wait() error {

	a.Lock()
	done := a.done
	a.Unlock()

	if done == nil {
		return nil
	}

	<-done

	a.Lock()
	defer a.Unlock()
	return a.err
}

// Status returns the state published by the monitor.
func (a *agent) Status() monitor.Status {

	a.Lock()
	m := a.monitor
	a.Unlock()

	if m == nil {
		return monitor.Status{}
	}
	return m.Status()
}

// SetBlanketReject updates the blanket reject code of the running monitor.
func (a *agent) SetBlanketReject(code collector.Status) {

	a.Lock()
	defer a.Unlock()

	a.cfg.blanketReject = code
	if a.monitor != nil {
		a.monitor.SetBlanketReject(code)
	}
}
