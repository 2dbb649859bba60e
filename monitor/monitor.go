package monitor

import (
	"context"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"go.aporeto.io/dscpd/collector"
	"go.aporeto.io/dscpd/policy"
	"go.aporeto.io/dscpd/supervisor"
	"go.aporeto.io/dscpd/supervisor/provider"
)

// Terminal reasons reported in the status.
const (
	ReasonDisconnected  = "disconnected"
	ReasonCancelled     = "cancelled"
	ReasonChannelClosed = "channel closed"
)

// Monitor processes the DSCP policy notifications of one association. It
// owns the policy table and the rules of the packet filter: both are only
// touched from the goroutine running Run.
type Monitor struct {
	channel       Channel
	impl          supervisor.Implementor
	metrics       *Metrics
	maxPolicies   int
	decodeOptions policy.DecodeOptions

	table  *policy.Table
	round  *collector.Round
	status *statusTable

	blanketReject atomic.Uint32
}

// New returns a new monitor.
func New(cfg *Config) (*Monitor, error) {

	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Channel == nil {
		return nil, errors.New("notification channel cannot be nil")
	}

	if cfg.Implementor == nil {
		return nil, errors.New("packet filter implementation cannot be nil")
	}

	cfg = SetupDefaultConfig(cfg)

	return &Monitor{
		channel:       cfg.Channel,
		impl:          cfg.Implementor,
		metrics:       cfg.Metrics,
		maxPolicies:   cfg.MaxPolicies,
		decodeOptions: *cfg.DecodeOptions,
		table:         policy.NewTable(),
		round:         collector.NewRound(cfg.MaxResponseLength),
		status:        newStatusTable(),
	}, nil
}

// SetBlanketReject makes every subsequent add report the given status
// without being applied. Zero disables it. It is safe to call from any
// goroutine and takes effect at the next notification.
func (m *Monitor) SetBlanketReject(code collector.Status) {
	m.blanketReject.Store(uint32(code))
}

// Status returns the last published snapshot of the monitor state. The
// snapshot must not be modified.
func (m *Monitor) Status() Status {
	return m.status.load()
}

// Run processes notifications until the peer disconnects, the channel is
// closed or ctx is cancelled. In every case the rules of the active
// policies are flushed before returning.
func (m *Monitor) Run(ctx context.Context) error {

	m.status.update(func(st *Status) {
		st.Running = true
		st.TerminalReason = ""
	})

	for {
		line, err := m.channel.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				m.teardown(ReasonCancelled)
				return nil
			}
			if errors.Is(err, io.EOF) {
				m.teardown(ReasonChannelClosed)
				return errors.Wrap(err, "notification channel closed")
			}
			zap.L().Warn("Unable to receive notification", zap.Error(err))
			continue
		}

		blanket := collector.Status(m.blanketReject.Load())
		if blanket != m.status.load().BlanketReject {
			m.status.update(func(st *Status) { st.BlanketReject = blanket })
		}

		event, err := ParseEvent(line)
		if err != nil {
			if err != ErrUnknownEvent {
				zap.L().Warn("Ignoring malformed notification", zap.String("line", line), zap.Error(err))
			}
			continue
		}

		zap.L().Debug("Received DSCP notification", zap.String("action", string(event.Action)))

		if done := m.handle(ctx, event, blanket); done {
			return nil
		}
	}
}

// handle processes one event and reports whether the monitor must exit.
func (m *Monitor) handle(ctx context.Context, e *Event, blanket collector.Status) bool {

	switch e.Action {
	case ActionDisconnected:
		m.teardown(ReasonDisconnected)
		return true

	case ActionRequestStart:
		if e.ClearAll {
			m.flush()
		}
		m.round.Reset()

	case ActionRequestEnd:
		m.acknowledge(ctx)

	case ActionAdd:
		m.add(e.Attributes, e.Malformed, blanket)

	case ActionRemove:
		m.remove(e.Attributes, collector.StatusAccepted)

	case ActionReject:
		m.remove(e.Attributes, collector.StatusRejected)
	}

	return false
}

// admit decodes the policy ID of an item and checks that the round can
// still report it.
func (m *Monitor) admit(action Action, attrs map[string]string) (uint8, bool) {

	if m.round.Full() {
		zap.L().Warn("Dropping policy item, round is full",
			zap.String("action", string(action)),
			zap.String("policyID", attrs[policy.AttrPolicyID]),
			zap.Int("outcomes", collector.MaxOutcomes),
		)
		m.metrics.Dropped.Inc()
		return 0, false
	}

	id, err := policy.DecodePolicyID(attrs)
	if err != nil {
		zap.L().Warn("Dropping policy item without a valid policy_id",
			zap.String("action", string(action)),
			zap.Error(err),
		)
		m.metrics.Dropped.Inc()
		return 0, false
	}

	return id, true
}

// add handles a policy addition. A malformed payload is rejected once its
// policy_id is known.
func (m *Monitor) add(attrs map[string]string, malformed error, blanket collector.Status) {

	id, ok := m.admit(ActionAdd, attrs)
	if !ok {
		return
	}

	if blanket != collector.StatusAccepted {
		m.record(ActionAdd, id, blanket)
		return
	}

	if malformed != nil {
		zap.L().Warn("Rejecting policy", zap.Uint8("policyID", id), zap.Error(malformed))
		m.record(ActionAdd, id, collector.StatusRejected)
		return
	}

	p, err := policy.DecodePolicy(attrs, m.decodeOptions)
	if err != nil {
		zap.L().Warn("Rejecting policy", zap.Uint8("policyID", id), zap.Error(err))
		m.record(ActionAdd, id, collector.StatusRejected)
		return
	}

	if _, exists := m.table.Get(id); !exists && m.table.Len() >= m.maxPolicies {
		zap.L().Warn("Rejecting policy",
			zap.Uint8("policyID", id),
			zap.Error(policy.ErrAllocation(id, "policy table is full")),
		)
		m.record(ActionAdd, id, collector.StatusRejected)
		return
	}

	if old := m.table.Insert(p); old != nil {
		m.uninstall(old)
	}

	if p.RequiresHostRule() {
		if err := m.impl.Apply(p); err != nil {
			if !provider.IsErrExternalTool(err) {
				m.table.Remove(id)
				zap.L().Warn("Rejecting policy", zap.Uint8("policyID", id), zap.Error(err))
				m.record(ActionAdd, id, collector.StatusRejected)
				return
			}
			m.metrics.ToolErrors.Inc()
			zap.L().Error("Unable to install policy rule, policy kept as accepted",
				zap.Uint8("policyID", id),
				zap.Error(err),
			)
		}
	}

	zap.L().Info("Accepted policy", zap.Stringer("policy", p))
	m.record(ActionAdd, id, collector.StatusAccepted)
}

// remove drops a policy from the table and reports status for it. Removing
// an unknown policy succeeds.
func (m *Monitor) remove(attrs map[string]string, status collector.Status) {

	action := ActionRemove
	if status == collector.StatusRejected {
		action = ActionReject
	}

	id, ok := m.admit(action, attrs)
	if !ok {
		return
	}

	if p, found := m.table.Remove(id); found {
		m.uninstall(p)
		zap.L().Info("Removed policy", zap.Uint8("policyID", id), zap.String("action", string(action)))
	}

	m.record(action, id, status)
}

// uninstall tears down the rule of p. Policies without a host rule never
// had one.
func (m *Monitor) uninstall(p *policy.DSCPPolicy) {

	if !p.RequiresHostRule() {
		return
	}

	if err := m.impl.Remove(p); err != nil {
		m.metrics.ToolErrors.Inc()
		zap.L().Error("Unable to remove policy rule", zap.Uint8("policyID", p.ID), zap.Error(err))
	}
}

func (m *Monitor) record(action Action, id uint8, status collector.Status) {

	if err := m.round.Record(id, status); err != nil {
		zap.L().Warn("Unable to record outcome", zap.Uint8("policyID", id), zap.Error(err))
		m.metrics.Dropped.Inc()
		return
	}

	m.metrics.Outcomes.WithLabelValues(string(action), strconv.Itoa(int(status))).Inc()
	m.publish()
}

// acknowledge sends the outcomes of the current round and starts a new one.
func (m *Monitor) acknowledge(ctx context.Context) {

	outcomes := m.round.Outcomes()
	text, err := m.round.Compose()
	m.round.Reset()

	if err != nil {
		zap.L().Error("Abandoning acknowledgement", zap.Int("outcomes", len(outcomes)), zap.Error(err))
		return
	}

	if err := m.channel.Send(context.WithoutCancel(ctx), text); err != nil {
		zap.L().Error("Unable to send acknowledgement", zap.String("response", text), zap.Error(err))
		return
	}

	zap.L().Debug("Acknowledged round", zap.String("response", text))
	m.metrics.Rounds.Inc()

	m.status.update(func(st *Status) {
		st.RoundsCompleted++
		st.LastResponse = text
		st.LastOutcomes = outcomes
	})
}

// flush removes every policy with a single bulk operation on the packet
// filter.
func (m *Monitor) flush() {

	if err := m.impl.FlushAll(); err != nil {
		m.metrics.ToolErrors.Inc()
		zap.L().Error("Unable to flush policy rules", zap.Error(err))
	}

	removed := m.table.Clear()
	zap.L().Debug("Cleared policy table", zap.Int("removed", len(removed)))

	m.publish()
}

func (m *Monitor) teardown(reason string) {

	m.flush()
	m.round.Reset()

	zap.L().Info("DSCP policy monitor stopped", zap.String("reason", reason))

	m.status.update(func(st *Status) {
		st.Running = false
		st.TerminalReason = reason
	})
}

// publish refreshes the table dependent part of the status.
func (m *Monitor) publish() {

	ids := m.table.IDs()
	m.metrics.ActivePolicies.Set(float64(len(ids)))

	m.status.update(func(st *Status) {
		st.ActivePolicies = ids
	})
}
