package monitor

import (
	"sync/atomic"

	"go.aporeto.io/dscpd/collector"
)

// Status is a snapshot of the monitor state for reporting.
type Status struct {
	Running         bool
	RoundsCompleted uint64
	LastResponse    string
	LastOutcomes    []collector.Outcome
	ActivePolicies  []uint8
	BlanketReject   collector.Status
	TerminalReason  string
}

// statusTable publishes complete snapshots. It has a single writer, the
// monitor goroutine, and any number of readers.
type statusTable struct {
	v atomic.Value
}

func newStatusTable() *statusTable {
	s := &statusTable{}
	s.v.Store(Status{})
	return s
}

func (s *statusTable) load() Status {
	return s.v.Load().(Status)
}

// update applies f to a copy of the current snapshot and publishes it.
func (s *statusTable) update(f func(st *Status)) {
	st := s.load()
	f(&st)
	s.v.Store(st)
}
