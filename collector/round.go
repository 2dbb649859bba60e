package collector

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Status is the per-policy outcome reported to the peer.
type Status uint8

const (
	// StatusAccepted indicates the policy was applied
	StatusAccepted Status = 0
	// StatusRejected indicates the policy was declined
	StatusRejected Status = 1
)

const (
	// ResponseKeyword is the command that carries the acknowledgement
	ResponseKeyword = "DSCP_RESP"
	// SolicitedToken marks the response as an answer to a peer request
	SolicitedToken = "solicited"
	// MaxOutcomes is the largest number of outcomes a single round reports
	MaxOutcomes = 10
	// DefaultMaxResponseLength bounds the composed acknowledgement
	DefaultMaxResponseLength = 1000
)

// ErrRoundFull is returned when an outcome is recorded in a full round.
var ErrRoundFull = errors.New("negotiation round is full")

// Outcome is the result of processing a single policy in a round.
type Outcome struct {
	PolicyID uint8
	Status   Status
}

// Round accumulates the outcomes of one negotiation round, in arrival order.
type Round struct {
	outcomes  []Outcome
	maxLength int
}

// NewRound returns an empty round whose acknowledgement may not exceed
// maxLength bytes. A non positive maxLength selects the default.
func NewRound(maxLength int) *Round {

	if maxLength <= 0 {
		maxLength = DefaultMaxResponseLength
	}

	return &Round{
		outcomes:  make([]Outcome, 0, MaxOutcomes),
		maxLength: maxLength,
	}
}

// Full reports whether the round already holds the maximum number of outcomes.
func (r *Round) Full() bool {
	return len(r.outcomes) >= MaxOutcomes
}

// Record appends an outcome. Once the round is full further outcomes are
// refused and earlier ones are left untouched.
func (r *Round) Record(id uint8, status Status) error {

	if r.Full() {
		return ErrRoundFull
	}

	r.outcomes = append(r.outcomes, Outcome{PolicyID: id, Status: status})
	return nil
}

// Outcomes returns a copy of the recorded outcomes.
func (r *Round) Outcomes() []Outcome {
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Len returns the number of recorded outcomes.
func (r *Round) Len() int {
	return len(r.outcomes)
}

// Reset discards all outcomes.
func (r *Round) Reset() {
	r.outcomes = r.outcomes[:0]
}

// Compose builds the acknowledgement for the round. If the text would exceed
// the configured bound an error is returned and no text is produced.
func (r *Round) Compose() (string, error) {

	var b strings.Builder
	b.WriteString(ResponseKeyword)
	b.WriteString(" ")
	b.WriteString(SolicitedToken)

	for _, o := range r.outcomes {
		b.WriteString(" policy_id=")
		b.WriteString(strconv.Itoa(int(o.PolicyID)))
		b.WriteString(" status=")
		b.WriteString(strconv.Itoa(int(o.Status)))
	}

	if b.Len() > r.maxLength {
		return "", errors.Errorf("acknowledgement of %d bytes exceeds limit of %d", b.Len(), r.maxLength)
	}

	return b.String(), nil
}
