package policy

// Table is the ordered set of active policies. Entries are kept in
// non-decreasing granularity score order, ties in insertion order, which is
// the order rules must be applied in. A Table is owned by a single goroutine
// and is not safe for concurrent use.
type Table struct {
	entries []*DSCPPolicy
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		entries: []*DSCPPolicy{},
	}
}

// Insert adds p to the table in score order. If a policy with the same ID is
// already present it is removed first and returned so the caller can tear
// down its rules.
func (t *Table) Insert(p *DSCPPolicy) *DSCPPolicy {

	replaced, _ := t.Remove(p.ID)

	score := p.GranularityScore()
	pos := len(t.entries)
	for i, e := range t.entries {
		if e.GranularityScore() > score {
			pos = i
			break
		}
	}

	t.entries = append(t.entries, nil)
	copy(t.entries[pos+1:], t.entries[pos:])
	t.entries[pos] = p

	return replaced
}

// Remove deletes the policy with the given ID. Removing an absent ID is not
// an error; the second return value reports whether anything was removed.
func (t *Table) Remove(id uint8) (*DSCPPolicy, bool) {

	for i, e := range t.entries {
		if e.ID == id {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return e, true
		}
	}

	return nil, false
}

// Get returns the active policy with the given ID.
func (t *Table) Get(id uint8) (*DSCPPolicy, bool) {

	for _, e := range t.entries {
		if e.ID == id {
			return e, true
		}
	}

	return nil, false
}

// Clear removes every entry and returns the removed policies in table order.
func (t *Table) Clear() []*DSCPPolicy {
	removed := t.entries
	t.entries = []*DSCPPolicy{}
	return removed
}

// Len returns the number of active policies.
func (t *Table) Len() int {
	return len(t.entries)
}

// Policies returns a copy of the active policies in table order.
func (t *Table) Policies() []*DSCPPolicy {
	out := make([]*DSCPPolicy, len(t.entries))
	copy(out, t.entries)
	return out
}

// IDs returns the active policy IDs in table order.
func (t *Table) IDs() []uint8 {
	ids := make([]uint8, len(t.entries))
	for i, e := range t.entries {
		ids[i] = e.ID
	}
	return ids
}
