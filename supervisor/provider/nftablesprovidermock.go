package provider

import (
	"sync"
	"testing"

	"github.com/google/nftables"
)

type nftablesProviderMockedMethods struct {
	addTableMock   func(t *nftables.Table) *nftables.Table
	addChainMock   func(c *nftables.Chain) *nftables.Chain
	addRuleMock    func(r *nftables.Rule) *nftables.Rule
	delTableMock   func(t *nftables.Table)
	listTablesMock func() ([]*nftables.Table, error)
	flushMock      func() error
}

// TestNftablesProvider is a test implementation for NftablesProvider
type TestNftablesProvider interface {
	NftablesProvider
	MockAddTable(t *testing.T, impl func(t *nftables.Table) *nftables.Table)
	MockAddChain(t *testing.T, impl func(c *nftables.Chain) *nftables.Chain)
	MockAddRule(t *testing.T, impl func(r *nftables.Rule) *nftables.Rule)
	MockDelTable(t *testing.T, impl func(t *nftables.Table))
	MockListTables(t *testing.T, impl func() ([]*nftables.Table, error))
	MockFlush(t *testing.T, impl func() error)
}

// A testNftablesProvider is an empty NftablesProvider that can be easily mocked.
type testNftablesProvider struct {
	mocks       map[*testing.T]*nftablesProviderMockedMethods
	lock        *sync.Mutex
	currentTest *testing.T
}

// NewTestNftablesProvider returns a new TestNftablesProvider.
func NewTestNftablesProvider() TestNftablesProvider {
	return &testNftablesProvider{
		lock:  &sync.Mutex{},
		mocks: map[*testing.T]*nftablesProviderMockedMethods{},
	}
}

func (m *testNftablesProvider) MockAddTable(t *testing.T, impl func(t *nftables.Table) *nftables.Table) {

	m.currentMocks(t).addTableMock = impl
}

func (m *testNftablesProvider) MockAddChain(t *testing.T, impl func(c *nftables.Chain) *nftables.Chain) {

	m.currentMocks(t).addChainMock = impl
}

func (m *testNftablesProvider) MockAddRule(t *testing.T, impl func(r *nftables.Rule) *nftables.Rule) {

	m.currentMocks(t).addRuleMock = impl
}

func (m *testNftablesProvider) MockDelTable(t *testing.T, impl func(t *nftables.Table)) {

	m.currentMocks(t).delTableMock = impl
}

func (m *testNftablesProvider) MockListTables(t *testing.T, impl func() ([]*nftables.Table, error)) {

	m.currentMocks(t).listTablesMock = impl
}

func (m *testNftablesProvider) MockFlush(t *testing.T, impl func() error) {

	m.currentMocks(t).flushMock = impl
}

func (m *testNftablesProvider) AddTable(t *nftables.Table) *nftables.Table {

	if mock := m.currentMocks(m.currentTest); mock != nil && mock.addTableMock != nil {
		return mock.addTableMock(t)
	}

	return t
}

func (m *testNftablesProvider) AddChain(c *nftables.Chain) *nftables.Chain {

	if mock := m.currentMocks(m.currentTest); mock != nil && mock.addChainMock != nil {
		return mock.addChainMock(c)
	}

	return c
}

func (m *testNftablesProvider) AddRule(r *nftables.Rule) *nftables.Rule {

	if mock := m.currentMocks(m.currentTest); mock != nil && mock.addRuleMock != nil {
		return mock.addRuleMock(r)
	}

	return r
}

func (m *testNftablesProvider) DelTable(t *nftables.Table) {

	if mock := m.currentMocks(m.currentTest); mock != nil && mock.delTableMock != nil {
		mock.delTableMock(t)
	}
}

func (m *testNftablesProvider) ListTables() ([]*nftables.Table, error) {

	if mock := m.currentMocks(m.currentTest); mock != nil && mock.listTablesMock != nil {
		return mock.listTablesMock()
	}

	return nil, nil
}

func (m *testNftablesProvider) Flush() error {

	if mock := m.currentMocks(m.currentTest); mock != nil && mock.flushMock != nil {
		return mock.flushMock()
	}

	return nil
}

func (m *testNftablesProvider) currentMocks(t *testing.T) *nftablesProviderMockedMethods {
	m.lock.Lock()
	defer m.lock.Unlock()

	mocks := m.mocks[t]

	if mocks == nil {
		mocks = &nftablesProviderMockedMethods{}
		m.mocks[t] = mocks
	}

	m.currentTest = t
	return mocks
}
