package pool

import (
	"bytes"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists the epoch record store, the account store and the ledger
// singleton. Implementations must return copies from reads and apply a
// Changeset atomically.
type Store interface {
	Ledger() (*Ledger, bool, error)
	Epoch(id uint64) (*Epoch, bool, error)
	Account(addr common.Address) (*Account, bool, error)
	Commit(cs *Changeset) error
}

// Changeset is the write set produced by a single operation.
type Changeset struct {
	Ledger   *Ledger
	Epochs   map[uint64]*Epoch
	Accounts map[common.Address]*Account
}

// NewChangeset returns an empty write set.
func NewChangeset() *Changeset {
	return &Changeset{
		Epochs:   make(map[uint64]*Epoch),
		Accounts: make(map[common.Address]*Account),
	}
}

// Empty reports whether the changeset carries no writes.
func (c *Changeset) Empty() bool {
	return c == nil || (c.Ledger == nil && len(c.Epochs) == 0 && len(c.Accounts) == 0)
}

// EpochIDs returns the staged epoch identifiers in ascending order.
func (c *Changeset) EpochIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Epochs))
	for id := range c.Epochs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AccountAddresses returns the staged account addresses in byte order.
func (c *Changeset) AccountAddresses() []common.Address {
	addrs := make([]common.Address, 0, len(c.Accounts))
	for addr := range c.Accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
	return addrs
}

// txn stages reads and writes for one operation. Reads prefer values already
// loaded by the operation so it observes its own writes; only records passed
// to a put method reach the Changeset.
type txn struct {
	store Store
	cs    *Changeset

	ledgerCache  *Ledger
	epochCache   map[uint64]*Epoch
	accountCache map[common.Address]*Account
}

func newTxn(store Store) *txn {
	return &txn{
		store:        store,
		cs:           NewChangeset(),
		epochCache:   make(map[uint64]*Epoch),
		accountCache: make(map[common.Address]*Account),
	}
}

func (t *txn) ledger() (*Ledger, error) {
	if t.ledgerCache != nil {
		return t.ledgerCache, nil
	}
	ledger, ok, err := t.store.Ledger()
	if err != nil {
		return nil, err
	}
	if !ok || ledger == nil {
		return nil, ErrNotInitialised
	}
	t.ledgerCache = ledger.Clone()
	return t.ledgerCache, nil
}

func (t *txn) epoch(id uint64) (*Epoch, error) {
	if cached, ok := t.epochCache[id]; ok {
		return cached, nil
	}
	epoch, ok, err := t.store.Epoch(id)
	if err != nil {
		return nil, err
	}
	if !ok || epoch == nil {
		return nil, ErrEpochNotFound
	}
	epoch = epoch.Clone()
	t.epochCache[id] = epoch
	return epoch, nil
}

func (t *txn) account(addr common.Address) (*Account, error) {
	if cached, ok := t.accountCache[addr]; ok {
		return cached, nil
	}
	account, ok, err := t.store.Account(addr)
	if err != nil {
		return nil, err
	}
	if !ok || account == nil {
		account = newAccount(addr)
	} else {
		account = account.Clone()
	}
	t.accountCache[addr] = account
	return account, nil
}

func (t *txn) putLedger(ledger *Ledger) {
	t.ledgerCache = ledger
	t.cs.Ledger = ledger
}

func (t *txn) putEpoch(epoch *Epoch) {
	t.epochCache[epoch.ID] = epoch
	t.cs.Epochs[epoch.ID] = epoch
}

func (t *txn) putAccount(account *Account) {
	t.accountCache[account.Address] = account
	t.cs.Accounts[account.Address] = account
}

func (t *txn) commit() error {
	if t.cs.Empty() {
		return nil
	}
	return t.store.Commit(t.cs)
}

// MemStore is an arena-style in-memory Store keyed by epoch identifier and
// account address.
type MemStore struct {
	mu       sync.RWMutex
	ledger   *Ledger
	epochs   map[uint64]*Epoch
	accounts map[common.Address]*Account
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		epochs:   make(map[uint64]*Epoch),
		accounts: make(map[common.Address]*Account),
	}
}

// Ledger implements Store.
func (m *MemStore) Ledger() (*Ledger, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ledger == nil {
		return nil, false, nil
	}
	return m.ledger.Clone(), true, nil
}

// Epoch implements Store.
func (m *MemStore) Epoch(id uint64) (*Epoch, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	epoch, ok := m.epochs[id]
	if !ok {
		return nil, false, nil
	}
	return epoch.Clone(), true, nil
}

// Account implements Store.
func (m *MemStore) Account(addr common.Address) (*Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[addr]
	if !ok {
		return nil, false, nil
	}
	return account.Clone(), true, nil
}

// Commit implements Store.
func (m *MemStore) Commit(cs *Changeset) error {
	if cs.Empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs.Ledger != nil {
		m.ledger = cs.Ledger.Clone()
	}
	for id, epoch := range cs.Epochs {
		m.epochs[id] = epoch.Clone()
	}
	for addr, account := range cs.Accounts {
		m.accounts[addr] = account.Clone()
	}
	return nil
}

// AccountCount returns the number of accounts ever created.
func (m *MemStore) AccountCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// StakeSum sums the staked amount across all accounts.
func (m *MemStore) StakeSum() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := big.NewInt(0)
	for _, account := range m.accounts {
		sum.Add(sum, copyBigInt(account.Staked))
	}
	return sum
}
