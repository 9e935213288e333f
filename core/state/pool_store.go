package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ethpool/native/pool"
)

// PoolStore persists the pool ledger, epoch records and accounts through the
// state manager. It implements pool.Store; every changeset is written in a
// single storage batch.
type PoolStore struct {
	manager *Manager
}

// NewPoolStore binds a pool store to the provided manager.
func NewPoolStore(manager *Manager) *PoolStore {
	return &PoolStore{manager: manager}
}

type storedLedger struct {
	CurrentEpoch uint64
	HasNext      bool
	NextReward   *big.Int
	NextCutoff   uint64
	TotalStaked  *big.Int
	RewardPool   *big.Int
}

type storedEpoch struct {
	ID              uint64
	RewardAmount    *big.Int
	StakeCutoff     uint64
	RewardDue       uint64
	QualifyingStake *big.Int
	Finalized       bool
	FinalizedAt     uint64
	Refunded        bool
}

type storedAccount struct {
	Address     common.Address
	Staked      *big.Int
	LastStakeAt uint64
	EntryEpoch  uint64
}

// ErrNegativeInstant is returned by Commit when a record carries a timestamp
// before the unix epoch. Instants are stored unsigned.
var ErrNegativeInstant = errors.New("state: negative instant")

func toUnix(ts int64) uint64 {
	return uint64(ts)
}

func checkInstants(cs *pool.Changeset) error {
	for _, id := range cs.EpochIDs() {
		e := cs.Epochs[id]
		if e.StakeCutoff < 0 || e.RewardDue < 0 || e.FinalizedAt < 0 {
			return fmt.Errorf("%w: epoch %d", ErrNegativeInstant, id)
		}
	}
	for _, addr := range cs.AccountAddresses() {
		if cs.Accounts[addr].LastStakeAt < 0 {
			return fmt.Errorf("%w: account %s", ErrNegativeInstant, addr.Hex())
		}
	}
	if cs.Ledger != nil {
		if staged, ok := pool.Staged(cs.Ledger.Next); ok && staged.StakeCutoff < 0 {
			return fmt.Errorf("%w: staged cutoff", ErrNegativeInstant)
		}
	}
	return nil
}

func nonNil(value *big.Int) *big.Int {
	if value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(value)
}

func newStoredLedger(l *pool.Ledger) *storedLedger {
	stored := &storedLedger{
		CurrentEpoch: l.CurrentEpoch,
		NextReward:   big.NewInt(0),
		TotalStaked:  nonNil(l.TotalStaked),
		RewardPool:   nonNil(l.RewardPool),
	}
	if staged, ok := pool.Staged(l.Next); ok {
		stored.HasNext = true
		stored.NextReward = nonNil(staged.RewardAmount)
		stored.NextCutoff = toUnix(staged.StakeCutoff)
	}
	return stored
}

func (s *storedLedger) toLedger() *pool.Ledger {
	ledger := &pool.Ledger{
		CurrentEpoch: s.CurrentEpoch,
		Next:         pool.NoNextEpoch{},
		TotalStaked:  nonNil(s.TotalStaked),
		RewardPool:   nonNil(s.RewardPool),
	}
	if s.HasNext {
		ledger.Next = pool.StagedEpoch{RewardAmount: nonNil(s.NextReward), StakeCutoff: int64(s.NextCutoff)}
	}
	return ledger
}

func newStoredEpoch(e *pool.Epoch) *storedEpoch {
	return &storedEpoch{
		ID:              e.ID,
		RewardAmount:    nonNil(e.RewardAmount),
		StakeCutoff:     toUnix(e.StakeCutoff),
		RewardDue:       toUnix(e.RewardDue),
		QualifyingStake: nonNil(e.QualifyingStake),
		Finalized:       e.Finalized,
		FinalizedAt:     toUnix(e.FinalizedAt),
		Refunded:        e.Refunded,
	}
}

func (s *storedEpoch) toEpoch() *pool.Epoch {
	return &pool.Epoch{
		ID:              s.ID,
		RewardAmount:    nonNil(s.RewardAmount),
		StakeCutoff:     int64(s.StakeCutoff),
		RewardDue:       int64(s.RewardDue),
		QualifyingStake: nonNil(s.QualifyingStake),
		Finalized:       s.Finalized,
		FinalizedAt:     int64(s.FinalizedAt),
		Refunded:        s.Refunded,
	}
}

func newStoredAccount(a *pool.Account) *storedAccount {
	return &storedAccount{
		Address:     a.Address,
		Staked:      nonNil(a.Staked),
		LastStakeAt: toUnix(a.LastStakeAt),
		EntryEpoch:  a.EntryEpoch,
	}
}

func (s *storedAccount) toAccount() *pool.Account {
	return &pool.Account{
		Address:     s.Address,
		Staked:      nonNil(s.Staked),
		LastStakeAt: int64(s.LastStakeAt),
		EntryEpoch:  s.EntryEpoch,
	}
}

// Ledger implements pool.Store.
func (s *PoolStore) Ledger() (*pool.Ledger, bool, error) {
	stored := new(storedLedger)
	ok, err := s.manager.KVGet(PoolLedgerKey(), stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: load pool ledger: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return stored.toLedger(), true, nil
}

// Epoch implements pool.Store.
func (s *PoolStore) Epoch(id uint64) (*pool.Epoch, bool, error) {
	stored := new(storedEpoch)
	ok, err := s.manager.KVGet(PoolEpochKey(id), stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: load epoch %d: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}
	return stored.toEpoch(), true, nil
}

// Account implements pool.Store.
func (s *PoolStore) Account(addr common.Address) (*pool.Account, bool, error) {
	stored := new(storedAccount)
	ok, err := s.manager.KVGet(PoolAccountKey(addr), stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: load account %s: %w", addr.Hex(), err)
	}
	if !ok {
		return nil, false, nil
	}
	return stored.toAccount(), true, nil
}

// Commit implements pool.Store. Records are written in a deterministic order
// inside one batch.
func (s *PoolStore) Commit(cs *pool.Changeset) error {
	if cs.Empty() {
		return nil
	}
	if err := checkInstants(cs); err != nil {
		return err
	}
	w := s.manager.NewWriter()
	for _, id := range cs.EpochIDs() {
		w.Put(PoolEpochKey(id), newStoredEpoch(cs.Epochs[id]))
	}
	for _, addr := range cs.AccountAddresses() {
		w.Put(PoolAccountKey(addr), newStoredAccount(cs.Accounts[addr]))
	}
	if cs.Ledger != nil {
		w.Put(PoolLedgerKey(), newStoredLedger(cs.Ledger))
	}
	if err := w.Commit(); err != nil {
		return fmt.Errorf("state: commit pool changeset: %w", err)
	}
	return nil
}
