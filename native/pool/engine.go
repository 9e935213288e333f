package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ethpool/core/events"
)

// Observer receives ledger telemetry after each operation. The metrics
// package provides the prometheus implementation.
type Observer interface {
	ObserveOperation(op string, err error)
	ObserveLedger(summary LedgerSummary)
	ObserveRewardsPaid(amount *big.Int)
	ObserveRefund(amount *big.Int)
	ObserveEpochFinalized(id uint64)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, error) {}
func (noopObserver) ObserveLedger(LedgerSummary)    {}
func (noopObserver) ObserveRewardsPaid(*big.Int)    {}
func (noopObserver) ObserveRefund(*big.Int)         {}
func (noopObserver) ObserveEpochFinalized(uint64)   {}

// Engine is the ledger facade. Operations are serialised by an internal
// mutex and each one commits its writes to the store in a single changeset.
type Engine struct {
	mu sync.Mutex

	store     Store
	authority Authority
	roles     RoleRegistry
	emitter   events.Emitter
	observer  Observer
	logger    *slog.Logger
	params    Params
	nowFn     func() int64
}

// NewEngine creates a pool engine over the supplied store with default
// parameters, a no-op emitter and an authority that grants nothing.
func NewEngine(store Store) *Engine {
	return &Engine{
		store:     store,
		authority: StaticAuthority{},
		emitter:   events.NoopEmitter{},
		observer:  noopObserver{},
		logger:    slog.Default(),
		params:    DefaultParams(),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetAuthority configures the capability provider. Passing nil denies every
// privileged call.
func (e *Engine) SetAuthority(authority Authority) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if authority == nil {
		e.authority = StaticAuthority{}
		return
	}
	e.authority = authority
}

// SetRoleRegistry enables GrantRole and RevokeRole.
func (e *Engine) SetRoleRegistry(roles RoleRegistry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roles = roles
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetObserver configures the telemetry sink.
func (e *Engine) SetObserver(observer Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if observer == nil {
		e.observer = noopObserver{}
		return
	}
	e.observer = observer
}

// SetLogger configures the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetParams replaces the date constraints after validating them.
func (e *Engine) SetParams(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = params
	return nil
}

// Params returns the active date constraints.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) begin() (*txn, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	return newTxn(e.store), nil
}

func (e *Engine) require(role string, caller common.Address) error {
	if e.authority == nil || !e.authority.HasRole(role, caller.Bytes()) {
		return ErrUnauthorized
	}
	return nil
}

// finish commits the operation, then emits and records telemetry. Nothing is
// emitted when the operation or its commit fails.
func (e *Engine) finish(op string, tx *txn, err error, emitted ...events.Event) error {
	if err == nil {
		if commitErr := tx.commit(); commitErr != nil {
			err = fmt.Errorf("pool: commit %s: %w", op, commitErr)
		}
	}
	e.observer.ObserveOperation(op, err)
	if err != nil {
		if IsRejection(err) {
			e.logger.Debug("pool operation rejected", slog.String("op", op), slog.String("reason", err.Error()))
		} else {
			e.logger.Error("pool operation failed", slog.String("op", op), slog.Any("error", err))
		}
		return err
	}
	for _, evt := range emitted {
		e.emitter.Emit(evt)
	}
	if ledger, lerr := tx.ledger(); lerr == nil {
		e.observer.ObserveLedger(summarize(ledger))
	}
	return nil
}

// Init creates epoch 0 from the genesis configuration.
func (e *Engine) Init(cfg GenesisConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return err
	}
	err = func() error {
		if !isPositive(cfg.RewardAmount) {
			return ErrInvalidAmount
		}
		if err := e.params.checkCutoff(cfg.StakeCutoff); err != nil {
			return err
		}
		if _, err := tx.ledger(); err == nil {
			return ErrAlreadyInitialised
		} else if !errors.Is(err, ErrNotInitialised) {
			return err
		}
		tx.putEpoch(&Epoch{
			ID:              0,
			RewardAmount:    copyBigInt(cfg.RewardAmount),
			StakeCutoff:     cfg.StakeCutoff,
			RewardDue:       cfg.StakeCutoff + e.params.SettlementWindow,
			QualifyingStake: big.NewInt(0),
		})
		tx.putLedger(&Ledger{
			Next:        NoNextEpoch{},
			TotalStaked: big.NewInt(0),
			RewardPool:  big.NewInt(0),
		})
		return nil
	}()
	if err := e.finish("init", tx, err); err != nil {
		return err
	}
	e.logger.Info("pool initialised",
		slog.String("reward", cfg.RewardAmount.String()),
		slog.Int64("stakeCutoff", cfg.StakeCutoff))
	return nil
}

// Stake locks amount for caller.
func (e *Engine) Stake(caller common.Address, amount *big.Int) (*StakeReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return nil, err
	}
	now := e.now()
	var receipt *StakeReceipt
	err = func() error {
		if !isPositive(amount) {
			return ErrInvalidAmount
		}
		ledger, current, err := (&lifecycle{tx: tx, params: e.params}).current()
		if err != nil {
			return err
		}
		account, err := tx.account(caller)
		if err != nil {
			return err
		}
		beforeCutoff := now <= current.StakeCutoff
		if account.HasStake() {
			if account.EntryEpoch < current.ID || (account.EntryEpoch == current.ID && !beforeCutoff) {
				return ErrMustUnstakeFirst
			}
		} else if beforeCutoff {
			account.EntryEpoch = current.ID
		} else {
			account.EntryEpoch = current.ID + 1
		}
		qualified := beforeCutoff && account.EntryEpoch <= current.ID
		account.Staked = new(big.Int).Add(account.Staked, amount)
		account.LastStakeAt = now
		ledger.TotalStaked = new(big.Int).Add(ledger.TotalStaked, amount)
		if qualified {
			current.QualifyingStake = new(big.Int).Add(current.QualifyingStake, amount)
			tx.putEpoch(current)
		}
		tx.putAccount(account)
		tx.putLedger(ledger)
		receipt = &StakeReceipt{
			Account:   caller,
			Amount:    copyBigInt(amount),
			Staked:    copyBigInt(account.Staked),
			Epoch:     account.EntryEpoch,
			Qualified: qualified,
		}
		return nil
	}()
	if err != nil {
		return nil, e.finish("stake", tx, err)
	}
	if err := e.finish("stake", tx, nil, newStakedEvent(receipt, now)); err != nil {
		return nil, err
	}
	e.logger.Info("stake accepted",
		slog.String("account", caller.Hex()),
		slog.String("amount", amount.String()),
		slog.Uint64("epoch", receipt.Epoch),
		slog.Bool("qualified", receipt.Qualified))
	return receipt, nil
}

// Unstake withdraws the caller's principal together with every finalised
// reward not yet claimed.
func (e *Engine) Unstake(caller common.Address) (*UnstakeReceipt, error) {
	return e.withdraw("unstake", caller, false)
}

// EmergencyUnstake withdraws while a due reward is still undeposited. The
// share of the unresolved current epoch is forfeited to the pool.
func (e *Engine) EmergencyUnstake(caller common.Address) (*UnstakeReceipt, error) {
	return e.withdraw("emergencyUnstake", caller, true)
}

func (e *Engine) withdraw(op string, caller common.Address, emergency bool) (*UnstakeReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return nil, err
	}
	now := e.now()
	var receipt *UnstakeReceipt
	err = func() error {
		ledger, current, err := (&lifecycle{tx: tx, params: e.params}).current()
		if err != nil {
			return err
		}
		account, err := tx.account(caller)
		if err != nil {
			return err
		}
		if !account.HasStake() {
			return ErrNothingStaked
		}
		participates := account.EntryEpoch <= current.ID
		blocked := participates && now >= current.RewardDue
		if blocked && !emergency {
			return ErrRewardsNotYetSettled
		}
		owed, err := pendingRewards(tx, account, current.ID)
		if err != nil {
			return err
		}
		principal := copyBigInt(account.Staked)
		if participates {
			current.QualifyingStake = saturatingSub(current.QualifyingStake, principal)
			tx.putEpoch(current)
		}
		ledger.RewardPool = saturatingSub(ledger.RewardPool, owed)
		ledger.TotalStaked = saturatingSub(ledger.TotalStaked, principal)
		account.Staked = big.NewInt(0)
		account.EntryEpoch = current.ID
		tx.putAccount(account)
		tx.putLedger(ledger)
		receipt = &UnstakeReceipt{
			Account:   caller,
			Principal: principal,
			Rewards:   owed,
			Payout:    new(big.Int).Add(principal, owed),
			Forfeited: blocked,
		}
		receipt.SettledThrough, receipt.HasSettled = account.LastSettledEpoch()
		return nil
	}()
	if err != nil {
		return nil, e.finish(op, tx, err)
	}
	if err := e.finish(op, tx, nil, newUnstakedEvent(receipt, emergency, now)); err != nil {
		return nil, err
	}
	e.observer.ObserveRewardsPaid(receipt.Rewards)
	e.logger.Info("stake withdrawn",
		slog.String("op", op),
		slog.String("account", caller.Hex()),
		slog.String("principal", receipt.Principal.String()),
		slog.String("rewards", receipt.Rewards.String()),
		slog.Bool("forfeited", receipt.Forfeited))
	return receipt, nil
}

// ConfigureNextEpoch stages the epoch that follows the current one.
func (e *Engine) ConfigureNextEpoch(caller common.Address, amount *big.Int, cutoff int64) (StagedEpoch, error) {
	return e.stage("configureNextEpoch", EventTypeNextEpochConfigured, caller, func(l *lifecycle) (uint64, StagedEpoch, error) {
		return l.configure(amount, cutoff)
	})
}

// AdjustPendingAmount replaces the reward of the staged epoch.
func (e *Engine) AdjustPendingAmount(caller common.Address, amount *big.Int) (StagedEpoch, error) {
	return e.stage("adjustPendingAmount", EventTypeNextEpochAmountAdjust, caller, func(l *lifecycle) (uint64, StagedEpoch, error) {
		return l.adjustAmount(amount)
	})
}

// AdjustPendingCutoff reschedules the stake cutoff of the staged epoch.
func (e *Engine) AdjustPendingCutoff(caller common.Address, cutoff int64) (StagedEpoch, error) {
	return e.stage("adjustPendingCutoff", EventTypeNextEpochCutoffAdjust, caller, func(l *lifecycle) (uint64, StagedEpoch, error) {
		return l.adjustCutoff(cutoff, e.now())
	})
}

func (e *Engine) stage(op, eventType string, caller common.Address, apply func(*lifecycle) (uint64, StagedEpoch, error)) (StagedEpoch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return StagedEpoch{}, err
	}
	if err := e.require(RoleAdministrator, caller); err != nil {
		return StagedEpoch{}, e.finish(op, tx, err)
	}
	id, staged, err := apply(&lifecycle{tx: tx, params: e.params})
	if err != nil {
		return StagedEpoch{}, e.finish(op, tx, err)
	}
	if err := e.finish(op, tx, nil, newNextEpochEvent(eventType, caller, id, staged)); err != nil {
		return StagedEpoch{}, err
	}
	e.logger.Info("next epoch staged",
		slog.String("op", op),
		slog.Uint64("epoch", id),
		slog.String("reward", staged.RewardAmount.String()),
		slog.Int64("stakeCutoff", staged.StakeCutoff))
	return staged, nil
}

// DepositEpochReward accepts the promised reward of the current epoch and
// advances to the staged one. When nothing qualified the deposit is refunded
// in full and the epoch is still finalised.
func (e *Engine) DepositEpochReward(caller common.Address, amount *big.Int) (*DepositReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return nil, err
	}
	now := e.now()
	var (
		receipt   *DepositReceipt
		finalized *Epoch
		next      *Epoch
	)
	err = func() error {
		if err := e.require(RoleDepositor, caller); err != nil {
			return err
		}
		lc := &lifecycle{tx: tx, params: e.params}
		ledger, current, err := lc.current()
		if err != nil {
			return err
		}
		if now < current.RewardDue {
			return ErrTooSoon
		}
		if _, ok := Staged(ledger.Next); !ok {
			return ErrNoPendingEpoch
		}
		if amount == nil || amount.Cmp(current.RewardAmount) != 0 {
			return ErrWrongAmount
		}
		receipt = &DepositReceipt{
			Epoch:    current.ID,
			Amount:   copyBigInt(amount),
			Retained: big.NewInt(0),
			Refunded: big.NewInt(0),
		}
		refund := !isPositive(current.QualifyingStake)
		if refund {
			receipt.Refunded = copyBigInt(amount)
		} else {
			receipt.Retained = copyBigInt(amount)
			ledger.RewardPool = new(big.Int).Add(ledger.RewardPool, amount)
			tx.putLedger(ledger)
		}
		finalized, next, err = lc.finalizeAndAdvance(now, refund)
		if err != nil {
			return err
		}
		receipt.NextEpoch = next.ID
		return nil
	}()
	if err != nil {
		return nil, e.finish("depositEpochReward", tx, err)
	}
	if err := e.finish("depositEpochReward", tx, nil,
		newDepositEvent(caller, receipt),
		newEpochFinalizedEvent(finalized, next),
	); err != nil {
		return nil, err
	}
	e.observer.ObserveEpochFinalized(finalized.ID)
	if receipt.Refunded.Sign() > 0 {
		e.observer.ObserveRefund(receipt.Refunded)
	}
	e.logger.Info("epoch finalised",
		slog.Uint64("epoch", finalized.ID),
		slog.String("qualifyingStake", finalized.QualifyingStake.String()),
		slog.String("retained", receipt.Retained.String()),
		slog.String("refunded", receipt.Refunded.String()),
		slog.Uint64("nextEpoch", next.ID),
		slog.Int64("nextRewardDue", next.RewardDue))
	return receipt, nil
}

// GrantRole adds member to role. Requires the administrator capability.
func (e *Engine) GrantRole(caller common.Address, role string, member common.Address) error {
	return e.changeRole("grantRole", EventTypeRoleGranted, caller, role, member)
}

// RevokeRole removes member from role. Requires the administrator capability.
func (e *Engine) RevokeRole(caller common.Address, role string, member common.Address) error {
	return e.changeRole("revokeRole", EventTypeRoleRevoked, caller, role, member)
}

func (e *Engine) changeRole(op, eventType string, caller common.Address, role string, member common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return err
	}
	err = func() error {
		if err := e.require(RoleAdministrator, caller); err != nil {
			return err
		}
		if !KnownRole(role) {
			return ErrUnknownRole
		}
		if e.roles == nil {
			return ErrRolesImmutable
		}
		if eventType == EventTypeRoleGranted {
			return e.roles.SetRole(role, member.Bytes())
		}
		return e.roles.RemoveRole(role, member.Bytes())
	}()
	if err != nil {
		return e.finish(op, tx, err)
	}
	if err := e.finish(op, tx, nil, newRoleEvent(eventType, role, caller, member)); err != nil {
		return err
	}
	e.logger.Info("role membership changed",
		slog.String("op", op),
		slog.String("role", role),
		slog.String("member", member.Hex()))
	return nil
}

func summarize(ledger *Ledger) LedgerSummary {
	_, pending := Staged(ledger.Next)
	return LedgerSummary{
		CurrentEpoch: ledger.CurrentEpoch,
		TotalStaked:  copyBigInt(ledger.TotalStaked),
		RewardPool:   copyBigInt(ledger.RewardPool),
		Held:         ledger.Held(),
		HasPending:   pending,
	}
}
