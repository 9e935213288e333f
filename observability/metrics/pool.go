package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"ethpool/native/pool"
)

// PoolMetrics exports ledger telemetry. It satisfies pool.Observer and every
// method is safe on a nil receiver.
type PoolMetrics struct {
	currentEpoch    prometheus.Gauge
	totalStaked     prometheus.Gauge
	rewardPool      prometheus.Gauge
	pendingEpoch    prometheus.Gauge
	operations      *prometheus.CounterVec
	rewardsPaid     prometheus.Counter
	rewardsRefunded prometheus.Counter
	epochsFinalized prometheus.Counter
	lastFinalizedID prometheus.Gauge
}

var (
	poolOnce     sync.Once
	poolRegistry *PoolMetrics
)

var _ pool.Observer = (*PoolMetrics)(nil)

func Pool() *PoolMetrics {
	poolOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			currentEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ethpool_current_epoch",
				Help: "Identifier of the epoch currently accepting stake.",
			}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ethpool_total_staked",
				Help: "Principal currently locked by all accounts in base units.",
			}),
			rewardPool: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ethpool_reward_pool",
				Help: "Deposited rewards not yet paid out, including truncation dust.",
			}),
			pendingEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ethpool_next_epoch_configured",
				Help: "1 when the next epoch has been staged, 0 otherwise.",
			}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ethpool_operations_total",
				Help: "Ledger operations segmented by operation and result.",
			}, []string{"op", "result"}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ethpool_rewards_paid_total",
				Help: "Rewards paid out to stakers in base units.",
			}),
			rewardsRefunded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ethpool_rewards_refunded_total",
				Help: "Reward deposits returned because no stake qualified.",
			}),
			epochsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ethpool_epochs_finalized_total",
				Help: "Number of epochs finalised by reward deposits.",
			}),
			lastFinalizedID: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ethpool_last_finalized_epoch",
				Help: "Identifier of the most recently finalised epoch.",
			}),
		}
		prometheus.MustRegister(
			poolRegistry.currentEpoch,
			poolRegistry.totalStaked,
			poolRegistry.rewardPool,
			poolRegistry.pendingEpoch,
			poolRegistry.operations,
			poolRegistry.rewardsPaid,
			poolRegistry.rewardsRefunded,
			poolRegistry.epochsFinalized,
			poolRegistry.lastFinalizedID,
		)
	})
	return poolRegistry
}

// ObserveOperation implements pool.Observer.
func (m *PoolMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	result := "ok"
	switch {
	case err == nil:
	case pool.IsRejection(err):
		result = "rejected"
	default:
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// ObserveLedger implements pool.Observer.
func (m *PoolMetrics) ObserveLedger(summary pool.LedgerSummary) {
	if m == nil {
		return
	}
	m.currentEpoch.Set(float64(summary.CurrentEpoch))
	m.totalStaked.Set(toFloat(summary.TotalStaked))
	m.rewardPool.Set(toFloat(summary.RewardPool))
	if summary.HasPending {
		m.pendingEpoch.Set(1)
	} else {
		m.pendingEpoch.Set(0)
	}
}

// ObserveRewardsPaid implements pool.Observer.
func (m *PoolMetrics) ObserveRewardsPaid(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsPaid.Add(toFloat(amount))
}

// ObserveRefund implements pool.Observer.
func (m *PoolMetrics) ObserveRefund(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsRefunded.Add(toFloat(amount))
}

// ObserveEpochFinalized implements pool.Observer.
func (m *PoolMetrics) ObserveEpochFinalized(id uint64) {
	if m == nil {
		return
	}
	m.epochsFinalized.Inc()
	m.lastFinalizedID.Set(float64(id))
}

// InitOperation pre-creates the series for op so dashboards show zeroes.
func (m *PoolMetrics) InitOperation(op string) {
	if m == nil {
		return
	}
	for _, result := range []string{"ok", "rejected", "error"} {
		m.operations.WithLabelValues(op, result).Add(0)
	}
}

func toFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	out, _ := new(big.Float).SetInt(value).Float64()
	return out
}
