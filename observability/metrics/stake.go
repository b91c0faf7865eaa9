package metrics

import (
	"math"
	"math/big"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"nhbstake/core/events"
)

type StakeMetrics struct {
	operations  *prometheus.CounterVec
	bonded      *prometheus.CounterVec
	unbonded    *prometheus.CounterVec
	claimsPaid  prometheus.Counter
	distributed *prometheus.CounterVec
	withdrawn   *prometheus.CounterVec
	unbondAll   prometheus.Gauge
}

var (
	stakeOnce     sync.Once
	stakeRegistry *StakeMetrics
)

func Stake() *StakeMetrics {
	stakeOnce.Do(func() {
		stakeRegistry = &StakeMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stake_operations_total",
				Help: "Count of stake engine calls by operation and outcome.",
			}, []string{"op", "outcome"}),
			bonded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stake_bonded_tokens_total",
				Help: "Tokens bonded per unbonding period.",
			}, []string{"period"}),
			unbonded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stake_unbonded_tokens_total",
				Help: "Tokens unbonded per unbonding period.",
			}, []string{"period"}),
			claimsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "stake_claims_paid_tokens_total",
				Help: "Matured unbonding claims paid out.",
			}),
			distributed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stake_rewards_distributed_total",
				Help: "Rewards moved into the points accumulator per asset.",
			}, []string{"asset"}),
			withdrawn: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stake_rewards_withdrawn_total",
				Help: "Rewards paid to stakers per asset.",
			}, []string{"asset"}),
			unbondAll: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "stake_unbond_all",
				Help: "Whether emergency unbond all mode is active.",
			}),
		}
		prometheus.MustRegister(
			stakeRegistry.operations,
			stakeRegistry.bonded,
			stakeRegistry.unbonded,
			stakeRegistry.claimsPaid,
			stakeRegistry.distributed,
			stakeRegistry.withdrawn,
			stakeRegistry.unbondAll,
		)
	})
	return stakeRegistry
}

// ObserveOperation records the outcome of one engine call.
func (m *StakeMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// Emit implements events.Emitter and folds engine events into the token
// counters.
func (m *StakeMetrics) Emit(evt events.Event) {
	if m == nil {
		return
	}
	switch e := evt.(type) {
	case events.StakeBonded:
		m.bonded.WithLabelValues(period(e.Period)).Add(toFloat(e.Amount))
	case events.StakeUnbonded:
		m.unbonded.WithLabelValues(period(e.Period)).Add(toFloat(e.Amount))
	case events.StakeClaimed:
		m.claimsPaid.Add(toFloat(e.Amount))
	case events.RewardsDistributed:
		m.distributed.WithLabelValues(labelAsset(e.Asset)).Add(toFloat(e.Amount))
	case events.RewardsWithdrawn:
		m.withdrawn.WithLabelValues(labelAsset(e.Asset)).Add(toFloat(e.Amount))
	case events.StakeUnbondAll:
		if e.Enabled {
			m.unbondAll.Set(1)
		} else {
			m.unbondAll.Set(0)
		}
	}
}

func period(p uint64) string { return strconv.FormatUint(p, 10) }

func labelAsset(asset string) string {
	if asset == "" {
		return "unknown"
	}
	return asset
}

func toFloat(value *big.Int) float64 {
	if value == nil || value.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
