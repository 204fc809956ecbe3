package metrics

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type VaultMetrics struct {
	stakesOpened  prometheus.Counter
	closures      *prometheus.CounterVec
	penaltyRouted *prometheus.CounterVec
	poolTopUps    prometheus.Counter
	custodySweeps prometheus.Counter
	rewardPool    prometheus.Gauge
	sharePrice    prometheus.Gauge
	totalShares   prometheus.Gauge
	totalBurned   prometheus.Gauge
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			stakesOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_stakes_opened_total",
				Help: "Count of stakes opened against the vault module.",
			}),
			closures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_closures_total",
				Help: "Count of stake closures segmented by settlement scope.",
			}, []string{"scope"}),
			penaltyRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_penalty_routed_total",
				Help: "Cumulative penalty amounts routed per destination leg.",
			}, []string{"destination"}),
			poolTopUps: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_pool_topups_total",
				Help: "Count of daily reward pool top-ups.",
			}),
			custodySweeps: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_custody_sweeps_total",
				Help: "Count of emergency custody sweeps executed.",
			}),
			rewardPool: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_reward_pool",
				Help: "Undistributed reward pool balance in base units.",
			}),
			sharePrice: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_share_price",
				Help: "Current share price in price scale units.",
			}),
			totalShares: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_total_shares",
				Help: "Outstanding shares across active stakes.",
			}),
			totalBurned: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_total_burned",
				Help: "Cumulative tokens destroyed by penalty burns.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.stakesOpened,
			vaultRegistry.closures,
			vaultRegistry.penaltyRouted,
			vaultRegistry.poolTopUps,
			vaultRegistry.custodySweeps,
			vaultRegistry.rewardPool,
			vaultRegistry.sharePrice,
			vaultRegistry.totalShares,
			vaultRegistry.totalBurned,
		)
	})
	return vaultRegistry
}

func (m *VaultMetrics) ObserveStakeOpened() {
	if m == nil {
		return
	}
	m.stakesOpened.Inc()
}

func (m *VaultMetrics) ObserveClosure(scope string) {
	if m == nil {
		return
	}
	if scope == "" {
		scope = "unknown"
	}
	m.closures.WithLabelValues(scope).Inc()
}

// AddPenaltyRouted accumulates the amount routed to a penalty destination.
// Destinations should be stable strings such as "burn", "pool" or "treasury".
func (m *VaultMetrics) AddPenaltyRouted(destination string, amount *big.Int) {
	if m == nil {
		return
	}
	if destination == "" {
		destination = "unknown"
	}
	if value := bigToFloat(amount); value > 0 {
		m.penaltyRouted.WithLabelValues(destination).Add(value)
	}
}

func (m *VaultMetrics) IncPoolTopUp() {
	if m == nil {
		return
	}
	m.poolTopUps.Inc()
}

func (m *VaultMetrics) IncCustodySweep() {
	if m == nil {
		return
	}
	m.custodySweeps.Inc()
}

// SetAggregates refreshes the vault-wide gauges after a mutation commits.
func (m *VaultMetrics) SetAggregates(rewardPool, sharePrice, totalShares, totalBurned *big.Int) {
	if m == nil {
		return
	}
	m.rewardPool.Set(bigToFloat(rewardPool))
	m.sharePrice.Set(bigToFloat(sharePrice))
	m.totalShares.Set(bigToFloat(totalShares))
	m.totalBurned.Set(bigToFloat(totalBurned))
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
