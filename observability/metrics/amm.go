package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type AMMMetrics struct {
	swapsExecuted    *prometheus.CounterVec
	liquidityOps     *prometheus.CounterVec
	refundAttempts   *prometheus.CounterVec
	transferFailures *prometheus.CounterVec
	duplicateRefs    prometheus.Counter
	poolReserve      *prometheus.GaugeVec
}

var (
	ammOnce     sync.Once
	ammRegistry *AMMMetrics
)

func AMM() *AMMMetrics {
	ammOnce.Do(func() {
		ammRegistry = &AMMMetrics{
			swapsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "amm_swaps_executed_total",
				Help: "Count of committed swaps by pool.",
			}, []string{"pool"}),
			liquidityOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "amm_liquidity_operations_total",
				Help: "Count of committed liquidity adds/removes by kind.",
			}, []string{"kind"}),
			refundAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "amm_refund_attempts_total",
				Help: "Count of best-effort refunds by outcome.",
			}, []string{"outcome"}),
			transferFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "amm_transfer_failures_total",
				Help: "Count of failed external transfer legs by direction.",
			}, []string{"direction"}),
			duplicateRefs: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "amm_duplicate_references_total",
				Help: "Count of rejected replays of an external transfer reference.",
			}),
			poolReserve: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "amm_pool_reserve",
				Help: "Current reserve per pool side in native token units.",
			}, []string{"pool", "side"}),
		}
		prometheus.MustRegister(
			ammRegistry.swapsExecuted,
			ammRegistry.liquidityOps,
			ammRegistry.refundAttempts,
			ammRegistry.transferFailures,
			ammRegistry.duplicateRefs,
			ammRegistry.poolReserve,
		)
	})
	return ammRegistry
}

func (m *AMMMetrics) ObserveSwap(pool string) {
	if m == nil {
		return
	}
	if pool == "" {
		pool = "unknown"
	}
	m.swapsExecuted.WithLabelValues(pool).Inc()
}

func (m *AMMMetrics) ObserveLiquidityOp(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.liquidityOps.WithLabelValues(kind).Inc()
}

func (m *AMMMetrics) ObserveRefund(succeeded bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	m.refundAttempts.WithLabelValues(outcome).Inc()
}

func (m *AMMMetrics) IncTransferFailure(direction string) {
	if m == nil {
		return
	}
	if direction == "" {
		direction = "unknown"
	}
	m.transferFailures.WithLabelValues(direction).Inc()
}

func (m *AMMMetrics) IncDuplicateReference() {
	if m == nil {
		return
	}
	m.duplicateRefs.Inc()
}

func (m *AMMMetrics) SetPoolReserve(pool, side string, amount float64) {
	if m == nil {
		return
	}
	m.poolReserve.WithLabelValues(pool, side).Set(amount)
}
