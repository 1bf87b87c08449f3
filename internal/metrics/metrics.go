package metrics

// metrics.go — Prometheus mirror of the engine's statistics() contract
// (§4.1). Nothing here drives engine behavior; it only republishes
// domain.Statistics and lifecycle events as counters/gauges for
// scraping.

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

const namespace = "diparb"

// Collector holds every instrument the engine/rotation/orderbook
// components report through. Build one with New and wire it into the
// engine's event subscription and the supervisor's tick loop.
type Collector struct {
	roundsMonitored  prometheus.Counter
	roundsCompleted  prometheus.Counter
	roundsSuccessful prometheus.Counter
	roundsExpired    prometheus.Counter

	signalsDetected prometheus.Counter
	leg1Filled      prometheus.Counter
	leg2Filled      prometheus.Counter

	cumulativeSpent  prometheus.Gauge
	cumulativeProfit prometheus.Gauge

	rotations       *prometheus.CounterVec
	pendingRedeems  prometheus.Gauge
	redemptionRetry *prometheus.CounterVec

	wsReconnects prometheus.Counter
	executionDur *prometheus.HistogramVec
}

// New registers every instrument against reg and returns a ready
// Collector. Pass prometheus.NewRegistry() in tests, or
// prometheus.DefaultRegisterer in cmd/dipengine.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		roundsMonitored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "rounds_monitored_total",
			Help: "Rounds the engine has opened.",
		}),
		roundsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "rounds_completed_total",
			Help: "Rounds that reached a terminal state.",
		}),
		roundsSuccessful: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "rounds_successful_total",
			Help: "Rounds that filled both legs.",
		}),
		roundsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "rounds_expired_total",
			Help: "Rounds that expired after Leg1 filled without a Leg2 hedge in time.",
		}),
		signalsDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "signals_detected_total",
			Help: "Leg1/Leg2 signals emitted by the detector.",
		}),
		leg1Filled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "leg1_filled_total",
			Help: "Leg1 fills executed.",
		}),
		leg2Filled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "leg2_filled_total",
			Help: "Leg2 fills executed.",
		}),
		cumulativeSpent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "engine", Name: "cumulative_spent_usdc",
			Help: "Total quote asset spent across all fills.",
		}),
		cumulativeProfit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "engine", Name: "cumulative_profit_usdc",
			Help: "Total realized profit across completed rounds.",
		}),
		rotations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rotation", Name: "rotations_total",
			Help: "Market rotations by reason.",
		}, []string{"reason"}),
		pendingRedeems: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "rotation", Name: "pending_redemptions",
			Help: "Current size of the pending redemption queue.",
		}),
		redemptionRetry: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rotation", Name: "redemption_retries_total",
			Help: "Redemption retry attempts by outcome.",
		}, []string{"outcome"}),
		wsReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "reconnects_total",
			Help: "WebSocket reconnect attempts.",
		}),
		executionDur: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "execution", Name: "leg_duration_seconds",
			Help:    "Elapsed time placing a leg's marketable order, by leg and outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"leg", "success"}),
	}
}

// Refresh republishes the engine's monotonic counters. Safe to call
// repeatedly: counters advance only by the positive difference from their
// current value, and gauges are Set to the absolute value.
func (c *Collector) Refresh(stats domain.Statistics) {
	setCounterTo(c.roundsMonitored, float64(stats.RoundsMonitored))
	setCounterTo(c.roundsCompleted, float64(stats.RoundsCompleted))
	setCounterTo(c.roundsSuccessful, float64(stats.RoundsSuccessful))
	setCounterTo(c.roundsExpired, float64(stats.RoundsExpired))
	setCounterTo(c.signalsDetected, float64(stats.SignalsDetected))
	setCounterTo(c.leg1Filled, float64(stats.Leg1Filled))
	setCounterTo(c.leg2Filled, float64(stats.Leg2Filled))
	c.cumulativeSpent.Set(stats.CumulativeSpent)
	c.cumulativeProfit.Set(stats.CumulativeProfit)
}

// ObserveRotation records a rotation event by reason (marketEnded,
// manual, error).
func (c *Collector) ObserveRotation(reason domain.RotateReason) {
	c.rotations.WithLabelValues(reason.String()).Inc()
}

// SetPendingRedemptions republishes the queue depth on every tick.
func (c *Collector) SetPendingRedemptions(n int) {
	c.pendingRedeems.Set(float64(n))
}

// ObserveRedemptionRetry records one retry attempt, success or failure.
func (c *Collector) ObserveRedemptionRetry(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.redemptionRetry.WithLabelValues(outcome).Inc()
}

// ObserveReconnect records one transport reconnect attempt.
func (c *Collector) ObserveReconnect() {
	c.wsReconnects.Inc()
}

// ObserveExecution records how long a leg's marketable order took.
func (c *Collector) ObserveExecution(leg domain.SignalLeg, success bool, seconds float64) {
	c.executionDur.WithLabelValues(leg.String(), boolLabel(success)).Observe(seconds)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// setCounterTo nudges a Counter toward an absolute monotonic value.
// Counters only support Add/Inc, so Refresh tracks the last-seen total
// per instrument and adds the delta; a restart (stats reset below the
// last-seen value) is treated as a new baseline rather than negative Add.
func setCounterTo(c prometheus.Counter, target float64) {
	lastSeenMu.Lock()
	defer lastSeenMu.Unlock()

	delta := target - lastSeen[c]
	if delta > 0 {
		c.Add(delta)
	}
	lastSeen[c] = target
}

var (
	lastSeenMu sync.Mutex
	lastSeen   = map[prometheus.Counter]float64{}
)
