package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the trading cycle. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	AuthFailures     prometheus.Counter
	EnvCorrections   prometheus.Counter
	UsersDisabled    prometheus.Counter
	ExchangeRequests *prometheus.CounterVec // labels: endpoint, outcome
	UsersProcessed   *prometheus.CounterVec // labels: result
	Orders           *prometheus.CounterVec // labels: mode, side
	CycleDuration    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_auth_failures_total",
			Help: "Classified authentication failures",
		}),
		EnvCorrections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_env_corrections_total",
			Help: "TESTNET flags flipped after a successful alternate-environment probe",
		}),
		UsersDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_users_disabled_total",
			Help: "Users disabled after repeated authentication failures",
		}),
		ExchangeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_exchange_requests_total",
			Help: "Exchange requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		UsersProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_users_processed_total",
			Help: "Per-user cycle results",
		}, []string{"result"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_orders_total",
			Help: "Orders by mode (dry_run|live) and side",
		}, []string{"mode", "side"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotrader_cycle_duration_seconds",
			Help:    "Duration of a full pass over all users",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.AuthFailures,
			m.EnvCorrections,
			m.UsersDisabled,
			m.ExchangeRequests,
			m.UsersProcessed,
			m.Orders,
			m.CycleDuration,
		)
	}
	return m
}

// ObserveRequest counts one exchange request.
func (m *Metrics) ObserveRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.ExchangeRequests.WithLabelValues(endpoint, outcome).Inc()
}

// UserResult counts one per-user cycle result.
func (m *Metrics) UserResult(result string) {
	if m == nil {
		return
	}
	m.UsersProcessed.WithLabelValues(result).Inc()
}

// Order counts one executed or simulated order.
func (m *Metrics) Order(mode, side string) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(mode, side).Inc()
}

// CycleDone records a cycle's duration.
func (m *Metrics) CycleDone(d time.Duration) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
}

func (m *Metrics) authFailure() {
	if m != nil {
		m.AuthFailures.Inc()
	}
}

func (m *Metrics) envCorrected() {
	if m != nil {
		m.EnvCorrections.Inc()
	}
}

func (m *Metrics) disabled() {
	if m != nil {
		m.UsersDisabled.Inc()
	}
}
