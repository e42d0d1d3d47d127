package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes simulator activity to Prometheus.
type Recorder struct {
	tradesTotal *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	equity      *prometheus.GaugeVec
	position    *prometheus.GaugeVec
	lastPrice   *prometheus.GaugeVec
	stopPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		tradesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_trades_total",
				Help: "Total number of closed trades",
			},
			[]string{"symbol", "direction", "exit_reason"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		equity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backtest_equity",
				Help: "Capital including unrealized PnL",
			},
			[]string{"symbol"},
		),
		position: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backtest_position_direction",
				Help: "1 when long, -1 when short, 0 when flat",
			},
			[]string{"symbol"},
		),
		lastPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backtest_last_price",
				Help: "Last processed close for a symbol",
			},
			[]string{"symbol"},
		),
		stopPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backtest_stop_price",
				Help: "Current trailing stop of the open position",
			},
			[]string{"symbol"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtest_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTrade counts a closed trade.
func (r *Recorder) RecordTrade(symbol, direction, exitReason string) {
	r.tradesTotal.WithLabelValues(symbol, direction, exitReason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordBar records the state after a processed bar.
func (r *Recorder) RecordBar(symbol string, price, equity, direction, stop float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
	r.equity.WithLabelValues(symbol).Set(equity)
	r.position.WithLabelValues(symbol).Set(direction)
	r.stopPrice.WithLabelValues(symbol).Set(stop)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
