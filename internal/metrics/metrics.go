// Package metrics holds the Prometheus instruments of the engine. Metrics
// live on their own registry and are exported as a node-exporter textfile;
// the engine has no HTTP surface to scrape.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "predictamm"

// Metrics contains all Prometheus metrics for the engine.
type Metrics struct {
	registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ProjectionErrors  *prometheus.CounterVec

	CollateralInTotal prometheus.Counter
	FeesTotal         prometheus.Counter
	MarketsTotal      prometheus.Gauge
	PriceBps          *prometheus.GaugeVec
	CollateralHeld    *prometheus.GaugeVec
	LastSequence      prometheus.Gauge
}

// New creates a Metrics instance registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Committed engine operations by kind",
		}, []string{"op"}),
		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Rejected engine operations by kind and error kind",
		}, []string{"op", "kind"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of an operation including projection writes",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"op"}),
		ProjectionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "errors_total",
			Help:      "Failed projection writes by sink",
		}, []string{"sink"}),

		CollateralInTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "collateral_in_total",
			Help:      "Collateral paid into buys, in whole collateral units",
		}),
		FeesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "fees_total",
			Help:      "Fees charged on buys, in whole collateral units",
		}),
		MarketsTotal: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "markets",
			Help:      "Number of markets created",
		}),
		PriceBps: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "price_bps",
			Help:      "Current outcome price in basis points",
		}, []string{"market", "side"}),
		CollateralHeld: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "collateral_held",
			Help:      "Collateral in custody, in whole collateral units",
		}, []string{"market"}),
		LastSequence: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "last_sequence",
			Help:      "Highest event sequence number issued",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordOperation counts a committed operation and its duration.
func (m *Metrics) RecordOperation(op string, elapsed time.Duration) {
	m.OperationsTotal.WithLabelValues(op).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordError counts a rejected operation.
func (m *Metrics) RecordError(op, kind string) {
	m.ErrorsTotal.WithLabelValues(op, kind).Inc()
}

// RecordProjectionError counts a failed write to a projection sink.
func (m *Metrics) RecordProjectionError(sink string) {
	m.ProjectionErrors.WithLabelValues(sink).Inc()
}

// RecordTrade adds one buy's volume and fee.
func (m *Metrics) RecordTrade(collateralIn, fee float64) {
	m.CollateralInTotal.Add(collateralIn)
	m.FeesTotal.Add(fee)
}

// SetMarketState publishes the latest prices and custody of a market.
func (m *Metrics) SetMarketState(market string, yesBps, noBps uint64, held float64) {
	m.PriceBps.WithLabelValues(market, "YES").Set(float64(yesBps))
	m.PriceBps.WithLabelValues(market, "NO").Set(float64(noBps))
	m.CollateralHeld.WithLabelValues(market).Set(held)
}

// WriteTextfile writes the current values in the text exposition format,
// atomically replacing path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics: write textfile %s: %w", path, err)
	}
	return nil
}
