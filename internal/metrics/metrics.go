package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg             *prometheus.Registry
	Mutations       *prometheus.CounterVec
	IntegrityErrors prometheus.Counter
	StockMovements  *prometheus.CounterVec
	InFlight        prometheus.Gauge
	SubmitLatency   *prometheus.HistogramVec
	SnapshotVersion *prometheus.GaugeVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_mutations_total",
		Help: "Submitted mutations by kind, op and outcome.",
	}, []string{"kind", "op", "outcome"})
	integrity := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "commerce_integrity_errors_total",
		Help: "Broken invariants detected while applying results.",
	})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_stock_movements_total",
		Help: "Applied stock movements by type.",
	}, []string{"type"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "commerce_mutations_in_flight",
	})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commerce_submit_latency_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	version := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "commerce_snapshot_version",
	}, []string{"owner_id"})

	r.MustRegister(mutations, integrity, movements, inFlight, latency, version)
	return &Registry{
		reg:             r,
		Mutations:       mutations,
		IntegrityErrors: integrity,
		StockMovements:  movements,
		InFlight:        inFlight,
		SubmitLatency:   latency,
		SnapshotVersion: version,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
