// Package metrics exposes the ledger's prometheus instruments. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"memochain/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memochain"

type Metrics struct {
	registry *prometheus.Registry

	appends        *prometheus.CounterVec
	miningSeconds  *prometheus.HistogramVec
	chainHeight    prometheus.Gauge
	transactions   prometheus.Gauge
	indexProbes    *prometheus.CounterVec
	indexRebuilds  prometheus.Counter
	verifications  *prometheus.CounterVec
	validationRuns *prometheus.CounterVec
}

// New registers every instrument on a private registry plus the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "appends_total",
			Help: "Transaction append attempts by outcome.",
		}, []string{"outcome"}),
		miningSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "mining_seconds",
			Help:    "Proof-of-work search duration.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"outcome"}),
		chainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "blocks",
			Help: "Number of sealed blocks including genesis.",
		}),
		transactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "transactions",
			Help: "Number of sealed transactions.",
		}),
		indexProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "index", Name: "probes_total",
			Help: "Membership index probes by result (negative, confirmed, false_positive).",
		}, []string{"result"}),
		indexRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "index", Name: "rebuilds_total",
			Help: "Membership index rebuilds from the ledger.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reconcile", Name: "verifications_total",
			Help: "Reconciliation calls by query kind and existence.",
		}, []string{"kind", "exists"}),
		validationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "validations_total",
			Help: "Chain validation runs by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.appends, m.miningSeconds, m.chainHeight, m.transactions,
		m.indexProbes, m.indexRebuilds, m.verifications, m.validationRuns,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAppend(err error) {
	if m == nil {
		return
	}
	m.appends.WithLabelValues(appendOutcome(err)).Inc()
}

func (m *Metrics) ObserveMining(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "sealed"
	if err != nil {
		outcome = "failed"
		if errors.Is(err, domain.ErrMiningTimeout) {
			outcome = "timeout"
		}
	}
	m.miningSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) SetLedgerSize(blocks, txs int64) {
	if m == nil {
		return
	}
	m.chainHeight.Set(float64(blocks))
	m.transactions.Set(float64(txs))
}

func (m *Metrics) ObserveIndexProbe(result string) {
	if m == nil {
		return
	}
	m.indexProbes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveIndexRebuild() {
	if m == nil {
		return
	}
	m.indexRebuilds.Inc()
}

func (m *Metrics) ObserveVerification(kind string, exists bool) {
	if m == nil {
		return
	}
	e := "false"
	if exists {
		e = "true"
	}
	m.verifications.WithLabelValues(kind, e).Inc()
}

func (m *Metrics) ObserveValidation(valid bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.validationRuns.WithLabelValues(result).Inc()
}

func appendOutcome(err error) string {
	switch {
	case err == nil:
		return "sealed"
	case errors.Is(err, domain.ErrAlreadyRecorded):
		return "duplicate"
	case errors.Is(err, domain.ErrPolicyDenied):
		return "denied"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrMiningTimeout):
		return "timeout"
	default:
		return "error"
	}
}
