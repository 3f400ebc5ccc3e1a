// Package observability provides Prometheus metrics for the versioning core.
package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/projectcontrols/internal/domain"
)

// Metrics holds all Prometheus metrics for the service.
// All recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Mutation metrics
	mutationsTotal *prometheus.CounterVec
	retriesTotal   *prometheus.CounterVec

	// Branch lifecycle metrics
	mergesTotal           *prometheus.CounterVec
	mergeDuration         prometheus.Histogram
	entitiesMergedTotal   prometheus.Counter
	conflictWarningsTotal prometheus.Counter
	entitiesArchivedTotal prometheus.Counter
	workflowTransitions   *prometheus.CounterVec

	// Database metrics
	dbTransactionDuration *prometheus.HistogramVec
	dbActiveTransactions  prometheus.Gauge
}

// NewMetrics creates a Metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{registry: reg}

	m.mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectcontrols_mutations_total",
			Help: "Total number of version mutations",
		},
		[]string{"operation", "entity_type", "result"},
	)
	m.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectcontrols_mutation_retries_total",
			Help: "Mutations retried after losing a version race",
		},
		[]string{"operation"},
	)
	m.mergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectcontrols_merges_total",
			Help: "Total number of branch merges",
		},
		[]string{"result"},
	)
	m.mergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "projectcontrols_merge_duration_seconds",
			Help:    "Duration of branch merges in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	m.entitiesMergedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "projectcontrols_entities_merged_total",
			Help: "Entity versions written to main by merges",
		},
	)
	m.conflictWarningsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "projectcontrols_merge_conflict_warnings_total",
			Help: "Entities whose main version moved after the branch forked",
		},
	)
	m.entitiesArchivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "projectcontrols_entities_archived_total",
			Help: "Branch entities marked deleted by archive",
		},
	)
	m.workflowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectcontrols_change_order_transitions_total",
			Help: "Change order workflow transitions",
		},
		[]string{"to"},
	)
	m.dbTransactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "projectcontrols_db_transaction_duration_seconds",
			Help:    "Duration of database transactions from begin to commit or rollback",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode", "outcome"},
	)
	m.dbActiveTransactions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "projectcontrols_db_active_transactions",
			Help: "Number of open database transactions",
		},
	)

	reg.MustRegister(
		m.mutationsTotal,
		m.retriesTotal,
		m.mergesTotal,
		m.mergeDuration,
		m.entitiesMergedTotal,
		m.conflictWarningsTotal,
		m.entitiesArchivedTotal,
		m.workflowTransitions,
		m.dbTransactionDuration,
		m.dbActiveTransactions,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveMutation records the outcome of a mutation.
func (m *Metrics) ObserveMutation(op string, entityType domain.EntityType, err error) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(op, string(entityType), resultLabel(err)).Inc()
}

// ObserveRetry records a retried mutation.
func (m *Metrics) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(op).Inc()
}

// ObserveMerge records a finished merge.
func (m *Metrics) ObserveMerge(start time.Time, result *domain.MergeResult, err error) {
	if m == nil {
		return
	}
	m.mergeDuration.Observe(time.Since(start).Seconds())
	m.mergesTotal.WithLabelValues(resultLabel(err)).Inc()
	if err == nil && result != nil {
		m.entitiesMergedTotal.Add(float64(result.Applied))
		m.conflictWarningsTotal.Add(float64(len(result.Warnings)))
	}
}

// ObserveArchive records entities archived in a branch.
func (m *Metrics) ObserveArchive(result *domain.ArchiveResult) {
	if m == nil || result == nil {
		return
	}
	m.entitiesArchivedTotal.Add(float64(result.Archived))
}

// ObserveTransition records a change order workflow transition.
func (m *Metrics) ObserveTransition(to domain.WorkflowState) {
	if m == nil {
		return
	}
	m.workflowTransitions.WithLabelValues(string(to)).Inc()
}

// TxStarted marks a transaction as open.
func (m *Metrics) TxStarted() {
	if m == nil {
		return
	}
	m.dbActiveTransactions.Inc()
}

// TxFinished records a transaction's lifetime.
func (m *Metrics) TxFinished(mode, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.dbActiveTransactions.Dec()
	m.dbTransactionDuration.WithLabelValues(mode, outcome).Observe(time.Since(start).Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateEntity):
		return "duplicate"
	case errors.Is(err, domain.ErrConcurrentModify):
		return "conflict"
	case errors.Is(err, domain.ErrBranchLocked), errors.Is(err, domain.ErrUnknownBranch):
		return "rejected"
	default:
		return "error"
	}
}
