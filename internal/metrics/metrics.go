// Package metrics holds the Prometheus collectors procuredb exports.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "procuredb"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	PolicyDecisions      *prometheus.CounterVec
	ConstraintViolations *prometheus.CounterVec
	Transactions         *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered are reused.
func New(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		gatherer: reg,
		PolicyDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "decisions_total",
			Help:      "Row level policy evaluations partitioned by table, operation and outcome.",
		}, []string{"table", "operation", "outcome"}),
		ConstraintViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "constraint_violations_total",
			Help:      "Statements rejected by a database constraint, partitioned by kind and table.",
		}, []string{"kind", "table"}),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "transactions_total",
			Help:      "Principal scoped transactions partitioned by principal kind and result.",
		}, []string{"principal", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request latencies in seconds partitioned by method, route, and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	var err error
	if m.PolicyDecisions, err = register(reg, m.PolicyDecisions); err != nil {
		return nil, err
	}
	if m.ConstraintViolations, err = register(reg, m.ConstraintViolations); err != nil {
		return nil, err
	}
	if m.Transactions, err = register(reg, m.Transactions); err != nil {
		return nil, err
	}
	if m.HTTPRequests, err = register(reg, m.HTTPRequests); err != nil {
		return nil, err
	}
	if m.HTTPDuration, err = register(reg, m.HTTPDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

// Decision counts one policy evaluation.
func (m *Metrics) Decision(table, operation string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.PolicyDecisions.WithLabelValues(table, operation, outcome).Inc()
}

// Violation counts one constraint rejection.
func (m *Metrics) Violation(kind, table string) {
	if m == nil {
		return
	}
	m.ConstraintViolations.WithLabelValues(kind, table).Inc()
}

// Transaction counts one finished transaction.
func (m *Metrics) Transaction(principal, result string) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(principal, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
