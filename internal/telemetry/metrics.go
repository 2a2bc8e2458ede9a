// Package telemetry exports cache, mutation and job events as Prometheus
// metrics. Each subsystem gets its own observer adapter over a shared
// Metrics value.
package telemetry

import (
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/jobs"
	"github.com/goliatone/go-query-cache/mutation"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "querycache"

// Metrics holds every collector the package exports.
type Metrics struct {
	Fetches       *prometheus.CounterVec
	FetchesActive *prometheus.GaugeVec
	Discarded     *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
	Removals      *prometheus.CounterVec

	MutationStates   *prometheus.CounterVec
	MutationDuration *prometheus.HistogramVec
	RolledBackKeys   *prometheus.CounterVec

	JobReads      *prometheus.CounterVec
	JobStates     *prometheus.CounterVec
	JobRulesFired *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "fetches_total",
			Help:      "Settled remote fetches by key category and result.",
		}, []string{"category", "result"}),
		FetchesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "fetches_in_flight",
			Help:      "Remote fetches currently running.",
		}, []string{"category"}),
		Discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "fetches_discarded_total",
			Help:      "Fetch results dropped because a newer write superseded them.",
		}, []string{"category"}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "invalidations_total",
			Help:      "Keys marked stale.",
		}, []string{"category"}),
		Removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "removals_total",
			Help:      "Keys dropped from the store.",
		}, []string{"category"}),

		MutationStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "transitions_total",
			Help:      "Mutation lifecycle transitions.",
		}, []string{"mutation", "state"}),
		MutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "duration_seconds",
			Help:      "Time from submission to settlement.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mutation", "result"}),
		RolledBackKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "rolled_back_keys_total",
			Help:      "Keys restored from snapshots after a failed mutation.",
		}, []string{"mutation"}),

		JobReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "status_reads_total",
			Help:      "Job status reads by category, status and result.",
		}, []string{"category", "status", "result"}),
		JobStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "poller_transitions_total",
			Help:      "Poller lifecycle transitions.",
		}, []string{"category", "state"}),
		JobRulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "rules_fired_total",
			Help:      "Terminal side-effect rules that matched.",
		}, []string{"category", "status"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Fetches, m.FetchesActive, m.Discarded, m.Invalidations, m.Removals,
		m.MutationStates, m.MutationDuration, m.RolledBackKeys,
		m.JobReads, m.JobStates, m.JobRulesFired,
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Store returns the observer for a cache.Store.
func (m *Metrics) Store() cache.Observer { return storeObserver{m} }

// Mutations returns the observer for a mutation.Coordinator.
func (m *Metrics) Mutations() mutation.Observer { return mutationObserver{m} }

// Jobs returns the observer for a jobs.Monitor.
func (m *Metrics) Jobs() jobs.Observer { return jobObserver{m} }

type storeObserver struct{ m *Metrics }

func (o storeObserver) FetchStarted(key cache.Key) {
	o.m.FetchesActive.WithLabelValues(key.Category).Inc()
}

func (o storeObserver) FetchSettled(key cache.Key, err error) {
	o.m.FetchesActive.WithLabelValues(key.Category).Dec()
	o.m.Fetches.WithLabelValues(key.Category, result(err)).Inc()
}

func (o storeObserver) FetchDiscarded(key cache.Key) {
	o.m.FetchesActive.WithLabelValues(key.Category).Dec()
	o.m.Discarded.WithLabelValues(key.Category).Inc()
}

func (o storeObserver) Invalidated(key cache.Key) {
	o.m.Invalidations.WithLabelValues(key.Category).Inc()
}

func (o storeObserver) Removed(key cache.Key) {
	o.m.Removals.WithLabelValues(key.Category).Inc()
}

type mutationObserver struct{ m *Metrics }

func (o mutationObserver) StateChanged(name string, state mutation.State) {
	o.m.MutationStates.WithLabelValues(name, state.String()).Inc()
}

func (o mutationObserver) Settled(name string, err error, elapsed time.Duration) {
	o.m.MutationDuration.WithLabelValues(name, result(err)).Observe(elapsed.Seconds())
}

func (o mutationObserver) RolledBack(name string, keys int) {
	o.m.RolledBackKeys.WithLabelValues(name).Add(float64(keys))
}

type jobObserver struct{ m *Metrics }

func (o jobObserver) StatusRead(category string, status jobs.Status, err error) {
	o.m.JobReads.WithLabelValues(category, status.String(), result(err)).Inc()
}

func (o jobObserver) StateChanged(category string, state jobs.State) {
	o.m.JobStates.WithLabelValues(category, state.String()).Inc()
}

func (o jobObserver) RulesFired(category string, status jobs.Status, rules int) {
	o.m.JobRulesFired.WithLabelValues(category, status.String()).Add(float64(rules))
}
