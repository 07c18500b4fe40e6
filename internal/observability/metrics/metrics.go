package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the domain-level instruments of the pricing core.
type Metrics struct {
	decisionsTotal      *prometheus.CounterVec
	decisionDuration    prometheus.Histogram
	cacheHitsTotal      prometheus.Counter
	cacheMissesTotal    prometheus.Counter
	validationsCreated  *prometheus.CounterVec
	validationsResolved *prometheus.CounterVec
	validationsExpired  prometheus.Counter
	workflowRunsTotal   *prometheus.CounterVec
	jobRunsTotal        *prometheus.CounterVec
	jobErrorsTotal      *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide metrics set, registering it on first use.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quotabl_pricing_decisions_total",
			Help: "Pricing decisions produced, labeled by decision case.",
		}, []string{"case", "requires_validation"}),
		decisionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quotabl_pricing_decision_duration_seconds",
			Help:    "Wall time of CalculatePrice calls.",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quotabl_pricing_cache_hits_total",
			Help: "Decision cache hits.",
		}),
		cacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quotabl_pricing_cache_misses_total",
			Help: "Decision cache misses.",
		}),
		validationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quotabl_validation_requests_created_total",
			Help: "Validation requests created, labeled by priority.",
		}, []string{"priority"}),
		validationsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quotabl_validation_requests_resolved_total",
			Help: "Validation requests resolved, labeled by terminal status.",
		}, []string{"status"}),
		validationsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "quotabl_validation_requests_expired_total",
			Help: "Validation requests expired past their SLA.",
		}),
		workflowRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quotabl_quote_workflow_runs_total",
			Help: "Quote workflow runs, labeled by terminal state.",
		}, []string{"state"}),
		jobRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quotabl_scheduler_job_runs_total",
			Help: "Scheduler job executions.",
		}, []string{"job"}),
		jobErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quotabl_scheduler_job_errors_total",
			Help: "Scheduler job failures.",
		}, []string{"job"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotabl_scheduler_job_duration_seconds",
			Help:    "Scheduler job durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

func (m *Metrics) IncDecision(priceCase string, requiresValidation bool) {
	label := "false"
	if requiresValidation {
		label = "true"
	}
	m.decisionsTotal.WithLabelValues(priceCase, label).Inc()
}

func (m *Metrics) ObserveDecisionDuration(d time.Duration) {
	m.decisionDuration.Observe(d.Seconds())
}

func (m *Metrics) IncCacheHit()  { m.cacheHitsTotal.Inc() }
func (m *Metrics) IncCacheMiss() { m.cacheMissesTotal.Inc() }

func (m *Metrics) IncValidationCreated(priority string) {
	m.validationsCreated.WithLabelValues(priority).Inc()
}

func (m *Metrics) IncValidationResolved(status string) {
	m.validationsResolved.WithLabelValues(status).Inc()
}

func (m *Metrics) AddValidationsExpired(n int) {
	m.validationsExpired.Add(float64(n))
}

func (m *Metrics) IncWorkflowRun(state string) {
	m.workflowRunsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) IncJobRun(job string) {
	m.jobRunsTotal.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobError(job string) {
	m.jobErrorsTotal.WithLabelValues(job).Inc()
}

func (m *Metrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
