package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine. Every method is safe
// on a nil receiver so components can run without instrumentation.
type Metrics struct {
	WorkflowsCreated       *prometheus.CounterVec
	ApprovalActions        *prometheus.CounterVec
	AuthorizationDenials   *prometheus.CounterVec
	ProcessApprovalLatency prometheus.Histogram
	SignatureBindings      *prometheus.CounterVec
	SignatureVerifications *prometheus.CounterVec
	AuditEntries           *prometheus.CounterVec
	AuditEvictions         *prometheus.CounterVec
	SyncAttempts           *prometheus.CounterVec
	SyncDeadLetters        prometheus.Counter
	SyncQueueDepth         prometheus.Gauge
	EventsPublished        *prometheus.CounterVec
	RateLimitChecks        *prometheus.CounterVec
}

// New creates and registers all metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WorkflowsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigit_workflows_created_total",
			Help: "Approval workflows created, by whether approval is required",
		}, []string{"requires_approval"}),
		ApprovalActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigit_approval_actions_total",
			Help: "Approval actions processed, by action and outcome",
		}, []string{"action", "outcome"}),
		AuthorizationDenials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigit_authorization_denials_total",
			Help: "Authorization denials, by role",
		}, []string{"role"}),
		ProcessApprovalLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cdigit_process_approval_duration_seconds",
			Help:    "Duration of ProcessApproval operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		SignatureBindings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigit_signature_bindings_total",
			Help: "Signatures bound to vouchers, by signature type",
		}, []string{"signature_type"}),
		SignatureVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigit_signature_verifications_total",
			Help: "Binding verifications, by outcome",
		}, []string{"outcome"}),
		AuditEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigit_audit_entries_total",
			Help: "Audit entries appended, by category",
		}, []string{"category"}),
		AuditEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigit_audit_evictions_total",
			Help: "Audit entries evicted by the per-category cap",
		}, []string{"category"}),
		SyncAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigit_backend_sync_attempts_total",
			Help: "Backend sync delivery attempts, by command kind and outcome",
		}, []string{"kind", "outcome"}),
		SyncDeadLetters: f.NewCounter(prometheus.CounterOpts{
			Name: "cdigit_backend_sync_dead_letters_total",
			Help: "Backend sync commands moved to the dead-letter list",
		}),
		SyncQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "cdigit_backend_sync_queue_depth",
			Help: "Backend sync commands waiting for delivery",
		}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigit_workflow_events_published_total",
			Help: "Workflow events published, by type and outcome",
		}, []string{"type", "outcome"}),
		RateLimitChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdigit_rate_limit_checks_total",
			Help: "Rate limit checks, by class, decision and store",
		}, []string{"class", "decision", "store"}),
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// IncWorkflowCreated records a created workflow.
func (m *Metrics) IncWorkflowCreated(requiresApproval bool) {
	if m == nil {
		return
	}
	if requiresApproval {
		m.WorkflowsCreated.WithLabelValues("true").Inc()
		return
	}
	m.WorkflowsCreated.WithLabelValues("false").Inc()
}

// IncApprovalAction records a processed action.
func (m *Metrics) IncApprovalAction(action string, ok bool) {
	if m == nil {
		return
	}
	m.ApprovalActions.WithLabelValues(action, outcome(ok)).Inc()
}

// IncAuthorizationDenial records a denied action for role.
func (m *Metrics) IncAuthorizationDenial(role string) {
	if m == nil {
		return
	}
	m.AuthorizationDenials.WithLabelValues(role).Inc()
}

// ObserveProcessApproval records the duration of a ProcessApproval call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveProcessApproval(start time.Time) {
	if m == nil {
		return
	}
	m.ProcessApprovalLatency.Observe(time.Since(start).Seconds())
}

// IncSignatureBound records a new binding.
func (m *Metrics) IncSignatureBound(signatureType string) {
	if m == nil {
		return
	}
	m.SignatureBindings.WithLabelValues(signatureType).Inc()
}

// IncSignatureVerification records a verification outcome.
func (m *Metrics) IncSignatureVerification(valid bool) {
	if m == nil {
		return
	}
	m.SignatureVerifications.WithLabelValues(outcome(valid)).Inc()
}

// IncAuditEntry records an appended audit entry and whether it evicted one.
func (m *Metrics) IncAuditEntry(category string, evicted bool) {
	if m == nil {
		return
	}
	m.AuditEntries.WithLabelValues(category).Inc()
	if evicted {
		m.AuditEvictions.WithLabelValues(category).Inc()
	}
}

// IncSyncAttempt records a delivery attempt.
func (m *Metrics) IncSyncAttempt(kind string, ok bool) {
	if m == nil {
		return
	}
	m.SyncAttempts.WithLabelValues(kind, outcome(ok)).Inc()
}

// IncSyncDeadLetter records a command given up on.
func (m *Metrics) IncSyncDeadLetter() {
	if m == nil {
		return
	}
	m.SyncDeadLetters.Inc()
}

// SetSyncQueueDepth reports the current outbox depth.
func (m *Metrics) SetSyncQueueDepth(n int) {
	if m == nil {
		return
	}
	m.SyncQueueDepth.Set(float64(n))
}

// IncEventPublished records a publish outcome.
func (m *Metrics) IncEventPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType, outcome(ok)).Inc()
}

// IncRateLimitCheck records a throttle decision and which store answered it.
func (m *Metrics) IncRateLimitCheck(class string, allowed, degraded bool) {
	if m == nil {
		return
	}
	decision, store := "allowed", "primary"
	if !allowed {
		decision = "limited"
	}
	if degraded {
		store = "fallback"
	}
	m.RateLimitChecks.WithLabelValues(class, decision, store).Inc()
}
