// Package metrics exposes Prometheus counters for the verification, lead and
// catalog flows. A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "guestlist"

// Recorder owns every metric the services report.
type Recorder struct {
	challengesIssued prometheus.Counter
	issueRejected    *prometheus.CounterVec
	verifyOutcomes   *prometheus.CounterVec
	deliveryLatency  *prometheus.HistogramVec
	leadsCaptured    prometheus.Counter
	leadsRejected    prometheus.Counter
	imports          *prometheus.CounterVec
	ingested         *prometheus.CounterVec
	ingestTriggers   *prometheus.CounterVec
	counterDrift     prometheus.Counter
}

// NewRecorder registers the metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		challengesIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "otp", Name: "challenges_issued_total",
			Help: "Verification codes stored and delivered.",
		}),
		issueRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "otp", Name: "issue_rejected_total",
			Help: "Code requests refused before dispatch, by reason.",
		}, []string{"reason"}),
		verifyOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "otp", Name: "verify_total",
			Help: "Verification attempts by outcome.",
		}, []string{"outcome"}),
		deliveryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "otp", Name: "delivery_seconds",
			Help:    "Time spent dispatching a code.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),
		leadsCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "leads", Name: "captured_total",
			Help: "Leads appended to the ledger.",
		}),
		leadsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "leads", Name: "unverified_total",
			Help: "Lead submissions refused for a missing or spent token.",
		}),
		imports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "catalog", Name: "imports_total",
			Help: "Import requests by result.",
		}, []string{"result"}),
		ingested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "catalog", Name: "ingested_total",
			Help: "Discovered events by ingestion outcome.",
		}, []string{"outcome"}),
		ingestTriggers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "catalog", Name: "ingest_triggers_total",
			Help: "Scrape trigger requests by result.",
		}, []string{"result"}),
		counterDrift: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "catalog", Name: "counter_drift_total",
			Help: "Reconciliations that found stored counters out of line.",
		}),
	}
}

func (r *Recorder) ChallengeIssued() {
	if r == nil {
		return
	}
	r.challengesIssued.Inc()
}

func (r *Recorder) IssueRejected(reason string) {
	if r == nil {
		return
	}
	r.issueRejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) VerifyOutcome(outcome string) {
	if r == nil {
		return
	}
	r.verifyOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveDelivery(d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.deliveryLatency.WithLabelValues(result).Observe(d.Seconds())
}

func (r *Recorder) LeadCaptured() {
	if r == nil {
		return
	}
	r.leadsCaptured.Inc()
}

func (r *Recorder) LeadRejected() {
	if r == nil {
		return
	}
	r.leadsRejected.Inc()
}

// Import records an import request; changed is false for idempotent repeats.
func (r *Recorder) Import(changed bool) {
	if r == nil {
		return
	}
	result := "noop"
	if changed {
		result = "imported"
	}
	r.imports.WithLabelValues(result).Inc()
}

func (r *Recorder) Ingested(outcome string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.ingested.WithLabelValues(outcome).Add(float64(n))
}

func (r *Recorder) IngestTrigger(result string) {
	if r == nil {
		return
	}
	r.ingestTriggers.WithLabelValues(result).Inc()
}

func (r *Recorder) CounterDrift() {
	if r == nil {
		return
	}
	r.counterDrift.Inc()
}
