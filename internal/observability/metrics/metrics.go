// Package metrics exposes Prometheus instrumentation for the ingestion
// and alerting paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsIngested counts workflow run rows upserted, labelled by path
	// ("poll" or "webhook").
	RunsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ciwatch_runs_ingested_total",
		Help: "Workflow run rows upserted into the store.",
	}, []string{"path"})

	// SyncsTotal counts poll sync invocations by outcome.
	SyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ciwatch_syncs_total",
		Help: "Poll sync invocations by outcome (ok, upstream_error, store_error).",
	}, []string{"outcome"})

	// WebhookDeliveries counts webhook intake results.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ciwatch_webhook_deliveries_total",
		Help: "Webhook deliveries by result (ingested, ignored, unauthorized, malformed).",
	}, []string{"result"})

	// AlertsFired counts alert rule firings by metric kind.
	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ciwatch_alerts_fired_total",
		Help: "Alert rule firings by metric kind.",
	}, []string{"metric"})

	// EvalFailures counts alert evaluation invocations that returned an error.
	EvalFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ciwatch_alert_eval_failures_total",
		Help: "Alert evaluation invocations that failed.",
	})
)
