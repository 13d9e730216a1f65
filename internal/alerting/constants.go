// Package alerting evaluates user-defined alert rules against freshly
// ingested workflow runs and dispatches firings to notification channels.
package alerting

// Metric kinds an alert rule can watch. Validated at the API boundary;
// downstream code may assume values are members of this set.
const (
	MetricFailureRate   = "failure_rate"
	MetricDurationP95   = "duration_p95"
	MetricQueueWaitP95  = "queue_wait_p95"
	MetricSuccessStreak = "success_streak"
)

// Notification channels a rule can target.
const (
	ChannelBrowser = "browser"
	ChannelSlack   = "slack"
	ChannelEmail   = "email"
)

// ValidMetric reports whether s is a known metric kind.
func ValidMetric(s string) bool {
	switch s {
	case MetricFailureRate, MetricDurationP95, MetricQueueWaitP95, MetricSuccessStreak:
		return true
	}
	return false
}

// ValidChannel reports whether s is a known notification channel.
func ValidChannel(s string) bool {
	switch s {
	case ChannelBrowser, ChannelSlack, ChannelEmail:
		return true
	}
	return false
}
