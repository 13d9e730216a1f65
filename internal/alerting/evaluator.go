package alerting

import (
	"context"
	"time"

	"github.com/kwestby/ciwatch/internal/datastore/entities"
	"github.com/kwestby/ciwatch/internal/datastore/repository"
	"github.com/kwestby/ciwatch/internal/logger"
	obs "github.com/kwestby/ciwatch/internal/observability/metrics"
)

// defaultSuppressionWindow keeps a rule quiet after a firing while its
// metric remains past threshold.
const defaultSuppressionWindow = 1 * time.Hour

// RuleError records a single rule's evaluation failure.
type RuleError struct {
	RuleID uint
	Name   string
	Err    error
}

// EvalResult reports one evaluator invocation. Fired counts rules that
// fired; RuleErrors lists rules whose metric could not be computed or whose
// event could not be saved. A non-empty RuleErrors with a nil top-level
// error means partial success.
type EvalResult struct {
	Evaluated  int
	Fired      int
	RuleErrors []RuleError
}

// ActionFunc is called when a rule fires.
type ActionFunc func(rule *entities.AlertRule, event *entities.AlertEvent)

// Evaluator recomputes rule metrics over sliding windows after each
// ingestion and appends AlertEvents for threshold crossings. It holds no
// mutable state between invocations; suppression reads the event log, so it
// survives restarts and is shared by concurrent evaluators.
type Evaluator struct {
	rules       repository.AlertRuleRepository
	runs        repository.RunRepository
	actionFunc  ActionFunc
	suppression time.Duration
	log         logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewEvaluator creates an Evaluator. suppression <= 0 uses the default of
// one hour; actionFunc may be nil (no dispatch beyond the persisted event).
func NewEvaluator(rules repository.AlertRuleRepository, runs repository.RunRepository, actionFunc ActionFunc, suppression time.Duration, log logger.Logger) *Evaluator {
	if suppression <= 0 {
		suppression = defaultSuppressionWindow
	}
	return &Evaluator{
		rules:       rules,
		runs:        runs,
		actionFunc:  actionFunc,
		suppression: suppression,
		log:         log,
		now:         time.Now,
	}
}

// EvaluateScope evaluates every enabled rule scoped to the repository
// (exact match or owner/* wildcard). Evaluation is best-effort per rule:
// one rule failing never prevents siblings from evaluating.
func (e *Evaluator) EvaluateScope(ctx context.Context, repo string) (EvalResult, error) {
	var result EvalResult

	rules, err := e.rules.GetEnabledRulesForScope(ctx, repo)
	if err != nil {
		return result, err
	}

	for i := range rules {
		rule := &rules[i]

		value, err := e.computeMetric(ctx, rule)
		if err != nil {
			result.RuleErrors = append(result.RuleErrors, RuleError{RuleID: rule.ID, Name: rule.Name, Err: err})
			e.log.Debug("rule metric not computable",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.String("metric", rule.Metric),
				logger.Error(err))
			continue
		}
		result.Evaluated++

		if !crossed(rule.Metric, value, rule.Threshold) {
			continue
		}

		suppressed, err := e.isSuppressed(ctx, rule.ID)
		if err != nil {
			result.RuleErrors = append(result.RuleErrors, RuleError{RuleID: rule.ID, Name: rule.Name, Err: err})
			continue
		}
		if suppressed {
			continue
		}

		e.fire(ctx, repo, rule, value, &result)
	}

	return result, nil
}

// computeMetric loads the trailing window of completed runs across the
// rule's whole scope and computes the configured metric. A wildcard rule
// sees every repository under its owner, not just the repository whose
// ingestion triggered the evaluation.
func (e *Evaluator) computeMetric(ctx context.Context, rule *entities.AlertRule) (float64, error) {
	since := e.now().Add(-time.Duration(rule.WindowHours) * time.Hour)
	runs, err := e.runs.ListCompletedRunsForScope(ctx, rule.Scope, since)
	if err != nil {
		return 0, err
	}

	switch rule.Metric {
	case MetricFailureRate:
		return FailureRate(runs)
	case MetricDurationP95:
		return DurationP95(runs)
	case MetricQueueWaitP95:
		return QueueWaitP95(runs)
	case MetricSuccessStreak:
		if len(runs) == 0 {
			// An empty window is not a broken streak.
			return 0, ErrInsufficientData
		}
		return SuccessStreak(runs), nil
	default:
		// Unreachable for rules that passed boundary validation.
		return 0, ErrInsufficientData
	}
}

// crossed reports whether value is past threshold in the unfavorable
// direction: rate/latency/wait metrics fire at or above threshold, while a
// success streak fires when it drops below threshold.
func crossed(metric string, value, threshold float64) bool {
	if metric == MetricSuccessStreak {
		return value < threshold
	}
	return value >= threshold
}

// isSuppressed reports whether the rule fired within the suppression
// window, so a metric that stays past threshold across consecutive
// evaluations produces one event per breach window rather than one per
// evaluation.
func (e *Evaluator) isSuppressed(ctx context.Context, ruleID uint) (bool, error) {
	latest, err := e.rules.LatestEventForRule(ctx, ruleID)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return false, nil
	}
	return e.now().Sub(latest.FiredAt) < e.suppression, nil
}

// fire appends an AlertEvent and hands the firing to the dispatcher.
// A failed event write is recorded as a rule error but the notification is
// still dispatched; a dispatch failure is only logged.
func (e *Evaluator) fire(ctx context.Context, repo string, rule *entities.AlertRule, value float64, result *EvalResult) {
	event := &entities.AlertEvent{
		RuleID:    rule.ID,
		Repo:      repo,
		Metric:    rule.Metric,
		Value:     value,
		Threshold: rule.Threshold,
		FiredAt:   e.now(),
	}
	if err := e.rules.SaveEvent(ctx, event); err != nil {
		result.RuleErrors = append(result.RuleErrors, RuleError{RuleID: rule.ID, Name: rule.Name, Err: err})
		e.log.Error("failed to save alert event",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Error(err))
	}

	if e.actionFunc != nil {
		e.actionFunc(rule, event)
	}

	result.Fired++
	obs.AlertsFired.WithLabelValues(rule.Metric).Inc()
	e.log.Info("alert rule fired",
		logger.Uint64("rule_id", uint64(rule.ID)),
		logger.String("rule", rule.Name),
		logger.String("repo", repo),
		logger.String("metric", rule.Metric),
		logger.Float64("value", value),
		logger.Float64("threshold", rule.Threshold))
}
