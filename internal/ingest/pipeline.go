package ingest

import (
	"context"
	"fmt"

	"github.com/kwestby/ciwatch/internal/alerting"
	"github.com/kwestby/ciwatch/internal/datastore/entities"
	"github.com/kwestby/ciwatch/internal/datastore/repository"
	"github.com/kwestby/ciwatch/internal/logger"
	"github.com/kwestby/ciwatch/internal/observability/metrics"
)

// Default paging bounds for a single poll invocation. The ceiling caps
// upstream load; a first sync backfills at most pageLimit × pageSize runs.
const (
	defaultPageLimit = 5
	defaultPageSize  = 100
)

// Evaluation outcomes reported alongside ingestion results, so callers can
// assert on ingestion and alerting independently.
const (
	EvalOK      = "ok"
	EvalPartial = "partial"
	EvalFailed  = "failed"
	EvalSkipped = "skipped"
)

// AlertEvaluator is the seam to the alerting engine. Evaluation failures
// are never fatal to the ingestion that triggered them.
type AlertEvaluator interface {
	EvaluateScope(ctx context.Context, repo string) (alerting.EvalResult, error)
}

// SyncResult reports the outcome of one poll invocation.
type SyncResult struct {
	Repo         string `json:"repo"`
	RowsUpserted int    `json:"rows_upserted"`
	TotalRows    int64  `json:"total_rows"`
	// LatestRunID is the highest run ID ingested by this invocation;
	// 0 means no new rows.
	LatestRunID int64  `json:"latest_run_id"`
	AlertsFired int    `json:"alerts_fired"`
	Evaluation  string `json:"evaluation"`
}

// DeliveryResult reports the outcome of one webhook delivery.
type DeliveryResult struct {
	Accepted    bool   `json:"accepted"`
	RunID       int64  `json:"run_id,omitempty"`
	Action      string `json:"lifecycle_action,omitempty"`
	AlertsFired int    `json:"alerts_fired"`
	Evaluation  string `json:"evaluation,omitempty"`
}

// Pipeline normalizes runs from both ingestion paths into the same row shape
// and commits them idempotently. Poll and webhook invocations for the same
// repository may run concurrently; correctness rests on upsert idempotency
// and monotonic cursor advancement, not mutual exclusion.
type Pipeline struct {
	source    RunSource
	runs      repository.RunRepository
	cursors   repository.CursorRepository
	evaluator AlertEvaluator
	pageLimit int
	pageSize  int
	log       logger.Logger
}

// NewPipeline creates an ingestion pipeline. pageLimit and pageSize fall
// back to the defaults when zero. evaluator may be nil (alerting disabled).
func NewPipeline(source RunSource, runs repository.RunRepository, cursors repository.CursorRepository, evaluator AlertEvaluator, pageLimit, pageSize int, log logger.Logger) *Pipeline {
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	return &Pipeline{
		source:    source,
		runs:      runs,
		cursors:   cursors,
		evaluator: evaluator,
		pageLimit: pageLimit,
		pageSize:  pageSize,
		log:       log,
	}
}

// SyncRepository pulls new runs for a repository, newest first, stopping at
// the stored cursor, a short page, or the page ceiling. Rows fetched before
// a mid-poll upstream failure are still committed and the cursor advanced
// over them (partial success); the error is surfaced to the caller and the
// next poll resumes from the advanced cursor.
func (p *Pipeline) SyncRepository(ctx context.Context, repo string, pageHint int) (SyncResult, error) {
	result := SyncResult{Repo: repo, Evaluation: EvalSkipped}

	cursor, err := p.cursors.GetCursor(ctx, repo)
	if err != nil {
		metrics.SyncsTotal.WithLabelValues("store_error").Inc()
		return result, err
	}

	pages := p.pageLimit
	if pageHint > 0 && pageHint < pages {
		pages = pageHint
	}

	var batch []entities.WorkflowRun
	var fetchErr error
scan:
	for page := 1; page <= pages; page++ {
		records, err := p.source.ListRuns(ctx, repo, page, p.pageSize)
		if err != nil {
			fetchErr = err
			break
		}
		for i := range records {
			if records[i].ID <= cursor {
				// Reached already-known data; no further page can
				// contain anything newer.
				break scan
			}
			run, err := Normalize(repo, &records[i])
			if err != nil {
				p.log.Warn("skipping malformed run record",
					logger.String("repo", repo),
					logger.Error(err))
				continue
			}
			batch = append(batch, run)
		}
		if len(records) < p.pageSize {
			break // no more data upstream
		}
	}

	// Commit whatever was fetched, even when a later page failed.
	written, err := p.runs.UpsertRuns(ctx, batch)
	result.RowsUpserted = written
	if err != nil {
		metrics.SyncsTotal.WithLabelValues("store_error").Inc()
		return result, err
	}
	metrics.RunsIngested.WithLabelValues("poll").Add(float64(written))

	var maxID int64
	for i := range batch {
		maxID = max(maxID, batch[i].ID)
	}
	result.LatestRunID = maxID

	// The cursor only advances after the batch write succeeded, so it can
	// never skip past rows that were not durably written.
	if maxID > cursor {
		if err := p.cursors.AdvanceCursor(ctx, repo, maxID); err != nil {
			metrics.SyncsTotal.WithLabelValues("store_error").Inc()
			return result, err
		}
	}

	total, err := p.runs.CountRuns(ctx, repo)
	if err != nil {
		metrics.SyncsTotal.WithLabelValues("store_error").Inc()
		return result, err
	}
	result.TotalRows = total

	if fetchErr != nil {
		metrics.SyncsTotal.WithLabelValues("upstream_error").Inc()
		return result, fmt.Errorf("upstream fetch failed after %d rows committed: %w", written, fetchErr)
	}

	p.evaluate(ctx, repo, &result.AlertsFired, &result.Evaluation)
	metrics.SyncsTotal.WithLabelValues("ok").Inc()

	p.log.Info("repository sync completed",
		logger.String("repo", repo),
		logger.Int("rows_upserted", result.RowsUpserted),
		logger.Int64("latest_run_id", result.LatestRunID),
		logger.Int("alerts_fired", result.AlertsFired))
	return result, nil
}

// HandleDelivery ingests one authenticated webhook delivery. Events other
// than workflow_run are acknowledged without ingestion. Alert evaluation
// runs only for the "completed" lifecycle action so a single logical run
// does not trigger evaluation three times.
func (p *Pipeline) HandleDelivery(ctx context.Context, event string, body []byte) (DeliveryResult, error) {
	if event != EventWorkflowRun {
		metrics.WebhookDeliveries.WithLabelValues("ignored").Inc()
		return DeliveryResult{Accepted: false}, nil
	}

	delivery, err := ParseWorkflowRunDelivery(body)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("malformed").Inc()
		return DeliveryResult{}, err
	}

	repo := delivery.Repository.FullName
	run, err := Normalize(repo, &delivery.WorkflowRun)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("malformed").Inc()
		return DeliveryResult{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if err := p.runs.UpsertRun(ctx, &run); err != nil {
		return DeliveryResult{}, err
	}
	if err := p.cursors.AdvanceCursor(ctx, repo, run.ID); err != nil {
		return DeliveryResult{}, err
	}
	metrics.RunsIngested.WithLabelValues("webhook").Inc()
	metrics.WebhookDeliveries.WithLabelValues("ingested").Inc()

	result := DeliveryResult{
		Accepted: true,
		RunID:    run.ID,
		Action:   delivery.Action,
	}
	if delivery.Action == ActionCompleted {
		p.evaluate(ctx, repo, &result.AlertsFired, &result.Evaluation)
	}

	p.log.Info("webhook delivery ingested",
		logger.String("repo", repo),
		logger.Int64("run_id", run.ID),
		logger.String("action", delivery.Action))
	return result, nil
}

// evaluate runs the alert evaluator best-effort and records the outcome.
func (p *Pipeline) evaluate(ctx context.Context, repo string, fired *int, outcome *string) {
	if p.evaluator == nil {
		*outcome = EvalSkipped
		return
	}

	res, err := p.evaluator.EvaluateScope(ctx, repo)
	*fired = res.Fired
	switch {
	case err != nil:
		*outcome = EvalFailed
		metrics.EvalFailures.Inc()
		p.log.Error("alert evaluation failed",
			logger.String("repo", repo),
			logger.Error(err))
	case len(res.RuleErrors) > 0:
		*outcome = EvalPartial
		p.log.Warn("alert evaluation partially failed",
			logger.String("repo", repo),
			logger.Int("rule_errors", len(res.RuleErrors)))
	default:
		*outcome = EvalOK
	}
}
