package repository

import (
	"context"
	"time"

	"github.com/kwestby/ciwatch/internal/datastore/entities"
)

// RunRepository persists workflow runs. UpsertRuns is the single write path
// shared by poll sync and webhook delivery: each row write is idempotent, so
// the two ingestion paths can race without coordination.
type RunRepository interface {
	// UpsertRun inserts or fully overwrites a run by primary key.
	UpsertRun(ctx context.Context, run *entities.WorkflowRun) error
	// UpsertRuns upserts a batch. The batch is not a single transaction;
	// each row is individually idempotent.
	UpsertRuns(ctx context.Context, runs []entities.WorkflowRun) (int, error)
	// GetRun returns a run by ID. Returns ErrRunNotFound if absent.
	GetRun(ctx context.Context, id int64) (*entities.WorkflowRun, error)
	// CountRuns returns the total number of persisted runs for a repository.
	CountRuns(ctx context.Context, repo string) (int64, error)
	// ListRecentRuns returns runs for a repository ordered by ID descending.
	ListRecentRuns(ctx context.Context, repo string, limit int) ([]entities.WorkflowRun, error)
	// ListCompletedRunsSince returns completed runs for a repository with
	// upstream updated_at >= since, ordered by ID descending.
	ListCompletedRunsSince(ctx context.Context, repo string, since time.Time) ([]entities.WorkflowRun, error)
	// ListCompletedRunsForScope is the metric-window read used by alert
	// evaluation. scope is either an exact repository key or an "owner/*"
	// wildcard covering every repository under that owner.
	ListCompletedRunsForScope(ctx context.Context, scope string, since time.Time) ([]entities.WorkflowRun, error)
}

// CursorRepository tracks the per-repository sync cursor. AdvanceCursor is
// monotonic: concurrent advances commute and the stored value never regresses.
type CursorRepository interface {
	// GetCursor returns the highest persisted run ID for a repository,
	// or 0 when no cursor row exists yet.
	GetCursor(ctx context.Context, repo string) (int64, error)
	// AdvanceCursor sets the cursor to candidate only if candidate is
	// greater than the stored value (or no row exists).
	AdvanceCursor(ctx context.Context, repo string, candidate int64) error
}
