package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kwestby/ciwatch/internal/datastore/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertBatchSize bounds the number of rows per INSERT when writing batches.
const upsertBatchSize = 100

// runRepository implements RunRepository.
type runRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

// UpsertRun inserts or fully overwrites a run by primary key. Upserting the
// same ID any number of times leaves the row equal to the last version seen.
func (r *runRepository) UpsertRun(ctx context.Context, run *entities.WorkflowRun) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(run).Error
	if err != nil {
		return fmt.Errorf("failed to upsert run %d: %w", run.ID, err)
	}
	return nil
}

// UpsertRuns upserts runs in batches. Returns the count of rows written;
// on error, rows from earlier batches remain committed.
func (r *runRepository) UpsertRuns(ctx context.Context, runs []entities.WorkflowRun) (int, error) {
	if len(runs) == 0 {
		return 0, nil
	}

	var written int
	for i := 0; i < len(runs); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(runs))
		batch := runs[i:end]

		err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).
			Create(&batch).Error
		if err != nil {
			return written, fmt.Errorf("failed to upsert run batch: %w", err)
		}
		written += len(batch)
	}
	return written, nil
}

// GetRun returns a run by ID.
func (r *runRepository) GetRun(ctx context.Context, id int64) (*entities.WorkflowRun, error) {
	var run entities.WorkflowRun
	if err := r.db.WithContext(ctx).First(&run, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return &run, nil
}

// CountRuns returns the total number of persisted runs for a repository.
func (r *runRepository) CountRuns(ctx context.Context, repo string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.WorkflowRun{}).
		Where("repo = ?", repo).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count runs for %s: %w", repo, err)
	}
	return count, nil
}

// ListRecentRuns returns runs for a repository ordered by ID descending.
func (r *runRepository) ListRecentRuns(ctx context.Context, repo string, limit int) ([]entities.WorkflowRun, error) {
	var runs []entities.WorkflowRun
	query := r.db.WithContext(ctx).
		Where("repo = ?", repo).
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs for %s: %w", repo, err)
	}
	return runs, nil
}

// ListCompletedRunsSince returns completed runs in the metric window,
// newest first by ID.
func (r *runRepository) ListCompletedRunsSince(ctx context.Context, repo string, since time.Time) ([]entities.WorkflowRun, error) {
	var runs []entities.WorkflowRun
	err := r.db.WithContext(ctx).
		Where("repo = ? AND status = ? AND updated_at >= ?", repo, entities.RunStatusCompleted, since).
		Order("id DESC").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list completed runs for %s: %w", repo, err)
	}
	return runs, nil
}

// ListCompletedRunsForScope returns completed runs in the metric window
// across every repository the scope covers, newest first by ID. A wildcard
// scope ("owner/*") matches all repositories under that owner.
func (r *runRepository) ListCompletedRunsForScope(ctx context.Context, scope string, since time.Time) ([]entities.WorkflowRun, error) {
	owner, ok := strings.CutSuffix(scope, "/*")
	if !ok {
		return r.ListCompletedRunsSince(ctx, scope, since)
	}

	var runs []entities.WorkflowRun
	err := r.db.WithContext(ctx).
		Where("repo LIKE ? AND status = ? AND updated_at >= ?", owner+"/%", entities.RunStatusCompleted, since).
		Order("id DESC").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list completed runs for scope %s: %w", scope, err)
	}
	return runs, nil
}
