package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kwestby/ciwatch/internal/datastore/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cursorRepository implements CursorRepository.
type cursorRepository struct {
	db      *gorm.DB
	isMySQL bool // Dialect flag: true for MySQL (GREATEST), false for SQLite (scalar MAX)
}

// NewCursorRepository creates a new CursorRepository.
// isMySQL selects the dialect-specific max expression used for the
// monotonic upsert.
func NewCursorRepository(db *gorm.DB, isMySQL bool) CursorRepository {
	return &cursorRepository{db: db, isMySQL: isMySQL}
}

// GetCursor returns the stored cursor for a repository, or 0 when absent.
func (r *cursorRepository) GetCursor(ctx context.Context, repo string) (int64, error) {
	var cursor entities.SyncCursor
	err := r.db.WithContext(ctx).
		Where("repo = ?", repo).
		First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor for %s: %w", repo, err)
	}
	return cursor.LastRunID, nil
}

// AdvanceCursor upserts the cursor row, keeping the maximum of the stored
// and candidate values. The max is computed inside the database so that
// concurrent advances from the poll and webhook paths commute.
func (r *cursorRepository) AdvanceCursor(ctx context.Context, repo string, candidate int64) error {
	var maxExpr string
	if r.isMySQL {
		maxExpr = "GREATEST(sync_cursors.last_run_id, VALUES(last_run_id))"
	} else {
		maxExpr = "MAX(sync_cursors.last_run_id, excluded.last_run_id)"
	}

	cursor := entities.SyncCursor{
		Repo:      repo,
		LastRunID: candidate,
		UpdatedAt: time.Now(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "repo"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_run_id": gorm.Expr(maxExpr),
				"updated_at":  time.Now(),
			}),
		}).
		Create(&cursor).Error
	if err != nil {
		return fmt.Errorf("failed to advance cursor for %s: %w", repo, err)
	}
	return nil
}
