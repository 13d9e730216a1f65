package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/kwestby/ciwatch/internal/datastore/entities"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database. Uses shared-cache mode
// with a single connection so all operations see the same database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&entities.WorkflowRun{},
		&entities.SyncCursor{},
		&entities.AlertRule{},
		&entities.AlertEvent{},
	)
	require.NoError(t, err, "failed to migrate tables")
	return db
}

// makeRun builds a completed test run with derived timing fields.
func makeRun(id int64, repo, conclusion string, updatedAt time.Time) entities.WorkflowRun {
	started := updatedAt.Add(-5 * time.Minute)
	duration := updatedAt.Sub(started).Milliseconds()
	wait := int64(30_000)
	return entities.WorkflowRun{
		ID:           id,
		Repo:         repo,
		WorkflowID:   7,
		WorkflowName: "ci",
		RunNumber:    int(id),
		Status:       entities.RunStatusCompleted,
		Conclusion:   &conclusion,
		Event:        "push",
		HeadBranch:   "main",
		HeadSHA:      "abc123",
		Actor:        "octocat",
		RunAttempt:   1,
		CreatedAt:    started.Add(-30 * time.Second),
		UpdatedAt:    updatedAt,
		RunStartedAt: &started,
		DurationMS:   &duration,
		QueueWaitMS:  &wait,
	}
}
