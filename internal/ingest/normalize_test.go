package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/kwestby/ciwatch/internal/datastore/entities"
)

func sourceRun(id int64, status string) SourceRun {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	started := created.Add(45 * time.Second)
	sr := SourceRun{
		ID:           id,
		Name:         "ci",
		WorkflowID:   7,
		RunNumber:    12,
		RunAttempt:   1,
		Status:       status,
		Event:        "push",
		HeadBranch:   "main",
		HeadSHA:      "abc123",
		CreatedAt:    created,
		UpdatedAt:    started.Add(5 * time.Minute),
		RunStartedAt: &started,
	}
	sr.Actor.Login = "octocat"
	return sr
}

func TestNormalize_CompletedRun(t *testing.T) {
	sr := sourceRun(100, entities.RunStatusCompleted)
	conclusion := entities.RunConclusionSuccess
	sr.Conclusion = &conclusion

	run, err := Normalize("octo/widgets", &sr)
	require.NoError(t, err)

	assert.Equal(t, int64(100), run.ID)
	assert.Equal(t, "octo/widgets", run.Repo)
	assert.Equal(t, "octocat", run.Actor)
	require.NotNil(t, run.QueueWaitMS)
	assert.Equal(t, int64(45_000), *run.QueueWaitMS)
	require.NotNil(t, run.DurationMS)
	assert.Equal(t, int64(300_000), *run.DurationMS)
}

func TestNormalize_InProgressRunHasNoDuration(t *testing.T) {
	sr := sourceRun(101, entities.RunStatusInProgress)

	run, err := Normalize("octo/widgets", &sr)
	require.NoError(t, err)

	assert.NotNil(t, run.QueueWaitMS)
	assert.Nil(t, run.DurationMS, "duration is only derived for completed runs")
}

func TestNormalize_QueuedRunHasNoTiming(t *testing.T) {
	sr := sourceRun(102, entities.RunStatusQueued)
	sr.RunStartedAt = nil

	run, err := Normalize("octo/widgets", &sr)
	require.NoError(t, err)

	assert.Nil(t, run.QueueWaitMS)
	assert.Nil(t, run.DurationMS)
}

func TestNormalize_NegativeIntervalsClampToZero(t *testing.T) {
	sr := sourceRun(103, entities.RunStatusCompleted)
	// Upstream clock skew: started before created, updated before started.
	started := sr.CreatedAt.Add(-10 * time.Second)
	sr.RunStartedAt = &started
	sr.UpdatedAt = started.Add(-1 * time.Minute)

	run, err := Normalize("octo/widgets", &sr)
	require.NoError(t, err)

	require.NotNil(t, run.QueueWaitMS)
	assert.Equal(t, int64(0), *run.QueueWaitMS)
	require.NotNil(t, run.DurationMS)
	assert.Equal(t, int64(0), *run.DurationMS)
}

func TestNormalize_AttemptFloorsAtOne(t *testing.T) {
	sr := sourceRun(104, entities.RunStatusCompleted)
	sr.RunAttempt = 0

	run, err := Normalize("octo/widgets", &sr)
	require.NoError(t, err)
	assert.Equal(t, 1, run.RunAttempt)
}

func TestNormalize_RejectsInvalidRecords(t *testing.T) {
	t.Run("missing id", func(t *testing.T) {
		sr := sourceRun(0, entities.RunStatusCompleted)
		_, err := Normalize("octo/widgets", &sr)
		require.Error(t, err)
	})

	t.Run("missing status", func(t *testing.T) {
		sr := sourceRun(105, "")
		_, err := Normalize("octo/widgets", &sr)
		require.Error(t, err)
	})
}
