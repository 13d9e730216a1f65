package ingest

import (
	"fmt"

	"github.com/kwestby/ciwatch/internal/datastore/entities"
)

// Normalize converts an upstream run record into the stored row shape.
// duration_ms is derived only for completed runs with a known start time;
// queue_wait_ms whenever a start time is known. Both are clamped at zero
// so inconsistent upstream clocks never produce negative intervals.
func Normalize(repo string, sr *SourceRun) (entities.WorkflowRun, error) {
	if sr.ID == 0 {
		return entities.WorkflowRun{}, fmt.Errorf("run record for %s has no id", repo)
	}
	if sr.Status == "" {
		return entities.WorkflowRun{}, fmt.Errorf("run %d for %s has no status", sr.ID, repo)
	}

	run := entities.WorkflowRun{
		ID:           sr.ID,
		Repo:         repo,
		WorkflowID:   sr.WorkflowID,
		WorkflowName: sr.Name,
		RunNumber:    sr.RunNumber,
		Status:       sr.Status,
		Conclusion:   sr.Conclusion,
		Event:        sr.Event,
		HeadBranch:   sr.HeadBranch,
		HeadSHA:      sr.HeadSHA,
		Actor:        sr.Actor.Login,
		RunAttempt:   sr.RunAttempt,
		CreatedAt:    sr.CreatedAt,
		UpdatedAt:    sr.UpdatedAt,
		RunStartedAt: sr.RunStartedAt,
	}
	if run.RunAttempt < 1 {
		run.RunAttempt = 1
	}

	if sr.RunStartedAt != nil {
		wait := sr.RunStartedAt.Sub(sr.CreatedAt).Milliseconds()
		wait = max(wait, 0)
		run.QueueWaitMS = &wait

		if sr.Status == entities.RunStatusCompleted {
			dur := sr.UpdatedAt.Sub(*sr.RunStartedAt).Milliseconds()
			dur = max(dur, 0)
			run.DurationMS = &dur
		}
	}

	return run, nil
}
