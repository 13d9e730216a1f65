package entities

import "time"

// WorkflowRun is one CI execution attempt ingested from the upstream source.
// The upstream-assigned ID is the primary key and ordering key; re-ingesting
// the same ID overwrites every non-key column (last-write-wins by ingestion
// order).
type WorkflowRun struct {
	ID           int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Repo         string     `gorm:"size:255;not null;index:idx_runs_repo_id" json:"repo"`
	WorkflowID   int64      `gorm:"not null" json:"workflow_id"`
	WorkflowName string     `gorm:"size:255" json:"workflow_name"`
	RunNumber    int        `gorm:"default:0" json:"run_number"`
	Status       string     `gorm:"size:32;not null" json:"status"`
	Conclusion   *string    `gorm:"size:32" json:"conclusion"`
	Event        string     `gorm:"size:64" json:"event"`
	HeadBranch   string     `gorm:"size:255" json:"head_branch"`
	HeadSHA      string     `gorm:"size:64" json:"head_sha"`
	Actor        string     `gorm:"size:255" json:"actor"`
	RunAttempt   int        `gorm:"default:1" json:"run_attempt"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
	RunStartedAt *time.Time `json:"run_started_at"`
	DurationMS   *int64     `json:"duration_ms"`
	QueueWaitMS  *int64     `json:"queue_wait_ms"`
	IngestedAt   time.Time  `gorm:"autoUpdateTime" json:"ingested_at"`
}

// TableName returns the table name for GORM.
func (WorkflowRun) TableName() string {
	return "workflow_runs"
}

// IsCompleted reports whether the run has reached a terminal state.
func (r *WorkflowRun) IsCompleted() bool {
	return r.Status == RunStatusCompleted
}

// Run lifecycle states as reported by the upstream source.
const (
	RunStatusQueued     = "queued"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
)

// Terminal conclusions as reported by the upstream source.
const (
	RunConclusionSuccess   = "success"
	RunConclusionFailure   = "failure"
	RunConclusionCancelled = "cancelled"
	RunConclusionSkipped   = "skipped"
	RunConclusionTimedOut  = "timed_out"
)
