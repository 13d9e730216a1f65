package entities

import "time"

// SyncCursor tracks, per repository, the highest run ID already persisted.
// It bounds incremental polling and is advanced by both the poll and webhook
// ingestion paths. The stored value only ever grows.
type SyncCursor struct {
	Repo      string    `gorm:"primaryKey;size:255" json:"repo"`
	LastRunID int64     `gorm:"not null;default:0" json:"last_run_id"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (SyncCursor) TableName() string {
	return "sync_cursors"
}
