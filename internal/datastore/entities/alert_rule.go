package entities

import "time"

// AlertRule is a user-defined watch over ingested runs. Scope is either an
// exact repository key ("owner/name") or an organization wildcard ("owner/*").
// Metric and Channel are validated against the alerting enums at the API
// boundary, never re-checked ad hoc downstream.
type AlertRule struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Scope       string    `gorm:"size:255;not null;index" json:"scope"`
	Metric      string    `gorm:"size:32;not null" json:"metric"`
	Threshold   float64   `gorm:"not null" json:"threshold"`
	WindowHours int       `gorm:"not null;default:24" json:"window_hours"`
	Channel     string    `gorm:"size:32;not null" json:"channel"`
	Destination string    `gorm:"size:500;default:''" json:"destination"`
	Enabled     bool      `gorm:"default:true" json:"enabled"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (AlertRule) TableName() string {
	return "alert_rules"
}
