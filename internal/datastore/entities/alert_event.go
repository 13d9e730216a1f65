package entities

import "time"

// AlertEvent records each time an alert rule fires. Append-only: rows are
// never updated, and the most recent event per rule drives duplicate-fire
// suppression.
type AlertEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RuleID    uint      `gorm:"not null;index:idx_alert_events_rule_fired,priority:1" json:"rule_id"`
	Repo      string    `gorm:"size:255;not null" json:"repo"`
	Metric    string    `gorm:"size:32;not null" json:"metric"`
	Value     float64   `gorm:"not null" json:"value"`
	Threshold float64   `gorm:"not null" json:"threshold"`
	FiredAt   time.Time `gorm:"not null;index:idx_alert_events_rule_fired,priority:2" json:"fired_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	Rule      AlertRule `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"rule"`
}

// TableName returns the table name for GORM.
func (AlertEvent) TableName() string {
	return "alert_events"
}
