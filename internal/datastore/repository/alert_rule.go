package repository

import (
	"context"

	"github.com/kwestby/ciwatch/internal/datastore/entities"
)

// AlertRuleRepository handles alert rule CRUD and the append-only event log.
type AlertRuleRepository interface {
	// Rule CRUD
	ListRules(ctx context.Context, filter AlertRuleFilter) ([]entities.AlertRule, error)
	GetRule(ctx context.Context, id uint) (*entities.AlertRule, error)
	CreateRule(ctx context.Context, rule *entities.AlertRule) error
	UpdateRule(ctx context.Context, rule *entities.AlertRule) error
	DeleteRule(ctx context.Context, id uint) error
	ToggleRule(ctx context.Context, id uint, enabled bool) error

	// GetEnabledRulesForScope returns enabled rules whose scope matches the
	// repository key exactly or as an "owner/*" organization wildcard.
	GetEnabledRulesForScope(ctx context.Context, repo string) ([]entities.AlertRule, error)

	// Events
	SaveEvent(ctx context.Context, event *entities.AlertEvent) error
	ListEvents(ctx context.Context, filter AlertEventFilter) ([]entities.AlertEvent, int64, error)
	// LatestEventForRule returns the most recent firing for a rule, or nil
	// when the rule has never fired. Drives duplicate-fire suppression.
	LatestEventForRule(ctx context.Context, ruleID uint) (*entities.AlertEvent, error)
}

// AlertRuleFilter controls rule listing queries.
type AlertRuleFilter struct {
	Scope   string
	Metric  string
	Enabled *bool
}

// AlertEventFilter controls event listing queries.
type AlertEventFilter struct {
	RuleID uint
	Repo   string
	Limit  int
	Offset int
}
