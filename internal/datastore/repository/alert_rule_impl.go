package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kwestby/ciwatch/internal/datastore/entities"
	"gorm.io/gorm"
)

// alertRuleRepository implements AlertRuleRepository.
type alertRuleRepository struct {
	db *gorm.DB
}

// NewAlertRuleRepository creates a new AlertRuleRepository.
func NewAlertRuleRepository(db *gorm.DB) AlertRuleRepository {
	return &alertRuleRepository{db: db}
}

// ListRules returns alert rules matching the given filter.
func (r *alertRuleRepository) ListRules(ctx context.Context, filter AlertRuleFilter) ([]entities.AlertRule, error) {
	var rules []entities.AlertRule
	query := r.db.WithContext(ctx)

	if filter.Scope != "" {
		query = query.Where("scope = ?", filter.Scope)
	}
	if filter.Metric != "" {
		query = query.Where("metric = ?", filter.Metric)
	}
	if filter.Enabled != nil {
		query = query.Where("enabled = ?", *filter.Enabled)
	}

	if err := query.Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	return rules, nil
}

// GetRule returns a single alert rule by ID.
// Returns ErrAlertRuleNotFound if the rule does not exist.
func (r *alertRuleRepository) GetRule(ctx context.Context, id uint) (*entities.AlertRule, error) {
	var rule entities.AlertRule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertRuleNotFound
		}
		return nil, fmt.Errorf("failed to get alert rule %d: %w", id, err)
	}
	return &rule, nil
}

// CreateRule creates a new alert rule.
func (r *alertRuleRepository) CreateRule(ctx context.Context, rule *entities.AlertRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}
	return nil
}

// UpdateRule replaces an alert rule.
func (r *alertRuleRepository) UpdateRule(ctx context.Context, rule *entities.AlertRule) error {
	if rule.ID == 0 {
		return fmt.Errorf("failed to update alert rule: missing rule ID")
	}
	if err := r.db.WithContext(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("failed to update alert rule: %w", err)
	}
	return nil
}

// DeleteRule deletes an alert rule; its events are removed via cascade.
func (r *alertRuleRepository) DeleteRule(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&entities.AlertRule{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete alert rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlertRuleNotFound
	}
	return nil
}

// ToggleRule enables or disables an alert rule.
func (r *alertRuleRepository) ToggleRule(ctx context.Context, id uint, enabled bool) error {
	result := r.db.WithContext(ctx).Model(&entities.AlertRule{}).Where("id = ?", id).Update("enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("failed to toggle alert rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlertRuleNotFound
	}
	return nil
}

// GetEnabledRulesForScope returns enabled rules scoped to the repository,
// including organization-wide "owner/*" rules.
func (r *alertRuleRepository) GetEnabledRulesForScope(ctx context.Context, repo string) ([]entities.AlertRule, error) {
	scopes := []string{repo}
	if owner, _, ok := strings.Cut(repo, "/"); ok {
		scopes = append(scopes, owner+"/*")
	}

	var rules []entities.AlertRule
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND scope IN ?", true, scopes).
		Order("id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get enabled rules for %s: %w", repo, err)
	}
	return rules, nil
}

// SaveEvent appends an alert event.
func (r *alertRuleRepository) SaveEvent(ctx context.Context, event *entities.AlertEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to save alert event: %w", err)
	}
	return nil
}

// ListEvents returns alert events matching the filter with pagination,
// newest first.
func (r *alertRuleRepository) ListEvents(ctx context.Context, filter AlertEventFilter) ([]entities.AlertEvent, int64, error) {
	var items []entities.AlertEvent
	var total int64

	countQuery := r.db.WithContext(ctx).Model(&entities.AlertEvent{})
	if filter.RuleID > 0 {
		countQuery = countQuery.Where("rule_id = ?", filter.RuleID)
	}
	if filter.Repo != "" {
		countQuery = countQuery.Where("repo = ?", filter.Repo)
	}
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alert events: %w", err)
	}

	query := r.db.WithContext(ctx).Preload("Rule").Order("fired_at DESC")
	if filter.RuleID > 0 {
		query = query.Where("rule_id = ?", filter.RuleID)
	}
	if filter.Repo != "" {
		query = query.Where("repo = ?", filter.Repo)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alert events: %w", err)
	}
	return items, total, nil
}

// LatestEventForRule returns the most recent firing for a rule, or nil if
// the rule has never fired.
func (r *alertRuleRepository) LatestEventForRule(ctx context.Context, ruleID uint) (*entities.AlertEvent, error) {
	var event entities.AlertEvent
	err := r.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("fired_at DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest event for rule %d: %w", ruleID, err)
	}
	return &event, nil
}
