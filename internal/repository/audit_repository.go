package repository

import (
	"context"
	"fmt"

	"github.com/kkkkikiki/campaign/internal/model"
)

// AuditRepository appends to the engine's history tables: rule evaluation
// logs, redemption usages and the activity feed.
type AuditRepository struct{}

// NewAuditRepository creates a new audit repository
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// AppendRuleLog records one evaluation result
func (r *AuditRepository) AppendRuleLog(ctx context.Context, db DBExecutor, entry *model.RuleEvaluationLog) error {
	query := db.Rebind(`
		INSERT INTO rule_evaluation_logs (run_id, user_id, campaign_id, rule_result, eligible, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := db.GetContext(ctx, &entry.ID, query,
		entry.RunID, entry.UserID, entry.CampaignID, entry.Results, entry.Eligible, entry.EvaluatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append rule evaluation log: %w", err)
	}
	return nil
}

// ListRuleLogs returns the evaluation history of a user against a campaign,
// oldest first.
func (r *AuditRepository) ListRuleLogs(ctx context.Context, db DBExecutor, userID, campaignID int64) ([]model.RuleEvaluationLog, error) {
	query := db.Rebind(`
		SELECT id, run_id, user_id, campaign_id, rule_result, eligible, evaluated_at
		FROM rule_evaluation_logs
		WHERE user_id = ? AND campaign_id = ?
		ORDER BY id ASC
	`)

	var logs []model.RuleEvaluationLog
	if err := db.SelectContext(ctx, &logs, query, userID, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list rule evaluation logs: %w", err)
	}
	return logs, nil
}

// LogActivity appends an entry to the activity feed
func (r *AuditRepository) LogActivity(ctx context.Context, db DBExecutor, activity model.Activity) error {
	query := db.Rebind(`
		INSERT INTO activities (user_id, business_id, action_type, created_at)
		VALUES (?, ?, ?, ?)
	`)

	_, err := db.ExecContext(ctx, query,
		activity.UserID, activity.BusinessID, activity.ActionType, activity.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}

// ListActivities returns the user's activity entries, oldest first.
func (r *AuditRepository) ListActivities(ctx context.Context, db DBExecutor, userID int64) ([]model.Activity, error) {
	query := db.Rebind(`
		SELECT user_id, business_id, action_type, created_at
		FROM activities
		WHERE user_id = ?
		ORDER BY id ASC
	`)

	var activities []model.Activity
	if err := db.SelectContext(ctx, &activities, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return activities, nil
}

// AppendUsage records a confirmed redemption
func (r *AuditRepository) AppendUsage(ctx context.Context, db DBExecutor, usage *model.Usage) error {
	query := db.Rebind(`
		INSERT INTO campaign_usages (assignment_id, user_id, business_id, used_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`)

	err := db.GetContext(ctx, &usage.ID, query,
		usage.AssignmentID, usage.UserID, usage.BusinessID, usage.UsedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append campaign usage: %w", err)
	}
	return nil
}

// ListUsages returns the user's redemption history, newest first.
func (r *AuditRepository) ListUsages(ctx context.Context, db DBExecutor, userID int64) ([]model.Usage, error) {
	query := db.Rebind(`
		SELECT u.id, u.assignment_id, a.campaign_id, u.user_id, u.business_id, u.used_at
		FROM campaign_usages u
		JOIN campaign_assignments a ON a.id = u.assignment_id
		WHERE u.user_id = ?
		ORDER BY u.used_at DESC, u.id DESC
	`)

	var usages []model.Usage
	if err := db.SelectContext(ctx, &usages, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list campaign usages: %w", err)
	}
	return usages, nil
}
