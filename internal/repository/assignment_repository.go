package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/campaign/internal/model"
)

const assignmentColumns = `id, user_id, campaign_id, assigned_at, expires_at, is_used,
	assigned_by_rule_engine, qr_token, qr_expires_at`

// joinedColumns selects an assignment and its campaign as model.ActiveCampaign.
const joinedColumns = `
	a.id AS "assignment.id",
	a.user_id AS "assignment.user_id",
	a.campaign_id AS "assignment.campaign_id",
	a.assigned_at AS "assignment.assigned_at",
	a.expires_at AS "assignment.expires_at",
	a.is_used AS "assignment.is_used",
	a.assigned_by_rule_engine AS "assignment.assigned_by_rule_engine",
	a.qr_token AS "assignment.qr_token",
	a.qr_expires_at AS "assignment.qr_expires_at",
	c.id AS "campaign.id",
	c.title AS "campaign.title",
	c.description AS "campaign.description",
	c.start_date AS "campaign.start_date",
	c.end_date AS "campaign.end_date",
	c.is_active AS "campaign.is_active",
	c.is_single_use AS "campaign.is_single_use",
	c.usage_duration_minutes AS "campaign.usage_duration_minutes",
	c.rule_type AS "campaign.rule_type",
	c.trigger_event AS "campaign.trigger_event",
	c.criteria_json AS "campaign.criteria_json",
	c.rules_description AS "campaign.rules_description",
	c.created_at AS "campaign.created_at"`

// AssignmentRepository handles campaign assignment data operations
type AssignmentRepository struct{}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository() *AssignmentRepository {
	return &AssignmentRepository{}
}

// FindAssignment returns the assignment of campaignID to userID.
func (r *AssignmentRepository) FindAssignment(ctx context.Context, db DBExecutor, userID, campaignID int64) (*model.Assignment, error) {
	query := db.Rebind(`
		SELECT ` + assignmentColumns + `
		FROM campaign_assignments
		WHERE user_id = ? AND campaign_id = ?
	`)

	var a model.Assignment
	if err := db.GetContext(ctx, &a, query, userID, campaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find assignment: %w", err)
	}
	return &a, nil
}

// CreateAssignment inserts the assignment unless one already exists for the
// same (user, campaign). It reports whether a row was created; on success the
// generated ID is set on a.
func (r *AssignmentRepository) CreateAssignment(ctx context.Context, db DBExecutor, a *model.Assignment) (bool, error) {
	query := db.Rebind(`
		INSERT INTO campaign_assignments (user_id, campaign_id, assigned_at, expires_at, is_used, assigned_by_rule_engine)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, campaign_id) DO NOTHING
		RETURNING id
	`)

	err := db.GetContext(ctx, &a.ID, query,
		a.UserID, a.CampaignID, a.AssignedAt.UTC(), utcPtr(a.ExpiresAt), a.IsUsed, a.AssignedByRuleEngine)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create assignment: %w", err)
	}
	return true, nil
}

// GetForUser returns the assignment with id owned by userID, joined with its
// campaign and allowed businesses.
func (r *AssignmentRepository) GetForUser(ctx context.Context, db DBExecutor, id, userID int64) (*model.ActiveCampaign, error) {
	query := db.Rebind(`
		SELECT ` + joinedColumns + `
		FROM campaign_assignments a
		JOIN campaigns c ON c.id = a.campaign_id
		WHERE a.id = ? AND a.user_id = ?
	`)
	return r.getJoined(ctx, db, query, id, userID)
}

// GetByToken returns the assignment currently holding token.
func (r *AssignmentRepository) GetByToken(ctx context.Context, db DBExecutor, token string) (*model.ActiveCampaign, error) {
	query := db.Rebind(`
		SELECT ` + joinedColumns + `
		FROM campaign_assignments a
		JOIN campaigns c ON c.id = a.campaign_id
		WHERE a.qr_token = ?
	`)
	return r.getJoined(ctx, db, query, token)
}

func (r *AssignmentRepository) getJoined(ctx context.Context, db DBExecutor, query string, args ...interface{}) (*model.ActiveCampaign, error) {
	var row model.ActiveCampaign
	if err := db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	businesses, err := NewCampaignRepository().AllowedBusinesses(ctx, db, row.Campaign.ID)
	if err != nil {
		return nil, err
	}
	row.Campaign.AllowedBusinessIDs = businesses
	return &row, nil
}

// SwapToken replaces the assignment's token only if the stored token still
// equals prev ("" for none). It reports whether the swap happened.
func (r *AssignmentRepository) SwapToken(ctx context.Context, db DBExecutor, id, userID int64, prev, token string, expiresAt time.Time) (bool, error) {
	query := db.Rebind(`
		UPDATE campaign_assignments
		SET qr_token = ?, qr_expires_at = ?
		WHERE id = ? AND user_id = ? AND COALESCE(qr_token, '') = ?
	`)

	result, err := db.ExecContext(ctx, query, token, expiresAt.UTC(), id, userID, prev)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("failed to store token: %w", ErrConflict)
		}
		return false, fmt.Errorf("failed to store token: %w", err)
	}

	swapped, err := rowsAffected(result)
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return swapped, nil
}

// MarkRedeemed consumes token on assignment id. The token is cleared and
// is_used is set to markUsed. Only an unused assignment still holding token
// matches, so a token redeems at most once.
func (r *AssignmentRepository) MarkRedeemed(ctx context.Context, db DBExecutor, id int64, token string, markUsed bool) (bool, error) {
	query := db.Rebind(`
		UPDATE campaign_assignments
		SET is_used = ?, qr_token = NULL, qr_expires_at = NULL
		WHERE id = ? AND qr_token = ? AND is_used = ?
	`)

	result, err := db.ExecContext(ctx, query, markUsed, id, token, false)
	if err != nil {
		return false, fmt.Errorf("failed to mark assignment redeemed: %w", err)
	}

	marked, err := rowsAffected(result)
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return marked, nil
}

// ListUnused returns the user's unused assignments joined with their
// campaigns, ordered by assignment ID.
func (r *AssignmentRepository) ListUnused(ctx context.Context, db DBExecutor, userID int64) ([]model.ActiveCampaign, error) {
	query := db.Rebind(`
		SELECT ` + joinedColumns + `
		FROM campaign_assignments a
		JOIN campaigns c ON c.id = a.campaign_id
		WHERE a.user_id = ? AND a.is_used = ?
		ORDER BY a.id ASC
	`)

	var rows []model.ActiveCampaign
	if err := db.SelectContext(ctx, &rows, query, userID, false); err != nil {
		return nil, fmt.Errorf("failed to list unused assignments: %w", err)
	}
	return rows, nil
}

func utcPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
