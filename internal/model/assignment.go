package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/kkkkikiki/campaign/internal/rules"
)

// Assignment binds a campaign to a user
type Assignment struct {
	ID                   int64      `db:"id" json:"id"`
	UserID               int64      `db:"user_id" json:"user_id"`
	CampaignID           int64      `db:"campaign_id" json:"campaign_id"`
	AssignedAt           time.Time  `db:"assigned_at" json:"assigned_at"`
	ExpiresAt            *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	IsUsed               bool       `db:"is_used" json:"is_used"`
	AssignedByRuleEngine bool       `db:"assigned_by_rule_engine" json:"assigned_by_rule_engine"`
	Token                *string    `db:"qr_token" json:"-"`
	TokenExpiresAt       *time.Time `db:"qr_expires_at" json:"-"`
}

// HasValidToken reports whether the assignment carries a token that is still
// valid at now. A token expiring exactly at now is expired.
func (a *Assignment) HasValidToken(now time.Time) bool {
	return a.Token != nil && *a.Token != "" &&
		a.TokenExpiresAt != nil && a.TokenExpiresAt.After(now)
}

// CurrentToken returns the stored token value, or "" when none is set.
func (a *Assignment) CurrentToken() string {
	if a.Token == nil {
		return ""
	}
	return *a.Token
}

// ActiveCampaign is an assignment joined with its campaign.
type ActiveCampaign struct {
	Assignment Assignment `db:"assignment" json:"assignment"`
	Campaign   Campaign   `db:"campaign" json:"campaign"`
}

// Usage records one confirmed redemption
type Usage struct {
	ID           int64     `db:"id" json:"id"`
	AssignmentID int64     `db:"assignment_id" json:"assignment_id"`
	CampaignID   int64     `db:"campaign_id" json:"campaign_id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	BusinessID   int64     `db:"business_id" json:"business_id"`
	UsedAt       time.Time `db:"used_at" json:"used_at"`
}

// RuleEvaluationLog records one evaluation of a user against a campaign
type RuleEvaluationLog struct {
	ID          int64         `db:"id" json:"id"`
	RunID       uuid.UUID     `db:"run_id" json:"run_id"`
	UserID      int64         `db:"user_id" json:"user_id"`
	CampaignID  int64         `db:"campaign_id" json:"campaign_id"`
	Results     rules.Results `db:"rule_result" json:"rule_result"`
	Eligible    bool          `db:"eligible" json:"eligible"`
	EvaluatedAt time.Time     `db:"evaluated_at" json:"evaluated_at"`
}

// Activity action types written by the engine.
const (
	ActionCampaignUsage    = "campaign_usage"
	ActionCampaignRedeemed = "campaign_redeemed"
)

// Activity is an entry in the platform's user activity feed.
type Activity struct {
	UserID     int64     `db:"user_id"`
	BusinessID *int64    `db:"business_id"`
	ActionType string    `db:"action_type"`
	CreatedAt  time.Time `db:"created_at"`
}
