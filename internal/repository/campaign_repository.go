package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kkkkikiki/campaign/internal/model"
)

const campaignColumns = `id, title, description, start_date, end_date, is_active, is_single_use,
	usage_duration_minutes, rule_type, trigger_event, criteria_json, rules_description, created_at`

// CampaignRepository handles campaign data operations
type CampaignRepository struct{}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{}
}

// CreateCampaign creates a new campaign and its allowed-business mapping.
// Callers run it inside a transaction so the mapping is never partial.
func (r *CampaignRepository) CreateCampaign(ctx context.Context, db DBExecutor, campaign *model.Campaign) error {
	query := db.Rebind(`
		INSERT INTO campaigns (title, description, start_date, end_date, is_active, is_single_use,
			usage_duration_minutes, rule_type, trigger_event, criteria_json, rules_description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := db.GetContext(ctx, &campaign.ID, query,
		campaign.Title, campaign.Description, campaign.StartDate.UTC(), campaign.EndDate.UTC(),
		campaign.IsActive, campaign.IsSingleUse, campaign.UsageDurationMinutes,
		string(campaign.RuleType), string(campaign.TriggerEvent), campaign.Criteria,
		campaign.RulesDescription, campaign.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	insertBusiness := db.Rebind(`
		INSERT INTO campaign_businesses (campaign_id, business_id)
		VALUES (?, ?)
		ON CONFLICT (campaign_id, business_id) DO NOTHING
	`)
	for _, businessID := range campaign.AllowedBusinessIDs {
		if _, err := db.ExecContext(ctx, insertBusiness, campaign.ID, businessID); err != nil {
			return fmt.Errorf("failed to map business %d to campaign: %w", businessID, err)
		}
	}

	return nil
}

// GetCampaign retrieves a campaign by ID, including its allowed businesses
func (r *CampaignRepository) GetCampaign(ctx context.Context, db DBExecutor, id int64) (*model.Campaign, error) {
	query := db.Rebind(`SELECT ` + campaignColumns + ` FROM campaigns WHERE id = ?`)

	var campaign model.Campaign
	if err := db.GetContext(ctx, &campaign, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("campaign %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	businesses, err := r.AllowedBusinesses(ctx, db, id)
	if err != nil {
		return nil, err
	}
	campaign.AllowedBusinessIDs = businesses

	return &campaign, nil
}

// ListActiveDynamic returns every active campaign granted by the rule engine,
// ordered by ID.
func (r *CampaignRepository) ListActiveDynamic(ctx context.Context, db DBExecutor) ([]model.Campaign, error) {
	query := db.Rebind(`
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE rule_type = ? AND is_active = ?
		ORDER BY id ASC
	`)

	var campaigns []model.Campaign
	if err := db.SelectContext(ctx, &campaigns, query, string(model.RuleTypeDynamic), true); err != nil {
		return nil, fmt.Errorf("failed to list dynamic campaigns: %w", err)
	}
	return campaigns, nil
}

// AllowedBusinesses returns the business IDs a campaign is restricted to.
// An empty result means the campaign is not restricted.
func (r *CampaignRepository) AllowedBusinesses(ctx context.Context, db DBExecutor, campaignID int64) ([]int64, error) {
	query := db.Rebind(`
		SELECT business_id
		FROM campaign_businesses
		WHERE campaign_id = ?
		ORDER BY business_id ASC
	`)

	var ids []int64
	if err := db.SelectContext(ctx, &ids, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to get allowed businesses: %w", err)
	}
	return ids, nil
}
