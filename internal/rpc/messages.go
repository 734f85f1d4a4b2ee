package rpc

import (
	"time"

	"github.com/kkkkikiki/campaign/internal/model"
)

// Evaluation is one campaign evaluation of an allocator pass.
type Evaluation struct {
	CampaignID      int64           `json:"campaign_id"`
	Results         map[string]bool `json:"results"`
	Eligible        bool            `json:"eligible"`
	IgnoredCriteria []string        `json:"ignored_criteria,omitempty"`
}

type AssignResponse struct {
	RunID     string             `json:"run_id"`
	Evaluated []Evaluation       `json:"evaluated"`
	Assigned  []model.Assignment `json:"assigned"`
}

type UseCampaignRequest struct {
	AssignmentID int64  `json:"assignment_id"`
	BusinessID   *int64 `json:"business_id,omitempty"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Reused    bool      `json:"reused"`
}

type ListResponse struct {
	Campaigns []model.ActiveCampaign `json:"campaigns"`
}

type RedeemRequest struct {
	Token string `json:"token"`
}

type UsageResponse struct {
	Usage model.Usage `json:"usage"`
}

type ListUsagesResponse struct {
	Usages []model.Usage `json:"usages"`
}

type CreateCampaignRequest struct {
	Campaign model.Campaign `json:"campaign"`
}

type CampaignResponse struct {
	Campaign model.Campaign `json:"campaign"`
}
