package model

import (
	"time"

	"github.com/kkkkikiki/campaign/internal/rules"
)

// RuleType decides how a campaign reaches users.
type RuleType string

const (
	RuleTypeStatic  RuleType = "static"  // granted manually
	RuleTypeDynamic RuleType = "dynamic" // granted by the rule engine
)

// TriggerEvent names the platform event a campaign is associated with.
type TriggerEvent string

const (
	TriggerNone         TriggerEvent = "none"
	TriggerRegistration TriggerEvent = "registration"
	TriggerReservation  TriggerEvent = "reservation"
	TriggerPurchase     TriggerEvent = "purchase"
)

// DefaultUsageDurationMinutes is the token lifetime when a campaign does not set one.
const DefaultUsageDurationMinutes = 10

// Campaign represents a promotional campaign in the database
type Campaign struct {
	ID                   int64          `db:"id" json:"id"`
	Title                string         `db:"title" json:"title"`
	Description          string         `db:"description" json:"description,omitempty"`
	StartDate            time.Time      `db:"start_date" json:"start_date"`
	EndDate              time.Time      `db:"end_date" json:"end_date"`
	IsActive             bool           `db:"is_active" json:"is_active"`
	IsSingleUse          bool           `db:"is_single_use" json:"is_single_use"`
	UsageDurationMinutes int            `db:"usage_duration_minutes" json:"usage_duration_minutes"`
	RuleType             RuleType       `db:"rule_type" json:"rule_type"`
	TriggerEvent         TriggerEvent   `db:"trigger_event" json:"trigger_event"`
	Criteria             rules.Criteria `db:"criteria_json" json:"criteria"`
	RulesDescription     string         `db:"rules_description" json:"rules_description,omitempty"`
	AllowedBusinessIDs   []int64        `db:"-" json:"allowed_business_ids,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
}

// InWindow reports whether t falls inside [StartDate, EndDate].
func (c *Campaign) InWindow(t time.Time) bool {
	return !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// AllowsBusiness reports whether the campaign may be redeemed at businessID.
// An empty allowed set means no restriction.
func (c *Campaign) AllowsBusiness(businessID int64) bool {
	if len(c.AllowedBusinessIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedBusinessIDs {
		if id == businessID {
			return true
		}
	}
	return false
}

// UsageDuration returns the token lifetime of the campaign.
func (c *Campaign) UsageDuration() time.Duration {
	minutes := c.UsageDurationMinutes
	if minutes <= 0 {
		minutes = DefaultUsageDurationMinutes
	}
	return time.Duration(minutes) * time.Minute
}
