package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/kkkkikiki/campaign/internal/model"
	"github.com/kkkkikiki/campaign/internal/rules"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	maxUsageMinutes      = 24 * 60
	maxCampaignDuration  = 2 * 365 * 24 * time.Hour
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateCampaign checks a campaign definition before it is stored.
func ValidateCampaign(c *model.Campaign) error {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return &ValidationError{Field: "title", Message: "is required"}
	}
	if len(title) > maxTitleLength {
		return &ValidationError{Field: "title", Message: fmt.Sprintf("cannot exceed %d characters", maxTitleLength)}
	}

	if len(c.Description) > maxDescriptionLength {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("cannot exceed %d characters", maxDescriptionLength)}
	}

	if c.StartDate.IsZero() {
		return &ValidationError{Field: "start_date", Message: "is required"}
	}
	if c.EndDate.IsZero() {
		return &ValidationError{Field: "end_date", Message: "is required"}
	}
	if !c.StartDate.Before(c.EndDate) {
		return &ValidationError{Field: "start_date", Message: "must be before end_date"}
	}
	if c.EndDate.Sub(c.StartDate) > maxCampaignDuration {
		return &ValidationError{Field: "end_date", Message: "campaign duration cannot exceed 2 years"}
	}

	if c.UsageDurationMinutes < 1 || c.UsageDurationMinutes > maxUsageMinutes {
		return &ValidationError{
			Field:   "usage_duration_minutes",
			Message: fmt.Sprintf("must be between 1 and %d", maxUsageMinutes),
		}
	}

	switch c.RuleType {
	case model.RuleTypeStatic, model.RuleTypeDynamic:
	default:
		return &ValidationError{Field: "rule_type", Message: fmt.Sprintf("unknown rule type %q", c.RuleType)}
	}

	switch c.TriggerEvent {
	case model.TriggerNone, model.TriggerRegistration, model.TriggerReservation, model.TriggerPurchase:
	default:
		return &ValidationError{Field: "trigger_event", Message: fmt.Sprintf("unknown trigger event %q", c.TriggerEvent)}
	}

	if err := validateCriteria(c.Criteria); err != nil {
		return err
	}

	for _, id := range c.AllowedBusinessIDs {
		if id <= 0 {
			return &ValidationError{Field: "allowed_business_ids", Message: "must contain positive IDs"}
		}
	}

	return nil
}

func validateCriteria(c rules.Criteria) error {
	if unknown := c.UnknownKeys(); len(unknown) > 0 {
		return &ValidationError{
			Field:   "criteria",
			Message: fmt.Sprintf("unknown criteria: %s", strings.Join(unknown, ", ")),
		}
	}
	for _, item := range c.Items {
		if item.Threshold < 0 {
			return &ValidationError{
				Field:   "criteria." + item.Kind.String(),
				Message: "must be non-negative",
			}
		}
	}
	return nil
}
