package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/kkkkikiki/campaign/internal/model"
	"github.com/kkkkikiki/campaign/internal/validation"
)

// CreateCampaign validates and stores a campaign with its allowed-business
// restriction. Unset rule type, trigger event and usage duration take their
// defaults. Callers check RequireAdmin first.
func (e *Engine) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	if c.RuleType == "" {
		c.RuleType = model.RuleTypeStatic
	}
	if c.TriggerEvent == "" {
		c.TriggerEvent = model.TriggerNone
	}
	if c.UsageDurationMinutes == 0 {
		c.UsageDurationMinutes = model.DefaultUsageDurationMinutes
	}
	c.AllowedBusinessIDs = dedupe(c.AllowedBusinessIDs)

	if err := validation.ValidateCampaign(c); err != nil {
		return err
	}

	c.CreatedAt = e.now()
	err := e.store.Atomic(ctx, func(tx Store) error {
		return tx.CreateCampaign(ctx, c)
	})
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
