package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kkkkikiki/campaign/internal/cache"
	"github.com/kkkkikiki/campaign/internal/metrics"
	"github.com/kkkkikiki/campaign/internal/model"
)

// ListActiveCampaigns returns the user's unused assignments whose campaign is
// active and whose window contains now, ordered by assignment ID.
func (e *Engine) ListActiveCampaigns(ctx context.Context, userID int64, now time.Time) ([]model.ActiveCampaign, error) {
	ctx, span := tracer.Start(ctx, "engine.ListActiveCampaigns")
	defer span.End()

	rows, err := e.unusedAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}

	active := make([]model.ActiveCampaign, 0, len(rows))
	for _, row := range rows {
		if row.Assignment.IsUsed || !row.Campaign.IsActive || !row.Campaign.InWindow(now) {
			continue
		}
		active = append(active, row)
	}
	return active, nil
}

// unusedAssignments reads through the listing cache. The cached set does not
// depend on the clock, so time filtering always happens on the caller's now.
func (e *Engine) unusedAssignments(ctx context.Context, userID int64) ([]model.ActiveCampaign, error) {
	if e.cache != nil {
		var rows []model.ActiveCampaign
		err := cache.GetJSON(ctx, e.cache, listingKey(userID), &rows)
		switch {
		case err == nil:
			metrics.RecordCacheLookup("hit")
			return rows, nil
		case errors.Is(err, cache.ErrNotFound):
			metrics.RecordCacheLookup("miss")
		default:
			metrics.RecordCacheLookup("error")
			log.Printf("engine: listing cache read failed for user %d: %v", userID, err)
		}
	}

	rows, err := e.store.UnusedAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unused assignments: %w", err)
	}

	if e.cache != nil {
		if err := cache.SetJSON(ctx, e.cache, listingKey(userID), rows, e.cacheTTL); err != nil {
			log.Printf("engine: listing cache write failed for user %d: %v", userID, err)
		}
	}
	return rows, nil
}
