package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kkkkikiki/campaign/internal/metrics"
	"github.com/kkkkikiki/campaign/internal/model"
)

// RedeemToken confirms a redemption presented at businessID. The token is
// consumed, a usage record is appended and, for single-use campaigns, the
// assignment becomes used.
func (e *Engine) RedeemToken(ctx context.Context, token string, businessID int64) (*model.Usage, error) {
	ctx, span := tracer.Start(ctx, "engine.RedeemToken",
		trace.WithAttributes(attribute.Int64("business.id", businessID)))
	defer span.End()

	var usage *model.Usage
	err := e.store.Atomic(ctx, func(tx Store) error {
		row, err := tx.AssignmentByToken(ctx, token)
		if err != nil {
			return err
		}

		now := e.now()
		if !row.Assignment.HasValidToken(now) {
			return ErrTokenExpired
		}
		if row.Campaign.IsSingleUse && row.Assignment.IsUsed {
			return ErrAlreadyUsed
		}
		if !row.Campaign.IsActive || !row.Campaign.InWindow(now) {
			return ErrCampaignInactive
		}
		if !row.Campaign.AllowsBusiness(businessID) {
			return ErrBusinessNotAllowed
		}

		marked, err := tx.MarkRedeemed(ctx, row.Assignment.ID, token, row.Campaign.IsSingleUse)
		if err != nil {
			return err
		}
		if !marked {
			return ErrAlreadyUsed
		}

		usage = &model.Usage{
			AssignmentID: row.Assignment.ID,
			CampaignID:   row.Campaign.ID,
			UserID:       row.Assignment.UserID,
			BusinessID:   businessID,
			UsedAt:       now,
		}
		if err := tx.AppendUsage(ctx, usage); err != nil {
			return err
		}

		return tx.LogActivity(ctx, model.Activity{
			UserID:     row.Assignment.UserID,
			BusinessID: &businessID,
			ActionType: model.ActionCampaignRedeemed,
			CreatedAt:  now,
		})
	})
	if err != nil {
		metrics.RecordRedemption(redemptionResult(err))
		if isDomainError(err) {
			return nil, err
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to redeem token: %w", err)
	}

	metrics.RecordRedemption("redeemed")
	e.invalidate(ctx, usage.UserID)
	return usage, nil
}

// ListUsages returns the user's redemption history, newest first.
func (e *Engine) ListUsages(ctx context.Context, userID int64) ([]model.Usage, error) {
	usages, err := e.store.ListUsages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list usages: %w", err)
	}
	return usages, nil
}

func redemptionResult(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, ErrCampaignInactive):
		return "inactive"
	case errors.Is(err, ErrBusinessNotAllowed):
		return "business_not_allowed"
	default:
		return "failed"
	}
}

func isDomainError(err error) bool {
	return redemptionResult(err) != "failed"
}
