package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kkkkikiki/campaign/internal/metrics"
	"github.com/kkkkikiki/campaign/internal/model"
)

// maxSwapAttempts bounds how often UseCampaign retries after losing a token
// swap to a concurrent request.
const maxSwapAttempts = 3

// Token is a redemption token and the instant it stops being valid.
type Token struct {
	Value     string
	ExpiresAt time.Time
	// Reused is set when an existing unexpired token was returned.
	Reused bool
}

// UseCampaign returns a redemption token for the user's assignment. An
// unexpired token is returned unchanged; otherwise a new one valid for the
// campaign's usage duration is issued. businessID, when set, names the venue
// recorded in the activity feed.
func (e *Engine) UseCampaign(ctx context.Context, assignmentID, userID int64, businessID *int64) (*Token, error) {
	ctx, span := tracer.Start(ctx, "engine.UseCampaign", trace.WithAttributes(
		attribute.Int64("assignment.id", assignmentID),
		attribute.Int64("user.id", userID),
	))
	defer span.End()

	start := time.Now()
	result := "failed"
	defer func() {
		metrics.RecordTokenIssueDuration(result, time.Since(start).Seconds())
	}()

	var token *Token
	err := e.store.Atomic(ctx, func(tx Store) error {
		var err error
		token, err = e.issueToken(ctx, tx, assignmentID, userID, businessID)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
		return nil, err
	case errors.Is(err, ErrAlreadyUsed):
		result = "already_used"
		return nil, err
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to issue redemption token: %w", err)
	}

	result = "issued"
	if token.Reused {
		result = "reused"
	}
	span.SetAttributes(attribute.Bool("token.reused", token.Reused))
	return token, nil
}

func (e *Engine) issueToken(ctx context.Context, tx Store, assignmentID, userID int64, businessID *int64) (*Token, error) {
	now := e.now()

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		row, err := tx.AssignmentForUser(ctx, assignmentID, userID)
		if err != nil {
			return nil, err
		}

		if row.Campaign.IsSingleUse && row.Assignment.IsUsed {
			return nil, ErrAlreadyUsed
		}

		if row.Assignment.HasValidToken(now) {
			return &Token{
				Value:     *row.Assignment.Token,
				ExpiresAt: *row.Assignment.TokenExpiresAt,
				Reused:    true,
			}, nil
		}

		value, err := e.newToken()
		if err != nil {
			return nil, err
		}
		expiresAt := now.Add(row.Campaign.UsageDuration())

		swapped, err := tx.SwapToken(ctx, row.Assignment.ID, userID, row.Assignment.CurrentToken(), value, expiresAt)
		if err != nil {
			return nil, err
		}
		if !swapped {
			// Another request replaced the token first; re-read and use theirs.
			continue
		}

		err = tx.LogActivity(ctx, model.Activity{
			UserID:     userID,
			BusinessID: businessID,
			ActionType: model.ActionCampaignUsage,
			CreatedAt:  now,
		})
		if err != nil {
			return nil, err
		}
		return &Token{Value: value, ExpiresAt: expiresAt}, nil
	}

	return nil, fmt.Errorf("token for assignment %d changed concurrently %d times", assignmentID, maxSwapAttempts)
}
