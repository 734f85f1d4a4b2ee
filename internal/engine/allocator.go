package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kkkkikiki/campaign/internal/metrics"
	"github.com/kkkkikiki/campaign/internal/model"
	"github.com/kkkkikiki/campaign/internal/rules"
)

// AllocationResult summarises one AssignEligibleCampaigns pass.
type AllocationResult struct {
	RunID     uuid.UUID
	Evaluated []model.RuleEvaluationLog
	Assigned  []model.Assignment
	// Unknown lists, per campaign ID, criteria keys that were ignored.
	Unknown map[int64][]string
}

// AssignEligibleCampaigns evaluates the user against every active dynamic
// campaign and assigns the ones whose criteria all pass and that the user
// does not hold yet. Every evaluation is logged, eligible or not. All writes
// of the pass commit together.
func (e *Engine) AssignEligibleCampaigns(ctx context.Context, userID int64) (*AllocationResult, error) {
	ctx, span := tracer.Start(ctx, "engine.AssignEligibleCampaigns",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	start := time.Now()
	status := "failed"
	defer func() {
		metrics.RecordAllocationDuration(status, time.Since(start).Seconds())
	}()

	campaigns, err := e.store.ActiveDynamicCampaigns(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to load dynamic campaigns: %w", err)
	}

	history, err := e.store.UserMetrics(ctx, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to load user metrics: %w", err)
	}

	var result *AllocationResult
	err = e.store.Atomic(ctx, func(tx Store) error {
		result = &AllocationResult{RunID: uuid.New(), Unknown: make(map[int64][]string)}
		now := e.now()

		for _, campaign := range campaigns {
			if unknown := campaign.Criteria.UnknownKeys(); len(unknown) > 0 {
				result.Unknown[campaign.ID] = unknown
			}

			evaluation := evaluate(userID, campaign, history, result.RunID, now)
			if evaluation.Eligible {
				assignment, err := assignOnce(ctx, tx, userID, campaign.ID, now)
				if err != nil {
					return err
				}
				if assignment != nil {
					result.Assigned = append(result.Assigned, *assignment)
				}
			}

			if err := tx.AppendRuleLog(ctx, &evaluation); err != nil {
				return fmt.Errorf("campaign %d: %w", campaign.ID, err)
			}
			result.Evaluated = append(result.Evaluated, evaluation)
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to assign eligible campaigns: %w", err)
	}

	for campaignID, keys := range result.Unknown {
		log.Printf("engine: campaign %d has unrecognised criteria %v, ignored", campaignID, keys)
	}
	for _, evaluation := range result.Evaluated {
		metrics.RecordRuleEvaluation(evaluation.Eligible)
	}
	if len(result.Assigned) > 0 {
		metrics.AssignmentsCreated.Add(float64(len(result.Assigned)))
		e.invalidate(ctx, userID)
	}

	span.SetAttributes(
		attribute.Int("campaigns.evaluated", len(result.Evaluated)),
		attribute.Int("campaigns.assigned", len(result.Assigned)),
	)
	status = "success"
	return result, nil
}

func evaluate(userID int64, campaign model.Campaign, history rules.Metrics, runID uuid.UUID, now time.Time) model.RuleEvaluationLog {
	results := rules.Evaluate(history, campaign.Criteria)
	return model.RuleEvaluationLog{
		RunID:       runID,
		UserID:      userID,
		CampaignID:  campaign.ID,
		Results:     results,
		Eligible:    results.Eligible(),
		EvaluatedAt: now,
	}
}

// assignOnce creates the (user, campaign) assignment unless one exists. It
// returns nil when nothing was created, including when a concurrent pass won
// the insert.
func assignOnce(ctx context.Context, tx Store, userID, campaignID int64, now time.Time) (*model.Assignment, error) {
	_, err := tx.FindAssignment(ctx, userID, campaignID)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("campaign %d: %w", campaignID, err)
	}

	assignment := &model.Assignment{
		UserID:               userID,
		CampaignID:           campaignID,
		AssignedAt:           now,
		AssignedByRuleEngine: true,
	}
	created, err := tx.CreateAssignment(ctx, assignment)
	if err != nil {
		return nil, fmt.Errorf("campaign %d: %w", campaignID, err)
	}
	if !created {
		return nil, nil
	}
	return assignment, nil
}
