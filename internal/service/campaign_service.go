package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/kkkkikiki/campaign/internal/engine"
	"github.com/kkkkikiki/campaign/internal/rpc"
	"github.com/kkkkikiki/campaign/internal/validation"
)

// CampaignServer implements the campaign service
type CampaignServer struct {
	engine *engine.Engine
}

var _ rpc.CampaignServiceHandler = (*CampaignServer)(nil)

// NewCampaignServer creates a new CampaignServer instance
func NewCampaignServer(eng *engine.Engine) *CampaignServer {
	return &CampaignServer{engine: eng}
}

// AssignEligibleCampaigns runs the rule engine for the calling user
func (s *CampaignServer) AssignEligibleCampaigns(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[rpc.AssignResponse], error) {
	userID, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.AssignEligibleCampaigns(ctx, userID)
	if err != nil {
		return nil, connectError(err)
	}

	res := &rpc.AssignResponse{
		RunID:     result.RunID.String(),
		Evaluated: make([]rpc.Evaluation, 0, len(result.Evaluated)),
		Assigned:  result.Assigned,
	}
	for _, evaluation := range result.Evaluated {
		res.Evaluated = append(res.Evaluated, rpc.Evaluation{
			CampaignID:      evaluation.CampaignID,
			Results:         evaluation.Results,
			Eligible:        evaluation.Eligible,
			IgnoredCriteria: result.Unknown[evaluation.CampaignID],
		})
	}
	return connect.NewResponse(res), nil
}

// UseCampaign returns a redemption token for one of the caller's assignments
func (s *CampaignServer) UseCampaign(
	ctx context.Context,
	req *connect.Request[rpc.UseCampaignRequest],
) (*connect.Response[rpc.TokenResponse], error) {
	userID, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.AssignmentID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("assignment_id must be positive"))
	}

	token, err := s.engine.UseCampaign(ctx, req.Msg.AssignmentID, userID, req.Msg.BusinessID)
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&rpc.TokenResponse{
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
		Reused:    token.Reused,
	}), nil
}

// ListActiveCampaigns lists the caller's redeemable campaigns
func (s *CampaignServer) ListActiveCampaigns(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[rpc.ListResponse], error) {
	userID, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}

	campaigns, err := s.engine.ListActiveCampaigns(ctx, userID, s.engine.Now())
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&rpc.ListResponse{Campaigns: campaigns}), nil
}

// RedeemToken confirms a token presented at the caller's business
func (s *CampaignServer) RedeemToken(
	ctx context.Context,
	req *connect.Request[rpc.RedeemRequest],
) (*connect.Response[rpc.UsageResponse], error) {
	userID, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.Token == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("token is required"))
	}

	businessID, err := s.engine.OperatedBusiness(ctx, userID)
	if err != nil {
		return nil, connectError(err)
	}

	usage, err := s.engine.RedeemToken(ctx, req.Msg.Token, businessID)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&rpc.UsageResponse{Usage: *usage}), nil
}

// ListUsages returns the caller's redemption history
func (s *CampaignServer) ListUsages(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[rpc.ListUsagesResponse], error) {
	userID, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}

	usages, err := s.engine.ListUsages(ctx, userID)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&rpc.ListUsagesResponse{Usages: usages}), nil
}

// CreateCampaign creates a new campaign. Only administrators may call it.
func (s *CampaignServer) CreateCampaign(
	ctx context.Context,
	req *connect.Request[rpc.CreateCampaignRequest],
) (*connect.Response[rpc.CampaignResponse], error) {
	userID, err := userFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RequireAdmin(ctx, userID); err != nil {
		return nil, connectError(err)
	}

	campaign := req.Msg.Campaign
	campaign.ID = 0

	if err := s.engine.CreateCampaign(ctx, &campaign); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&rpc.CampaignResponse{Campaign: campaign}), nil
}

// connectError maps engine errors onto Connect codes.
func connectError(err error) error {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, engine.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, engine.ErrAlreadyUsed),
		errors.Is(err, engine.ErrTokenExpired),
		errors.Is(err, engine.ErrCampaignInactive):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, engine.ErrBusinessNotAllowed),
		errors.Is(err, engine.ErrForbidden):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, engine.ErrConflict):
		return connect.NewError(connect.CodeAborted, err)
	default:
		log.Printf("service: internal error: %v", err)
		return connect.NewError(connect.CodeInternal, err)
	}
}
