// Package rpc defines the Connect surface of campaign.v1.CampaignService:
// procedure names, messages, the handler mux and a client.
package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
)

// CampaignServiceName is the fully-qualified name of the service.
const CampaignServiceName = "campaign.v1.CampaignService"

const (
	AssignEligibleCampaignsProcedure = "/campaign.v1.CampaignService/AssignEligibleCampaigns"
	UseCampaignProcedure             = "/campaign.v1.CampaignService/UseCampaign"
	ListActiveCampaignsProcedure     = "/campaign.v1.CampaignService/ListActiveCampaigns"
	RedeemTokenProcedure             = "/campaign.v1.CampaignService/RedeemToken"
	ListUsagesProcedure              = "/campaign.v1.CampaignService/ListUsages"
	CreateCampaignProcedure          = "/campaign.v1.CampaignService/CreateCampaign"
)

// CampaignServiceHandler is implemented by the campaign service.
type CampaignServiceHandler interface {
	AssignEligibleCampaigns(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[AssignResponse], error)
	UseCampaign(context.Context, *connect.Request[UseCampaignRequest]) (*connect.Response[TokenResponse], error)
	ListActiveCampaigns(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[ListResponse], error)
	RedeemToken(context.Context, *connect.Request[RedeemRequest]) (*connect.Response[UsageResponse], error)
	ListUsages(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[ListUsagesResponse], error)
	CreateCampaign(context.Context, *connect.Request[CreateCampaignRequest]) (*connect.Response[CampaignResponse], error)
}

// NewCampaignServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewCampaignServiceHandler(svc CampaignServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	assign := connect.NewUnaryHandler(AssignEligibleCampaignsProcedure, svc.AssignEligibleCampaigns, opts...)
	use := connect.NewUnaryHandler(UseCampaignProcedure, svc.UseCampaign, opts...)
	list := connect.NewUnaryHandler(ListActiveCampaignsProcedure, svc.ListActiveCampaigns, opts...)
	redeem := connect.NewUnaryHandler(RedeemTokenProcedure, svc.RedeemToken, opts...)
	usages := connect.NewUnaryHandler(ListUsagesProcedure, svc.ListUsages, opts...)
	create := connect.NewUnaryHandler(CreateCampaignProcedure, svc.CreateCampaign, opts...)

	return "/" + CampaignServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case AssignEligibleCampaignsProcedure:
			assign.ServeHTTP(w, r)
		case UseCampaignProcedure:
			use.ServeHTTP(w, r)
		case ListActiveCampaignsProcedure:
			list.ServeHTTP(w, r)
		case RedeemTokenProcedure:
			redeem.ServeHTTP(w, r)
		case ListUsagesProcedure:
			usages.ServeHTTP(w, r)
		case CreateCampaignProcedure:
			create.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// CampaignServiceClient calls campaign.v1.CampaignService.
type CampaignServiceClient struct {
	assign *connect.Client[emptypb.Empty, AssignResponse]
	use    *connect.Client[UseCampaignRequest, TokenResponse]
	list   *connect.Client[emptypb.Empty, ListResponse]
	redeem *connect.Client[RedeemRequest, UsageResponse]
	usages *connect.Client[emptypb.Empty, ListUsagesResponse]
	create *connect.Client[CreateCampaignRequest, CampaignResponse]
}

// NewCampaignServiceClient creates a client for the service at baseURL
// (for example http://localhost:8080).
func NewCampaignServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *CampaignServiceClient {
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &CampaignServiceClient{
		assign: connect.NewClient[emptypb.Empty, AssignResponse](httpClient, baseURL+AssignEligibleCampaignsProcedure, opts...),
		use:    connect.NewClient[UseCampaignRequest, TokenResponse](httpClient, baseURL+UseCampaignProcedure, opts...),
		list:   connect.NewClient[emptypb.Empty, ListResponse](httpClient, baseURL+ListActiveCampaignsProcedure, opts...),
		redeem: connect.NewClient[RedeemRequest, UsageResponse](httpClient, baseURL+RedeemTokenProcedure, opts...),
		usages: connect.NewClient[emptypb.Empty, ListUsagesResponse](httpClient, baseURL+ListUsagesProcedure, opts...),
		create: connect.NewClient[CreateCampaignRequest, CampaignResponse](httpClient, baseURL+CreateCampaignProcedure, opts...),
	}
}

func (c *CampaignServiceClient) AssignEligibleCampaigns(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[AssignResponse], error) {
	return c.assign.CallUnary(ctx, req)
}

func (c *CampaignServiceClient) UseCampaign(ctx context.Context, req *connect.Request[UseCampaignRequest]) (*connect.Response[TokenResponse], error) {
	return c.use.CallUnary(ctx, req)
}

func (c *CampaignServiceClient) ListActiveCampaigns(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[ListResponse], error) {
	return c.list.CallUnary(ctx, req)
}

func (c *CampaignServiceClient) RedeemToken(ctx context.Context, req *connect.Request[RedeemRequest]) (*connect.Response[UsageResponse], error) {
	return c.redeem.CallUnary(ctx, req)
}

func (c *CampaignServiceClient) ListUsages(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[ListUsagesResponse], error) {
	return c.usages.CallUnary(ctx, req)
}

func (c *CampaignServiceClient) CreateCampaign(ctx context.Context, req *connect.Request[CreateCampaignRequest]) (*connect.Response[CampaignResponse], error) {
	return c.create.CallUnary(ctx, req)
}
