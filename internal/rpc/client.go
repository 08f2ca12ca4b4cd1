package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// ContestServiceClient is a client for contest.v1.ContestService
type ContestServiceClient struct {
	createContest *connect.Client[CreateContestRequest, CreateContestResponse]
	getContest    *connect.Client[GetContestRequest, GetContestResponse]
	endContest    *connect.Client[EndContestRequest, EndContestResponse]
}

// NewContestServiceClient constructs a client for contest.v1.ContestService.
// A non-empty adminToken is sent as a bearer token.
func NewContestServiceClient(httpClient connect.HTTPClient, baseURL, adminToken string, opts ...connect.ClientOption) *ContestServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	if adminToken != "" {
		opts = append(opts, connect.WithInterceptors(bearerToken(adminToken)))
	}
	return &ContestServiceClient{
		createContest: connect.NewClient[CreateContestRequest, CreateContestResponse](httpClient, baseURL+ContestServiceCreateContestProcedure, opts...),
		getContest:    connect.NewClient[GetContestRequest, GetContestResponse](httpClient, baseURL+ContestServiceGetContestProcedure, opts...),
		endContest:    connect.NewClient[EndContestRequest, EndContestResponse](httpClient, baseURL+ContestServiceEndContestProcedure, opts...),
	}
}

// CreateContest calls contest.v1.ContestService.CreateContest
func (c *ContestServiceClient) CreateContest(ctx context.Context, req *connect.Request[CreateContestRequest]) (*connect.Response[CreateContestResponse], error) {
	return c.createContest.CallUnary(ctx, req)
}

// GetContest calls contest.v1.ContestService.GetContest
func (c *ContestServiceClient) GetContest(ctx context.Context, req *connect.Request[GetContestRequest]) (*connect.Response[GetContestResponse], error) {
	return c.getContest.CallUnary(ctx, req)
}

// EndContest calls contest.v1.ContestService.EndContest
func (c *ContestServiceClient) EndContest(ctx context.Context, req *connect.Request[EndContestRequest]) (*connect.Response[EndContestResponse], error) {
	return c.endContest.CallUnary(ctx, req)
}

// VerificationServiceClient is a client for contest.v1.VerificationService
type VerificationServiceClient struct {
	finishVerification *connect.Client[FinishVerificationRequest, FinishVerificationResponse]
}

// NewVerificationServiceClient constructs a client for contest.v1.VerificationService
func NewVerificationServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *VerificationServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &VerificationServiceClient{
		finishVerification: connect.NewClient[FinishVerificationRequest, FinishVerificationResponse](httpClient, baseURL+VerificationServiceFinishVerificationProcedure, opts...),
	}
}

// FinishVerification calls contest.v1.VerificationService.FinishVerification
func (c *VerificationServiceClient) FinishVerification(ctx context.Context, req *connect.Request[FinishVerificationRequest]) (*connect.Response[FinishVerificationResponse], error) {
	return c.finishVerification.CallUnary(ctx, req)
}

func bearerToken(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}
