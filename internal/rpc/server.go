package rpc

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	"github.com/kkkkikiki/contest/internal/eligibility"
	"github.com/kkkkikiki/contest/internal/logger"
	"github.com/kkkkikiki/contest/internal/model"
	"github.com/kkkkikiki/contest/internal/service"
)

// ContestAdmin is the contest provisioning surface
type ContestAdmin interface {
	CreateContest(ctx context.Context, in service.CreateContestInput) (*model.Contest, error)
	GetContest(ctx context.Context, id int64) (*service.ContestDetails, error)
	EndContest(ctx context.Context, id int64, at time.Time) (*model.Contest, error)
}

// VerificationProcessor allocates outcomes for verification events
type VerificationProcessor interface {
	ProcessVerification(ctx context.Context, contestID int64, ev model.VerificationEvent, now time.Time) (*model.AwardOutcome, error)
}

// ContestServer implements contest.v1.ContestService
type ContestServer struct {
	contests ContestAdmin
	now      func() time.Time
}

// NewContestServer creates a new ContestServer
func NewContestServer(contests ContestAdmin) *ContestServer {
	return &ContestServer{contests: contests, now: time.Now}
}

// CreateContest provisions a contest and its code inventory
func (s *ContestServer) CreateContest(
	ctx context.Context,
	req *connect.Request[CreateContestRequest],
) (*connect.Response[CreateContestResponse], error) {
	msg := req.Msg
	contest, err := s.contests.CreateContest(ctx, service.CreateContestInput{
		SchoolName:     msg.SchoolName,
		Name:           msg.Name,
		StartAt:        msg.StartAt,
		EndAt:          msg.EndAt,
		MailDomains:    msg.MailDomains,
		MailTag:        msg.MailTag,
		MailDots:       msg.MailDots,
		Capacity:       msg.Capacity,
		Policy:         model.Policy(msg.Policy),
		WinProbability: msg.WinProbability,
		Prize:          msg.Prize,
		PrizeAmount:    msg.PrizeAmount,
		Codes:          msg.Codes,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	out := toContest(contest)
	out.Remaining = contest.Capacity
	return connect.NewResponse(&CreateContestResponse{Contest: out}), nil
}

// GetContest returns a contest including all issued codes
func (s *ContestServer) GetContest(
	ctx context.Context,
	req *connect.Request[GetContestRequest],
) (*connect.Response[GetContestResponse], error) {
	details, err := s.contests.GetContest(ctx, req.Msg.ContestID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetContestResponse{Contest: toContestDetails(details)}), nil
}

// EndContest terminates a contest early
func (s *ContestServer) EndContest(
	ctx context.Context,
	req *connect.Request[EndContestRequest],
) (*connect.Response[EndContestResponse], error) {
	at := s.now()
	if req.Msg.EndAt != nil {
		at = *req.Msg.EndAt
	}

	if _, err := s.contests.EndContest(ctx, req.Msg.ContestID, at); err != nil {
		return nil, toConnectError(err)
	}

	details, err := s.contests.GetContest(ctx, req.Msg.ContestID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&EndContestResponse{Contest: toContestDetails(details)}), nil
}

// VerificationServer implements contest.v1.VerificationService
type VerificationServer struct {
	engine VerificationProcessor
	now    func() time.Time
}

// NewVerificationServer creates a new VerificationServer
func NewVerificationServer(engine VerificationProcessor) *VerificationServer {
	return &VerificationServer{engine: engine, now: time.Now}
}

// FinishVerification records the outcome for a verified student
func (s *VerificationServer) FinishVerification(
	ctx context.Context,
	req *connect.Request[FinishVerificationRequest],
) (*connect.Response[FinishVerificationResponse], error) {
	if req.Msg.ContestID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("contest_id is required"))
	}

	outcome, err := s.engine.ProcessVerification(ctx, req.Msg.ContestID, model.VerificationEvent{
		FirstName: req.Msg.FirstName,
		LastName:  req.Msg.LastName,
		Email:     req.Msg.Email,
	}, s.now())
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&FinishVerificationResponse{
		ContestID: outcome.ContestID,
		Won:       outcome.Won,
		Code:      outcome.Code,
		Prize:     outcome.Prize,
		DecidedAt: outcome.DecidedAt,
		Replayed:  outcome.Replayed,
	}), nil
}

// NewContestServiceHandler builds the HTTP handler for contest.v1.ContestService.
// A non-empty adminToken is required as a bearer token on every call.
func NewContestServiceHandler(svc *ContestServer, adminToken string, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		WithJSON(),
		connect.WithInterceptors(NewAdminAuthInterceptor(adminToken)),
	}, opts...)

	create := connect.NewUnaryHandler(ContestServiceCreateContestProcedure, svc.CreateContest, opts...)
	get := connect.NewUnaryHandler(ContestServiceGetContestProcedure, svc.GetContest, opts...)
	end := connect.NewUnaryHandler(ContestServiceEndContestProcedure, svc.EndContest, opts...)

	return "/" + ContestServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ContestServiceCreateContestProcedure:
			create.ServeHTTP(w, r)
		case ContestServiceGetContestProcedure:
			get.ServeHTTP(w, r)
		case ContestServiceEndContestProcedure:
			end.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// NewVerificationServiceHandler builds the HTTP handler for contest.v1.VerificationService
func NewVerificationServiceHandler(svc *VerificationServer, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	finish := connect.NewUnaryHandler(VerificationServiceFinishVerificationProcedure, svc.FinishVerification, opts...)

	return "/" + VerificationServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case VerificationServiceFinishVerificationProcedure:
			finish.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// NewAdminAuthInterceptor rejects calls without the bearer token. An empty
// token disables the check.
func NewAdminAuthInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token == "" || req.Spec().IsClient {
				return next(ctx, req)
			}
			got, ok := strings.CutPrefix(req.Header().Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("admin token required"))
			}
			return next(ctx, req)
		}
	}
}

// toConnectError maps service errors to connect codes
func toConnectError(err error) error {
	var ie *eligibility.IneligibleError
	switch {
	case errors.As(err, &ie):
		cerr := connect.NewError(connect.CodeFailedPrecondition, err)
		cerr.Meta().Set("Ineligible-Reason", string(ie.Reason))
		return cerr
	case errors.Is(err, model.ErrContestNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, model.ErrInvalidContest):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, model.ErrAllocationFailed):
		return connect.NewError(connect.CodeUnavailable, errors.New("allocation failed, retry the call"))
	default:
		logger.Error(err, zap.String("component", "rpc"))
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
}
