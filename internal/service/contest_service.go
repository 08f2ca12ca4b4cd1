package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/contest/internal/codegen"
	"github.com/kkkkikiki/contest/internal/database"
	"github.com/kkkkikiki/contest/internal/logger"
	"github.com/kkkkikiki/contest/internal/model"
	"github.com/kkkkikiki/contest/internal/repository"
)

// CreateContestInput describes a contest to provision
type CreateContestInput struct {
	SchoolName     string
	Name           string
	StartAt        time.Time
	EndAt          time.Time
	MailDomains    []string
	MailTag        string
	MailDots       bool
	Capacity       int
	Policy         model.Policy
	WinProbability *float64
	Prize          string
	PrizeAmount    int
	// Codes imports externally minted codes; empty generates them
	Codes []string
}

// ContestDetails is a contest with its current allocation state
type ContestDetails struct {
	Contest     *model.Contest
	IssuedCodes []string
	Remaining   int
	Won         int
	Lost        int
}

// ContestService provisions and administers contests
type ContestService struct {
	db        *database.DB
	contests  *repository.ContestRepository
	codes     *repository.PrizeCodeRepository
	awards    *repository.AwardRepository
	generator *codegen.Generator
}

// NewContestService creates a new contest service
func NewContestService(db *database.DB, generator *codegen.Generator) *ContestService {
	return &ContestService{
		db:        db,
		contests:  repository.NewContestRepository(db.Dialect),
		codes:     repository.NewPrizeCodeRepository(db.Dialect),
		awards:    repository.NewAwardRepository(),
		generator: generator,
	}
}

// CreateContest stores a contest and its full code inventory in one transaction
func (s *ContestService) CreateContest(ctx context.Context, in CreateContestInput) (*model.Contest, error) {
	contest, err := contestFromInput(in)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.SQL.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Insert first; generated codes depend on the contest ID
	if err := s.contests.CreateContest(ctx, tx, contest); err != nil {
		return nil, err
	}

	codes := in.Codes
	if len(codes) == 0 && contest.Capacity > 0 {
		codes, err = s.generator.Generate(contest.ID, contest.Capacity)
		if err != nil {
			return nil, fmt.Errorf("failed to generate prize codes: %w", err)
		}
	}

	if err := s.codes.CreatePregeneratedCodes(ctx, tx, contest.ID, codes); err != nil {
		return nil, fmt.Errorf("failed to store prize codes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.InfoCtx(ctx, "Contest created",
		zap.Int64("contest_id", contest.ID),
		zap.String("school", contest.SchoolName),
		zap.Int("capacity", contest.Capacity),
		zap.String("policy", string(contest.Policy)),
		zap.Bool("imported_codes", len(in.Codes) > 0))

	return contest, nil
}

// GetContest returns a contest with its issued codes and award counts
func (s *ContestService) GetContest(ctx context.Context, id int64) (*ContestDetails, error) {
	contest, err := s.contests.GetContest(ctx, s.db.SQL, id)
	if err != nil {
		return nil, err
	}

	issued, err := s.codes.ListIssuedCodes(ctx, s.db.SQL, id)
	if err != nil {
		return nil, err
	}

	remaining, err := s.codes.CountAvailable(ctx, s.db.SQL, id)
	if err != nil {
		return nil, err
	}

	counts, err := s.awards.CountByOutcome(ctx, s.db.SQL, id)
	if err != nil {
		return nil, err
	}

	return &ContestDetails{
		Contest:     contest,
		IssuedCodes: issued,
		Remaining:   remaining,
		Won:         counts[model.OutcomeWon],
		Lost:        counts[model.OutcomeLost],
	}, nil
}

// EndContest moves the contest end to at. The end can only move earlier and
// must stay after the start.
func (s *ContestService) EndContest(ctx context.Context, id int64, at time.Time) (*model.Contest, error) {
	tx, err := s.db.SQL.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	contest, err := s.contests.GetContestForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if !at.Before(contest.EndAt) {
		return nil, fmt.Errorf("%w: end can only move earlier than %s", model.ErrInvalidContest, contest.EndAt.UTC().Format(time.RFC3339))
	}
	if !at.After(contest.StartAt) {
		return nil, fmt.Errorf("%w: end must be after start %s", model.ErrInvalidContest, contest.StartAt.UTC().Format(time.RFC3339))
	}

	if err := s.contests.UpdateEndAt(ctx, tx, id, at); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	contest.EndAt = at.UTC()
	logger.InfoCtx(ctx, "Contest ended early",
		zap.Int64("contest_id", id),
		zap.Time("end_at", contest.EndAt))

	return contest, nil
}

// contestFromInput validates in and builds the contest it describes
func contestFromInput(in CreateContestInput) (*model.Contest, error) {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", model.ErrInvalidContest, fmt.Sprintf(format, args...))
	}

	name := strings.TrimSpace(in.Name)
	school := strings.TrimSpace(in.SchoolName)
	switch {
	case name == "":
		return nil, invalid("name is required")
	case school == "":
		return nil, invalid("school name is required")
	case in.StartAt.IsZero() || in.EndAt.IsZero():
		return nil, invalid("start and end are required")
	case !in.StartAt.Before(in.EndAt):
		return nil, invalid("start must be before end")
	case in.Capacity < 0:
		return nil, invalid("capacity must not be negative")
	case !in.Policy.Valid():
		return nil, invalid("unknown policy %q", in.Policy)
	}

	domains := make(model.DomainList, 0, len(in.MailDomains))
	for _, d := range in.MailDomains {
		d = strings.ToLower(strings.Trim(strings.TrimSpace(d), "."))
		d = strings.TrimPrefix(d, "@")
		if d == "" {
			return nil, invalid("mail domains must not be blank")
		}
		domains = append(domains, d)
	}
	if len(domains) == 0 {
		return nil, invalid("at least one mail domain is required")
	}

	var probability *float64
	if in.Policy == model.PolicyPacedDraw {
		if in.WinProbability == nil {
			return nil, invalid("paced_draw requires a win probability")
		}
		p := *in.WinProbability
		if p <= 0 || p > 1 {
			return nil, invalid("win probability must be in (0, 1], got %v", p)
		}
		probability = &p
	}

	if len(in.Codes) > 0 {
		if err := validateCodes(in.Codes, in.Capacity); err != nil {
			return nil, err
		}
	}

	return &model.Contest{
		SchoolName:     school,
		Name:           name,
		StartAt:        in.StartAt.UTC(),
		EndAt:          in.EndAt.UTC(),
		MailDomains:    domains,
		MailTag:        in.MailTag,
		MailDots:       in.MailDots,
		Capacity:       in.Capacity,
		Policy:         in.Policy,
		WinProbability: probability,
		Prize:          strings.TrimSpace(in.Prize),
		PrizeAmount:    in.PrizeAmount,
	}, nil
}

// validateCodes checks an imported inventory holds exactly capacity distinct codes
func validateCodes(codes []string, capacity int) error {
	if len(codes) != capacity {
		return fmt.Errorf("%w: %d codes supplied for capacity %d", model.ErrInvalidContest, len(codes), capacity)
	}
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("%w: blank prize code", model.ErrInvalidContest)
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("%w: duplicate prize code %q", model.ErrInvalidContest, code)
		}
		seen[code] = struct{}{}
	}
	return nil
}

// IsInvalidInput reports whether err is a contest validation failure
func IsInvalidInput(err error) bool {
	return errors.Is(err, model.ErrInvalidContest)
}
