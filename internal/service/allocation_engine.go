package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kkkkikiki/contest/internal/config"
	"github.com/kkkkikiki/contest/internal/database"
	"github.com/kkkkikiki/contest/internal/decider"
	"github.com/kkkkikiki/contest/internal/eligibility"
	"github.com/kkkkikiki/contest/internal/logger"
	"github.com/kkkkikiki/contest/internal/metrics"
	"github.com/kkkkikiki/contest/internal/model"
	"github.com/kkkkikiki/contest/internal/notify"
	"github.com/kkkkikiki/contest/internal/repository"
	"github.com/kkkkikiki/contest/internal/telemetry"
)

// AllocationEngine turns verification events into exactly one award outcome
// per (contest, student)
type AllocationEngine struct {
	db        *database.DB
	contests  *repository.ContestRepository
	codes     *repository.PrizeCodeRepository
	awards    *repository.AwardRepository
	decider   *decider.Decider
	publisher notify.Publisher
	retry     config.AllocationConfig
}

// NewAllocationEngine creates a new allocation engine. A nil publisher disables notifications.
func NewAllocationEngine(db *database.DB, d *decider.Decider, publisher notify.Publisher, retry config.AllocationConfig) *AllocationEngine {
	if d == nil {
		d = decider.New(nil)
	}
	if publisher == nil {
		publisher = notify.Noop{}
	}
	return &AllocationEngine{
		db:        db,
		contests:  repository.NewContestRepository(db.Dialect),
		codes:     repository.NewPrizeCodeRepository(db.Dialect),
		awards:    repository.NewAwardRepository(),
		decider:   d,
		publisher: publisher,
		retry:     retry,
	}
}

// ProcessVerification returns the outcome for the student behind ev in the
// contest. The first eligible call decides and records the outcome; every
// later call for the same normalized email returns it unchanged.
//
// Errors: model.ErrContestNotFound, an *eligibility.IneligibleError, or an
// error wrapping model.ErrAllocationFailed which the caller may retry.
func (e *AllocationEngine) ProcessVerification(ctx context.Context, contestID int64, ev model.VerificationEvent, now time.Time) (*model.AwardOutcome, error) {
	start := time.Now()
	result := "failed"
	defer func() {
		metrics.RecordVerificationDuration(result, time.Since(start).Seconds())
	}()

	ctx, span := telemetry.Tracer().Start(ctx, "AllocationEngine.ProcessVerification",
		trace.WithAttributes(attribute.Int64("contest.id", contestID)))
	defer span.End()

	contest, err := e.contests.GetContest(ctx, e.db.SQL, contestID)
	if err != nil {
		if errors.Is(err, model.ErrContestNotFound) {
			result = "not_found"
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "contest lookup failed")
		return nil, fmt.Errorf("%w: %w", model.ErrAllocationFailed, err)
	}

	identity, err := eligibility.Normalize(ev, eligibility.OptionsFor(contest))
	if err == nil {
		err = eligibility.Validate(identity, contest, now)
	}
	if err != nil {
		result = "ineligible"
		reason, _ := eligibility.ReasonOf(err)
		span.SetAttributes(attribute.String("ineligible.reason", string(reason)))
		logger.InfoCtx(ctx, "Verification rejected",
			zap.Int64("contest_id", contestID),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return nil, err
	}

	record, created, err := e.getOrCreateWithRetry(ctx, contest, identity, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "allocation failed")
		logger.ErrorCtx(ctx, err,
			zap.Int64("contest_id", contestID),
			zap.String("email", identity.Email))
		return nil, fmt.Errorf("%w: %w", model.ErrAllocationFailed, err)
	}

	span.SetAttributes(
		attribute.Bool("award.won", record.Won()),
		attribute.Bool("award.replayed", !created))

	if !created {
		result = "replayed"
		return model.NewAwardOutcome(record, contest, true), nil
	}

	result = string(record.Outcome)
	metrics.RecordAward(string(record.Outcome))
	logger.InfoCtx(ctx, "Award decided",
		zap.Int64("contest_id", contestID),
		zap.String("award_id", record.ID),
		zap.Bool("won", record.Won()))

	e.publisher.Publish(notify.NewAwardEvent(record, contest))

	return model.NewAwardOutcome(record, contest, false), nil
}

// getOrCreateWithRetry runs the record transaction, retrying transient storage conflicts
func (e *AllocationEngine) getOrCreateWithRetry(ctx context.Context, contest *model.Contest, identity model.StudentIdentity, now time.Time) (*model.AwardRecord, bool, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retry.InitialBackoff
	b.MaxInterval = e.retry.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, e.retry.MaxRetries), ctx)

	var (
		record  *model.AwardRecord
		created bool
	)
	operation := func() error {
		claim := &model.AwardRecord{
			ID:        uuid.NewString(),
			ContestID: contest.ID,
			Email:     identity.Email,
			FirstName: identity.FirstName,
			LastName:  identity.LastName,
			School:    identity.School,
			DecidedAt: now.UTC(),
		}

		var err error
		record, created, err = e.awards.GetOrCreate(ctx, e.db.SQL, claim, e.supplier(contest, now))
		if err == nil {
			return nil
		}
		if database.IsTransient(err) || errors.Is(err, repository.ErrClaimInFlight) {
			return err
		}
		return backoff.Permanent(err)
	}

	attempts := 0
	onRetry := func(err error, next time.Duration) {
		attempts++
		metrics.AllocationRetries.Inc()
		logger.WarnCtx(ctx, "Allocation conflict, retrying",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.Duration("next_retry_in", next))
	}

	if err := backoff.RetryNotify(operation, policy, onRetry); err != nil {
		return nil, false, err
	}
	return record, created, nil
}

// supplier decides a fresh claim inside its transaction. A winning draw that
// finds the ledger empty is recorded as a loss.
func (e *AllocationEngine) supplier(contest *model.Contest, now time.Time) repository.OutcomeSupplier {
	return func(ctx context.Context, tx repository.DBExecutor, claim *model.AwardRecord) (model.Decision, error) {
		remaining, err := e.codes.CountAvailable(ctx, tx, contest.ID)
		if err != nil {
			return model.Decision{}, err
		}

		win, err := e.decider.Decide(contest, remaining, now)
		if err != nil {
			return model.Decision{}, fmt.Errorf("failed to decide outcome: %w", err)
		}
		if !win {
			return model.Decision{Outcome: model.OutcomeLost}, nil
		}

		code, err := e.codes.ReserveOne(ctx, tx, contest.ID, claim.ID, now)
		if errors.Is(err, model.ErrSoldOut) {
			metrics.SoldOutDowngrades.Inc()
			return model.Decision{Outcome: model.OutcomeLost}, nil
		}
		if err != nil {
			return model.Decision{}, err
		}
		return model.Decision{Outcome: model.OutcomeWon, Code: code}, nil
	}
}
