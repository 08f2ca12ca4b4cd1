package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/contest/internal/model"
)

// ErrClaimInFlight is returned when a conflicting claim was observed but its
// committed record could not be read yet. Retrying resolves it.
var ErrClaimInFlight = errors.New("award claim in flight")

const awardColumns = `id, contest_id, email, first_name, last_name, school, outcome, prize_code_id, code, decided_at`

// OutcomeSupplier decides the outcome of a freshly claimed record. It runs
// inside the claiming transaction and must use tx for every storage access.
type OutcomeSupplier func(ctx context.Context, tx DBExecutor, claim *model.AwardRecord) (model.Decision, error)

// AwardRepository is the idempotent store of (contest, student) outcomes
type AwardRepository struct {
	// DB-only repository; uniqueness lives in the award_records schema
}

// NewAwardRepository creates a new award repository
func NewAwardRepository() *AwardRepository {
	return &AwardRepository{}
}

// GetOrCreate returns the committed record for (claim.ContestID, claim.Email),
// or creates it with the decision from supply. supply runs at most once per
// call and never when a record already exists. The claim insert and conflict
// detection are one statement backed by the (contest_id, email) unique key;
// a concurrent creator blocks on that key until the first one commits or
// rolls back. created reports whether this call made the record.
func (r *AwardRepository) GetOrCreate(ctx context.Context, db *sqlx.DB, claim *model.AwardRecord, supply OutcomeSupplier) (record *model.AwardRecord, created bool, err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	claimed, err := r.insertClaim(ctx, tx, claim)
	if err != nil {
		return nil, false, err
	}
	if !claimed {
		// Release the transaction before reading; SQLite runs on one connection.
		_ = tx.Rollback()
		existing, err := r.Get(ctx, db, claim.ContestID, claim.Email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, false, ErrClaimInFlight
			}
			return nil, false, err
		}
		if existing.Outcome == model.OutcomePending {
			return nil, false, ErrClaimInFlight
		}
		return existing, false, nil
	}

	decision, err := supply(ctx, tx, claim)
	if err != nil {
		return nil, false, err
	}

	record, err = r.finalize(ctx, tx, claim, decision)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return record, true, nil
}

// insertClaim inserts a pending row unless one exists for the key
func (r *AwardRepository) insertClaim(ctx context.Context, tx DBExecutor, claim *model.AwardRecord) (bool, error) {
	query := `
		INSERT INTO award_records (id, contest_id, email, first_name, last_name, school, outcome, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contest_id, email) DO NOTHING
	`

	result, err := tx.ExecContext(ctx, tx.Rebind(query),
		claim.ID, claim.ContestID, claim.Email, claim.FirstName, claim.LastName, claim.School,
		model.OutcomePending, claim.DecidedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim award record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// finalize writes the decision into the pending row
func (r *AwardRepository) finalize(ctx context.Context, tx DBExecutor, claim *model.AwardRecord, decision model.Decision) (*model.AwardRecord, error) {
	record := *claim
	record.Outcome = decision.Outcome
	record.DecidedAt = claim.DecidedAt.UTC()

	switch decision.Outcome {
	case model.OutcomeWon:
		if decision.Code == nil {
			return nil, fmt.Errorf("winning decision for %s has no prize code", claim.ID)
		}
		record.PrizeCodeID = &decision.Code.ID
		record.Code = &decision.Code.Code
	case model.OutcomeLost:
		if decision.Code != nil {
			return nil, fmt.Errorf("losing decision for %s holds prize code %d", claim.ID, decision.Code.ID)
		}
	default:
		return nil, fmt.Errorf("invalid decision outcome %q", decision.Outcome)
	}

	query := `
		UPDATE award_records
		SET outcome = ?, prize_code_id = ?, code = ?
		WHERE id = ? AND outcome = ?
	`

	result, err := tx.ExecContext(ctx, tx.Rebind(query),
		record.Outcome, record.PrizeCodeID, record.Code, record.ID, model.OutcomePending)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize award record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected != 1 {
		return nil, fmt.Errorf("award record %s is no longer pending", record.ID)
	}

	return &record, nil
}

// Get retrieves the record for a student in a contest. It returns
// sql.ErrNoRows when the student has not entered.
func (r *AwardRepository) Get(ctx context.Context, db DBExecutor, contestID int64, email string) (*model.AwardRecord, error) {
	query := `SELECT ` + awardColumns + ` FROM award_records WHERE contest_id = ? AND email = ?`

	var record model.AwardRecord
	if err := db.GetContext(ctx, &record, db.Rebind(query), contestID, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get award record: %w", err)
	}
	return &record, nil
}

// CountByOutcome returns the number of decided records per outcome
func (r *AwardRepository) CountByOutcome(ctx context.Context, db DBExecutor, contestID int64) (map[model.Outcome]int, error) {
	query := `
		SELECT outcome, COUNT(*) AS total
		FROM award_records
		WHERE contest_id = ? AND outcome <> ?
		GROUP BY outcome
	`

	var rows []struct {
		Outcome model.Outcome `db:"outcome"`
		Total   int           `db:"total"`
	}
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), contestID, model.OutcomePending); err != nil {
		return nil, fmt.Errorf("failed to count award records: %w", err)
	}

	counts := map[model.Outcome]int{model.OutcomeWon: 0, model.OutcomeLost: 0}
	for _, row := range rows {
		counts[row.Outcome] = row.Total
	}
	return counts, nil
}
