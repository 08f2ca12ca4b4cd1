package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kkkkikiki/contest/internal/database"
	"github.com/kkkkikiki/contest/internal/model"
)

// PrizeCodeRepository is the inventory ledger for contest prize codes
type PrizeCodeRepository struct {
	dialect database.Dialect
}

// NewPrizeCodeRepository creates a new prize code repository
func NewPrizeCodeRepository(dialect database.Dialect) *PrizeCodeRepository {
	return &PrizeCodeRepository{dialect: dialect}
}

// ReserveOne transitions one available code of the contest to issued for awardID
// in a single conditional update. It returns model.ErrSoldOut when none is left.
func (r *PrizeCodeRepository) ReserveOne(ctx context.Context, tx DBExecutor, contestID int64, awardID string, now time.Time) (*model.PrizeCode, error) {
	// SQLite serialises writers; Postgres reservers skip rows held by others.
	lock := ""
	if r.dialect == database.Postgres {
		lock = " FOR UPDATE SKIP LOCKED"
	}

	query := `
		UPDATE prize_codes
		SET status = 'issued', issued_to = ?, issued_at = ?
		WHERE id = (
			SELECT id FROM prize_codes
			WHERE contest_id = ? AND status = 'available'
			ORDER BY id ASC
			LIMIT 1` + lock + `
		) AND status = 'available'
		RETURNING id, code`

	issuedAt := now.UTC()
	code := model.PrizeCode{
		ContestID: contestID,
		Status:    model.CodeIssued,
		IssuedTo:  &awardID,
		IssuedAt:  &issuedAt,
	}
	var row struct {
		ID   int64  `db:"id"`
		Code string `db:"code"`
	}
	err := tx.GetContext(ctx, &row, tx.Rebind(query), awardID, issuedAt, contestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrSoldOut
		}
		return nil, fmt.Errorf("failed to reserve prize code: %w", err)
	}
	code.ID = row.ID
	code.Code = row.Code

	return &code, nil
}

// CountAvailable returns how many codes of the contest are still available.
// The count is advisory and must not gate a reservation.
func (r *PrizeCodeRepository) CountAvailable(ctx context.Context, db DBExecutor, contestID int64) (int, error) {
	return r.countByStatus(ctx, db, contestID, model.CodeAvailable)
}

// CountIssued returns how many codes of the contest have been issued
func (r *PrizeCodeRepository) CountIssued(ctx context.Context, db DBExecutor, contestID int64) (int, error) {
	return r.countByStatus(ctx, db, contestID, model.CodeIssued)
}

func (r *PrizeCodeRepository) countByStatus(ctx context.Context, db DBExecutor, contestID int64, status model.CodeStatus) (int, error) {
	query := `SELECT COUNT(*) FROM prize_codes WHERE contest_id = ? AND status = ?`

	var count int
	if err := db.GetContext(ctx, &count, db.Rebind(query), contestID, status); err != nil {
		return 0, fmt.Errorf("failed to count prize codes: %w", err)
	}
	return count, nil
}

// ListIssuedCodes returns the contest's issued code values in issue order
func (r *PrizeCodeRepository) ListIssuedCodes(ctx context.Context, db DBExecutor, contestID int64) ([]string, error) {
	query := `
		SELECT code
		FROM prize_codes
		WHERE contest_id = ? AND status = 'issued'
		ORDER BY issued_at ASC, id ASC
	`

	codes := []string{}
	if err := db.SelectContext(ctx, &codes, db.Rebind(query), contestID); err != nil {
		return nil, fmt.Errorf("failed to list issued codes: %w", err)
	}
	return codes, nil
}

// CreatePregeneratedCodes creates the contest's codes in batches within an existing transaction
func (r *PrizeCodeRepository) CreatePregeneratedCodes(ctx context.Context, tx DBExecutor, contestID int64, codes []string) error {
	now := time.Now().UTC()

	// Bounded by the driver's bind parameter limit
	batchSize := 1000

	for i := 0; i < len(codes); i += batchSize {
		end := i + batchSize
		if end > len(codes) {
			end = len(codes)
		}

		if err := r.insertCodeBatch(ctx, tx, contestID, codes[i:end], now); err != nil {
			return fmt.Errorf("failed to insert prize code batch: %w", err)
		}
	}

	return nil
}

// insertCodeBatch inserts a batch of codes using a single query
func (r *PrizeCodeRepository) insertCodeBatch(ctx context.Context, tx DBExecutor, contestID int64, codes []string, createdAt time.Time) error {
	if len(codes) == 0 {
		return nil
	}

	valuesClause := make([]string, len(codes))
	args := make([]interface{}, 0, len(codes)*4)

	for i, code := range codes {
		valuesClause[i] = "(?, ?, ?, ?)"
		args = append(args, code, contestID, model.CodeAvailable, createdAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO prize_codes (code, contest_id, status, created_at)
		VALUES %s
	`, strings.Join(valuesClause, ", "))

	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to execute batch insert: %w", err)
	}

	return nil
}
