package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/contest/internal/database"
	"github.com/kkkkikiki/contest/internal/model"
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

const contestColumns = `id, school_name, name, start_at, end_at, mail_domains, mail_tag, mail_dots,
	capacity, policy, win_probability, prize, prize_amount, created_at, updated_at`

// ContestRepository handles contest data operations
type ContestRepository struct {
	dialect database.Dialect
}

// NewContestRepository creates a new contest repository
func NewContestRepository(dialect database.Dialect) *ContestRepository {
	return &ContestRepository{dialect: dialect}
}

// CreateContest inserts a contest and sets its ID and timestamps
func (r *ContestRepository) CreateContest(ctx context.Context, db DBExecutor, contest *model.Contest) error {
	query := `
		INSERT INTO contests (school_name, name, start_at, end_at, mail_domains, mail_tag, mail_dots,
			capacity, policy, win_probability, prize, prize_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	now := time.Now().UTC()
	contest.StartAt = contest.StartAt.UTC()
	contest.EndAt = contest.EndAt.UTC()
	contest.CreatedAt = now
	contest.UpdatedAt = now

	err := db.GetContext(ctx, &contest.ID, db.Rebind(query),
		contest.SchoolName, contest.Name, contest.StartAt, contest.EndAt, contest.MailDomains,
		contest.MailTag, contest.MailDots, contest.Capacity, contest.Policy, contest.WinProbability,
		contest.Prize, contest.PrizeAmount, contest.CreatedAt, contest.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contest: %w", err)
	}

	return nil
}

// GetContest retrieves a contest by ID
func (r *ContestRepository) GetContest(ctx context.Context, db DBExecutor, id int64) (*model.Contest, error) {
	return r.getContest(ctx, db, id, "")
}

// GetContestForUpdate retrieves a contest and locks its row until the transaction ends
func (r *ContestRepository) GetContestForUpdate(ctx context.Context, tx DBExecutor, id int64) (*model.Contest, error) {
	lock := ""
	if r.dialect == database.Postgres {
		lock = " FOR UPDATE"
	}
	return r.getContest(ctx, tx, id, lock)
}

func (r *ContestRepository) getContest(ctx context.Context, db DBExecutor, id int64, lock string) (*model.Contest, error) {
	query := `SELECT ` + contestColumns + ` FROM contests WHERE id = ?` + lock

	var contest model.Contest
	err := db.GetContext(ctx, &contest, db.Rebind(query), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrContestNotFound
		}
		return nil, fmt.Errorf("failed to get contest: %w", err)
	}

	return &contest, nil
}

// UpdateEndAt moves a contest's end time
func (r *ContestRepository) UpdateEndAt(ctx context.Context, db DBExecutor, id int64, endAt time.Time) error {
	query := `UPDATE contests SET end_at = ?, updated_at = ? WHERE id = ?`

	result, err := db.ExecContext(ctx, db.Rebind(query), endAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update contest end: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrContestNotFound
	}

	return nil
}
