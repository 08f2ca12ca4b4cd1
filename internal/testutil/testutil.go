// Package testutil provides storage fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/kkkkikiki/contest/internal/database"
	"github.com/kkkkikiki/contest/internal/model"
)

// SetupTestDB opens a fresh SQLite database with the full schema in a temp dir
func SetupTestDB(t *testing.T) *database.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		filepath.Join(t.TempDir(), "contest_test.db"))
	db, err := database.Open(context.Background(), database.SQLite, dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// ContestOption customises a test contest
type ContestOption func(*model.Contest)

// WithCapacity sets the contest capacity
func WithCapacity(n int) ContestOption {
	return func(c *model.Contest) { c.Capacity = n }
}

// WithPolicy sets the contest policy and win probability
func WithPolicy(policy model.Policy, p float64) ContestOption {
	return func(c *model.Contest) {
		c.Policy = policy
		if policy == model.PolicyPacedDraw {
			c.WinProbability = &p
		}
	}
}

// WithWindow sets the contest window
func WithWindow(start, end time.Time) ContestOption {
	return func(c *model.Contest) {
		c.StartAt = start
		c.EndAt = end
	}
}

// NewContest returns an unsaved contest open from an hour ago for two days,
// for example.edu students, with capacity 5 and first-come policy
func NewContest(opts ...ContestOption) *model.Contest {
	now := time.Now().UTC()
	c := &model.Contest{
		SchoolName:  "Example University",
		Name:        "Fall registration drive",
		StartAt:     now.Add(-time.Hour),
		EndAt:       now.Add(48 * time.Hour),
		MailDomains: model.DomainList{"example.edu"},
		Capacity:    5,
		Policy:      model.PolicyFirstCome,
		Prize:       "$5 gift card",
		PrizeAmount: 5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InsertContest stores contest with one generated code per unit of capacity
// and returns the codes
func InsertContest(t *testing.T, db *database.DB, contest *model.Contest) []string {
	t.Helper()
	ctx := context.Background()

	tx, err := db.SQL.BeginTxx(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO contests (school_name, name, start_at, end_at, mail_domains, mail_tag, mail_dots,
			capacity, policy, win_probability, prize, prize_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	now := time.Now().UTC()
	err = tx.GetContext(ctx, &contest.ID, tx.Rebind(query),
		contest.SchoolName, contest.Name, contest.StartAt.UTC(), contest.EndAt.UTC(), contest.MailDomains,
		contest.MailTag, contest.MailDots, contest.Capacity, contest.Policy, contest.WinProbability,
		contest.Prize, contest.PrizeAmount, now, now)
	if err != nil {
		t.Fatalf("Failed to create test contest: %v", err)
	}

	codes := make([]string, contest.Capacity)
	for i := range codes {
		codes[i] = fmt.Sprintf("TEST-%d-%04d", contest.ID, i)
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO prize_codes (code, contest_id, status, created_at)
			VALUES (?, ?, 'available', ?)
		`), codes[i], contest.ID, now)
		if err != nil {
			t.Fatalf("Failed to create test prize code: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit test contest: %v", err)
	}
	return codes
}

// CountAwards returns the number of award records per outcome for a contest
func CountAwards(t *testing.T, db *database.DB, contestID int64) (won, lost int) {
	t.Helper()

	err := db.SQL.Get(&won, db.SQL.Rebind(`SELECT COUNT(*) FROM award_records WHERE contest_id = ? AND outcome = 'won'`), contestID)
	if err != nil {
		t.Fatalf("Failed to count winners: %v", err)
	}
	err = db.SQL.Get(&lost, db.SQL.Rebind(`SELECT COUNT(*) FROM award_records WHERE contest_id = ? AND outcome = 'lost'`), contestID)
	if err != nil {
		t.Fatalf("Failed to count losers: %v", err)
	}
	return won, lost
}

// CountIssuedCodes returns the number of issued prize codes for a contest
func CountIssuedCodes(t *testing.T, db *database.DB, contestID int64) int {
	t.Helper()

	var issued int
	err := db.SQL.Get(&issued, db.SQL.Rebind(`SELECT COUNT(*) FROM prize_codes WHERE contest_id = ? AND status = 'issued'`), contestID)
	if err != nil {
		t.Fatalf("Failed to count issued codes: %v", err)
	}
	return issued
}
