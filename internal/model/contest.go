package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Policy selects how a contest decides win or lose
type Policy string

const (
	// PolicyFirstCome wins while at least one code is available
	PolicyFirstCome Policy = "first_come"
	// PolicyPacedDraw wins with a configured probability, paced over the contest window
	PolicyPacedDraw Policy = "paced_draw"
	// PolicyNoPrize records every entry as a loss
	PolicyNoPrize Policy = "no_prize"
)

// Valid reports whether p is a known policy
func (p Policy) Valid() bool {
	switch p {
	case PolicyFirstCome, PolicyPacedDraw, PolicyNoPrize:
		return true
	}
	return false
}

// DomainList is a list of email domain suffixes stored as a JSON array
type DomainList []string

// Value implements driver.Valuer
func (d DomainList) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(d))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (d *DomainList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported mail_domains type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode mail_domains: %w", err)
	}
	*d = out
	return nil
}

// Contest represents a time-boxed, school-scoped prize contest in the database
type Contest struct {
	ID             int64      `db:"id" json:"id"`
	SchoolName     string     `db:"school_name" json:"school_name"`
	Name           string     `db:"name" json:"name"`
	StartAt        time.Time  `db:"start_at" json:"start_at"`
	EndAt          time.Time  `db:"end_at" json:"end_at"`
	MailDomains    DomainList `db:"mail_domains" json:"mail_domains"`
	MailTag        string     `db:"mail_tag" json:"mail_tag"`
	MailDots       bool       `db:"mail_dots" json:"mail_dots"`
	Capacity       int        `db:"capacity" json:"capacity"`
	Policy         Policy     `db:"policy" json:"policy"`
	WinProbability *float64   `db:"win_probability" json:"win_probability,omitempty"`
	Prize          string     `db:"prize" json:"prize"`
	PrizeAmount    int        `db:"prize_amount" json:"prize_amount"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// IsOngoing reports whether now falls inside [StartAt, EndAt)
func (c *Contest) IsOngoing(now time.Time) bool {
	return !now.Before(c.StartAt) && now.Before(c.EndAt)
}

// ElapsedFraction returns how much of the contest window has passed, clamped to [0, 1]
func (c *Contest) ElapsedFraction(now time.Time) float64 {
	total := c.EndAt.Sub(c.StartAt)
	if total <= 0 {
		return 1
	}
	f := float64(now.Sub(c.StartAt)) / float64(total)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// CodeStatus is the lifecycle state of a prize code
type CodeStatus string

const (
	CodeAvailable CodeStatus = "available"
	CodeIssued    CodeStatus = "issued"
)

// PrizeCode represents one redeemable unit of a contest's inventory
type PrizeCode struct {
	ID        int64      `db:"id" json:"id"`
	ContestID int64      `db:"contest_id" json:"contest_id"`
	Code      string     `db:"code" json:"code"`
	Status    CodeStatus `db:"status" json:"status"`
	IssuedTo  *string    `db:"issued_to" json:"issued_to,omitempty"`
	IssuedAt  *time.Time `db:"issued_at" json:"issued_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
