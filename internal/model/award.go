package model

import (
	"time"
)

// Outcome is the recorded result of a student's entry
type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
	// OutcomePending marks a claimed row whose decision has not committed yet.
	// It is never visible outside the claiming transaction.
	OutcomePending Outcome = "pending"
)

// VerificationEvent is what the presentation layer delivers after the
// verification widget reports completion
type VerificationEvent struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// StudentIdentity is the normalized identity used to key award records
type StudentIdentity struct {
	Email     string
	FirstName string
	LastName  string
	School    string
}

// AwardRecord represents a student's single decided entry in a contest
type AwardRecord struct {
	ID          string    `db:"id" json:"id"`
	ContestID   int64     `db:"contest_id" json:"contest_id"`
	Email       string    `db:"email" json:"email"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	School      string    `db:"school" json:"school"`
	Outcome     Outcome   `db:"outcome" json:"outcome"`
	PrizeCodeID *int64    `db:"prize_code_id" json:"prize_code_id,omitempty"`
	Code        *string   `db:"code" json:"code,omitempty"`
	DecidedAt   time.Time `db:"decided_at" json:"decided_at"`
}

// Won reports whether the record holds a winning outcome
func (a *AwardRecord) Won() bool {
	return a.Outcome == OutcomeWon
}

// Decision is the outcome produced for a newly claimed award record
type Decision struct {
	Outcome Outcome
	Code    *PrizeCode
}

// AwardOutcome is returned to the caller for presentation and notification
type AwardOutcome struct {
	ContestID int64     `json:"contest_id"`
	Won       bool      `json:"won"`
	Code      string    `json:"code,omitempty"`
	Prize     string    `json:"prize,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
	Replayed  bool      `json:"replayed"`
}

// NewAwardOutcome builds the outbound outcome for a record
func NewAwardOutcome(record *AwardRecord, contest *Contest, replayed bool) *AwardOutcome {
	out := &AwardOutcome{
		ContestID: record.ContestID,
		Won:       record.Won(),
		DecidedAt: record.DecidedAt,
		Replayed:  replayed,
	}
	if out.Won {
		if record.Code != nil {
			out.Code = *record.Code
		}
		if contest != nil {
			out.Prize = contest.Prize
		}
	}
	return out
}
