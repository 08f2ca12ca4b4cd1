package rpc

import (
	"time"

	"github.com/kkkkikiki/contest/internal/model"
	"github.com/kkkkikiki/contest/internal/service"
)

const (
	// ContestServiceName is the fully-qualified name of the contest admin service
	ContestServiceName = "contest.v1.ContestService"
	// VerificationServiceName is the fully-qualified name of the verification service
	VerificationServiceName = "contest.v1.VerificationService"
)

const (
	ContestServiceCreateContestProcedure = "/contest.v1.ContestService/CreateContest"
	ContestServiceGetContestProcedure    = "/contest.v1.ContestService/GetContest"
	ContestServiceEndContestProcedure    = "/contest.v1.ContestService/EndContest"

	VerificationServiceFinishVerificationProcedure = "/contest.v1.VerificationService/FinishVerification"
)

// Contest is the admin view of a contest with its allocation state
type Contest struct {
	ID             int64     `json:"id"`
	SchoolName     string    `json:"school_name"`
	Name           string    `json:"name"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	MailDomains    []string  `json:"mail_domains"`
	MailTag        string    `json:"mail_tag,omitempty"`
	MailDots       bool      `json:"mail_dots,omitempty"`
	Capacity       int       `json:"capacity"`
	Policy         string    `json:"policy"`
	WinProbability *float64  `json:"win_probability,omitempty"`
	Prize          string    `json:"prize"`
	PrizeAmount    int       `json:"prize_amount"`
	IssuedCodes    []string  `json:"issued_codes"`
	Remaining      int       `json:"remaining"`
	Won            int       `json:"won"`
	Lost           int       `json:"lost"`
}

type CreateContestRequest struct {
	SchoolName     string    `json:"school_name"`
	Name           string    `json:"name"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	MailDomains    []string  `json:"mail_domains"`
	MailTag        string    `json:"mail_tag,omitempty"`
	MailDots       bool      `json:"mail_dots,omitempty"`
	Capacity       int       `json:"capacity"`
	Policy         string    `json:"policy"`
	WinProbability *float64  `json:"win_probability,omitempty"`
	Prize          string    `json:"prize"`
	PrizeAmount    int       `json:"prize_amount"`
	// Codes imports an externally minted inventory of exactly Capacity codes
	Codes []string `json:"codes,omitempty"`
}

type CreateContestResponse struct {
	Contest *Contest `json:"contest"`
}

type GetContestRequest struct {
	ContestID int64 `json:"contest_id"`
}

type GetContestResponse struct {
	Contest *Contest `json:"contest"`
}

type EndContestRequest struct {
	ContestID int64 `json:"contest_id"`
	// EndAt defaults to the time of the call
	EndAt *time.Time `json:"end_at,omitempty"`
}

type EndContestResponse struct {
	Contest *Contest `json:"contest"`
}

type FinishVerificationRequest struct {
	ContestID int64  `json:"contest_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type FinishVerificationResponse struct {
	ContestID int64     `json:"contest_id"`
	Won       bool      `json:"won"`
	Code      string    `json:"code,omitempty"`
	Prize     string    `json:"prize,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
	Replayed  bool      `json:"replayed"`
}

func toContest(c *model.Contest) *Contest {
	return &Contest{
		ID:             c.ID,
		SchoolName:     c.SchoolName,
		Name:           c.Name,
		StartAt:        c.StartAt,
		EndAt:          c.EndAt,
		MailDomains:    []string(c.MailDomains),
		MailTag:        c.MailTag,
		MailDots:       c.MailDots,
		Capacity:       c.Capacity,
		Policy:         string(c.Policy),
		WinProbability: c.WinProbability,
		Prize:          c.Prize,
		PrizeAmount:    c.PrizeAmount,
		IssuedCodes:    []string{},
	}
}

func toContestDetails(d *service.ContestDetails) *Contest {
	out := toContest(d.Contest)
	out.IssuedCodes = d.IssuedCodes
	out.Remaining = d.Remaining
	out.Won = d.Won
	out.Lost = d.Lost
	return out
}
