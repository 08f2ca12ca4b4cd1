package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/contest/internal/codegen"
	"github.com/kkkkikiki/contest/internal/model"
	"github.com/kkkkikiki/contest/internal/testutil"
)

func validInput() CreateContestInput {
	now := time.Now().UTC()
	return CreateContestInput{
		SchoolName:  "Example University",
		Name:        "Spring drive",
		StartAt:     now.Add(-time.Hour),
		EndAt:       now.Add(24 * time.Hour),
		MailDomains: []string{" @Example.EDU "},
		Capacity:    4,
		Policy:      model.PolicyFirstCome,
		Prize:       "Free coffee",
		PrizeAmount: 3,
	}
}

func TestContestService_CreateGeneratesInventory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewContestService(db, codegen.New("secret"))
	ctx := context.Background()

	contest, err := svc.CreateContest(ctx, validInput())
	require.NoError(t, err)
	require.NotZero(t, contest.ID)
	assert.Equal(t, model.DomainList{"example.edu"}, contest.MailDomains)

	details, err := svc.GetContest(ctx, contest.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, details.Remaining)
	assert.Empty(t, details.IssuedCodes)
	assert.Zero(t, details.Won)
	assert.Zero(t, details.Lost)
}

func TestContestService_CreateWithImportedCodes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewContestService(db, codegen.New("secret"))
	engine, _ := newTestEngine(t, db, nil)
	ctx := context.Background()

	in := validInput()
	in.Capacity = 2
	in.Codes = []string{"IMPORTED-1", "IMPORTED-2"}

	contest, err := svc.CreateContest(ctx, in)
	require.NoError(t, err)

	outcome, err := engine.ProcessVerification(ctx, contest.ID, student("ada@example.edu"), time.Now())
	require.NoError(t, err)
	assert.True(t, outcome.Won)
	assert.Contains(t, in.Codes, outcome.Code)

	details, err := svc.GetContest(ctx, contest.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{outcome.Code}, details.IssuedCodes)
	assert.Equal(t, 1, details.Remaining)
	assert.Equal(t, 1, details.Won)
}

func TestContestService_CreateRejectsInvalid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewContestService(db, codegen.New("secret"))
	ctx := context.Background()

	half := 0.5
	tooHigh := 1.5
	tests := []struct {
		name   string
		modify func(*CreateContestInput)
	}{
		{"missing name", func(in *CreateContestInput) { in.Name = " " }},
		{"missing school", func(in *CreateContestInput) { in.SchoolName = "" }},
		{"end before start", func(in *CreateContestInput) { in.EndAt = in.StartAt }},
		{"negative capacity", func(in *CreateContestInput) { in.Capacity = -1 }},
		{"unknown policy", func(in *CreateContestInput) { in.Policy = "lottery" }},
		{"no domains", func(in *CreateContestInput) { in.MailDomains = nil }},
		{"blank domain", func(in *CreateContestInput) { in.MailDomains = []string{"example.edu", " "} }},
		{"paced without probability", func(in *CreateContestInput) { in.Policy = model.PolicyPacedDraw }},
		{"probability above one", func(in *CreateContestInput) {
			in.Policy = model.PolicyPacedDraw
			in.WinProbability = &tooHigh
		}},
		{"code count mismatch", func(in *CreateContestInput) { in.Codes = []string{"A", "B"} }},
		{"duplicate codes", func(in *CreateContestInput) { in.Codes = []string{"A", "B", "C", "A"} }},
		{"blank code", func(in *CreateContestInput) { in.Codes = []string{"A", "B", "C", " "} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.modify(&in)
			_, err := svc.CreateContest(ctx, in)
			assert.ErrorIs(t, err, model.ErrInvalidContest)
			assert.True(t, IsInvalidInput(err))
		})
	}

	in := validInput()
	in.Policy = model.PolicyPacedDraw
	in.WinProbability = &half
	_, err := svc.CreateContest(ctx, in)
	assert.NoError(t, err)
}

func TestContestService_CreateRollsBackOnCodeConflict(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewContestService(db, codegen.New("secret"))
	ctx := context.Background()

	in := validInput()
	in.Capacity = 1
	in.Codes = []string{"SHARED"}
	_, err := svc.CreateContest(ctx, in)
	require.NoError(t, err)

	// A code already used by another contest aborts the whole provisioning
	_, err = svc.CreateContest(ctx, in)
	require.Error(t, err)

	var contests int
	require.NoError(t, db.SQL.Get(&contests, `SELECT COUNT(*) FROM contests`))
	assert.Equal(t, 1, contests)
}

func TestContestService_EndContest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewContestService(db, codegen.New("secret"))
	engine, _ := newTestEngine(t, db, nil)
	ctx := context.Background()

	contest, err := svc.CreateContest(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.EndContest(ctx, contest.ID, contest.EndAt.Add(time.Hour))
	assert.ErrorIs(t, err, model.ErrInvalidContest)

	_, err = svc.EndContest(ctx, contest.ID, contest.StartAt)
	assert.ErrorIs(t, err, model.ErrInvalidContest)

	_, err = svc.EndContest(ctx, contest.ID+100, time.Now())
	assert.ErrorIs(t, err, model.ErrContestNotFound)

	endAt := time.Now().Add(-time.Minute)
	ended, err := svc.EndContest(ctx, contest.ID, endAt)
	require.NoError(t, err)
	assert.WithinDuration(t, endAt, ended.EndAt, time.Second)

	// New entries are closed straight away regardless of inventory
	_, err = engine.ProcessVerification(ctx, contest.ID, student("ada@example.edu"), time.Now())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrAllocationFailed)

	details, err := svc.GetContest(ctx, contest.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, details.Remaining)
}
