package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/contest/internal/codegen"
	"github.com/kkkkikiki/contest/internal/config"
	"github.com/kkkkikiki/contest/internal/decider"
	"github.com/kkkkikiki/contest/internal/service"
	"github.com/kkkkikiki/contest/internal/testutil"
)

const testAdminToken = "admin-secret"

type testServer struct {
	url          string
	admin        *ContestServiceClient
	verification *VerificationServiceClient
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.SetupTestDB(t)
	contests := service.NewContestService(db, codegen.New("secret"))
	engine := service.NewAllocationEngine(db, decider.New(nil), nil, config.AllocationConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})

	mux := http.NewServeMux()
	mux.Handle(NewContestServiceHandler(NewContestServer(contests), testAdminToken))
	mux.Handle(NewVerificationServiceHandler(NewVerificationServer(engine)))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{
		url:          srv.URL,
		admin:        NewContestServiceClient(srv.Client(), srv.URL, testAdminToken),
		verification: NewVerificationServiceClient(srv.Client(), srv.URL),
	}
}

func createContest(t *testing.T, ts *testServer, capacity int) *Contest {
	t.Helper()
	now := time.Now().UTC()
	resp, err := ts.admin.CreateContest(context.Background(), connect.NewRequest(&CreateContestRequest{
		SchoolName:  "Example University",
		Name:        "Drive",
		StartAt:     now.Add(-time.Hour),
		EndAt:       now.Add(time.Hour),
		MailDomains: []string{"example.edu"},
		Capacity:    capacity,
		Policy:      "first_come",
		Prize:       "Coffee",
	}))
	require.NoError(t, err)
	require.NotNil(t, resp.Msg.Contest)
	return resp.Msg.Contest
}

func TestContestService_CreateAndGet(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	contest := createContest(t, ts, 3)
	assert.NotZero(t, contest.ID)
	assert.Equal(t, 3, contest.Remaining)
	assert.Empty(t, contest.IssuedCodes)

	first, err := ts.verification.FinishVerification(ctx, connect.NewRequest(&FinishVerificationRequest{
		ContestID: contest.ID,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.edu",
	}))
	require.NoError(t, err)
	assert.True(t, first.Msg.Won)
	assert.Regexp(t, `^[2-9A-HJ-NP-Z]{4}(-[2-9A-HJ-NP-Z]{4}){3}$`, first.Msg.Code)
	assert.Equal(t, "Coffee", first.Msg.Prize)

	got, err := ts.admin.GetContest(ctx, connect.NewRequest(&GetContestRequest{ContestID: contest.ID}))
	require.NoError(t, err)
	assert.Equal(t, []string{first.Msg.Code}, got.Msg.Contest.IssuedCodes)
	assert.Equal(t, 2, got.Msg.Contest.Remaining)
	assert.Equal(t, 1, got.Msg.Contest.Won)
}

func TestContestService_RequiresAdminToken(t *testing.T) {
	ts := newTestServer(t)

	anonymous := NewContestServiceClient(http.DefaultClient, ts.url, "")
	_, err := anonymous.GetContest(context.Background(), connect.NewRequest(&GetContestRequest{ContestID: 1}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	wrong := NewContestServiceClient(http.DefaultClient, ts.url, "nope")
	_, err = wrong.GetContest(context.Background(), connect.NewRequest(&GetContestRequest{ContestID: 1}))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestContestService_ErrorCodes(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := ts.admin.GetContest(ctx, connect.NewRequest(&GetContestRequest{ContestID: 404}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = ts.admin.CreateContest(ctx, connect.NewRequest(&CreateContestRequest{Name: "missing fields"}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestContestService_EndContestClosesEntries(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	contest := createContest(t, ts, 2)
	ended, err := ts.admin.EndContest(ctx, connect.NewRequest(&EndContestRequest{ContestID: contest.ID}))
	require.NoError(t, err)
	assert.True(t, ended.Msg.Contest.EndAt.Before(contest.EndAt))

	_, err = ts.verification.FinishVerification(ctx, connect.NewRequest(&FinishVerificationRequest{
		ContestID: contest.ID,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.edu",
	}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	var cerr *connect.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "contest_closed", cerr.Meta().Get("Ineligible-Reason"))

	// Moving the end later is rejected
	later := contest.EndAt.Add(time.Hour)
	_, err = ts.admin.EndContest(ctx, connect.NewRequest(&EndContestRequest{ContestID: contest.ID, EndAt: &later}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestVerificationService_InvalidArgument(t *testing.T) {
	ts := newTestServer(t)

	_, err := ts.verification.FinishVerification(context.Background(), connect.NewRequest(&FinishVerificationRequest{
		Email: "ada@example.edu",
	}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestVerificationService_DomainMismatch(t *testing.T) {
	ts := newTestServer(t)
	contest := createContest(t, ts, 1)

	_, err := ts.verification.FinishVerification(context.Background(), connect.NewRequest(&FinishVerificationRequest{
		ContestID: contest.ID,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@gmail.com",
	}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	codec := jsonCodec{}
	assert.Equal(t, "json", codec.Name())

	in := &GetContestRequest{ContestID: 9}
	data, err := codec.Marshal(in)
	require.NoError(t, err)

	var out GetContestRequest
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, *in, out)

	require.NoError(t, codec.Unmarshal(nil, &out))
	assert.Error(t, codec.Unmarshal([]byte("{"), &out))
}
