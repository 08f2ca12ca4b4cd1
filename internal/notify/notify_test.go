package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/contest/internal/config"
	"github.com/kkkkikiki/contest/internal/model"
)

type sentMessage struct {
	subject string
	data    []byte
	msgID   string
}

type fakeTransport struct {
	mu     sync.Mutex
	sent   []sentMessage
	err    error
	closed bool
}

func (f *fakeTransport) Send(_ context.Context, subject string, data []byte, msgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{subject: subject, data: data, msgID: msgID})
	return nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

type fakeNatsConn struct {
	msgs    []*nats.Msg
	flushes int
	closed  bool
}

func (f *fakeNatsConn) PublishMsg(msg *nats.Msg) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeNatsConn) FlushWithContext(context.Context) error {
	f.flushes++
	return nil
}

func (f *fakeNatsConn) Close() { f.closed = true }

func winningRecord() (*model.AwardRecord, *model.Contest) {
	code := "ABCD-EFGH-JKLM-NPQR"
	codeID := int64(7)
	record := &model.AwardRecord{
		ID:          "award-1",
		ContestID:   3,
		Email:       "ada@example.edu",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		School:      "example.edu",
		Outcome:     model.OutcomeWon,
		PrizeCodeID: &codeID,
		Code:        &code,
		DecidedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	contest := &model.Contest{ID: 3, Prize: "$5 gift card", PrizeAmount: 5}
	return record, contest
}

func TestNewAwardEvent(t *testing.T) {
	record, contest := winningRecord()

	event := NewAwardEvent(record, contest)
	assert.Equal(t, "award-1", event.AwardID)
	assert.True(t, event.Won)
	assert.Equal(t, "ABCD-EFGH-JKLM-NPQR", event.Code)
	assert.Equal(t, "$5 gift card", event.Prize)
	assert.Equal(t, 5, event.PrizeAmount)

	record.Outcome = model.OutcomeLost
	record.Code = nil
	record.PrizeCodeID = nil
	event = NewAwardEvent(record, contest)
	assert.False(t, event.Won)
	assert.Empty(t, event.Code)
	assert.Empty(t, event.Prize)
}

func TestDispatcher_PublishesOnOutcomeSubject(t *testing.T) {
	transport := &fakeTransport{}
	d := NewDispatcher(transport, DispatcherConfig{SubjectPrefix: "contest.awards", Workers: 2, QueueSize: 16})

	record, contest := winningRecord()
	d.Publish(NewAwardEvent(record, contest))

	record.ID = "award-2"
	record.Outcome = model.OutcomeLost
	record.Code = nil
	d.Publish(NewAwardEvent(record, contest))

	d.Close()

	require.Len(t, transport.sent, 2)
	assert.True(t, transport.closed)

	byID := map[string]sentMessage{}
	for _, msg := range transport.sent {
		byID[msg.msgID] = msg
	}
	assert.Equal(t, "contest.awards.won", byID["award-1"].subject)
	assert.Equal(t, "contest.awards.lost", byID["award-2"].subject)

	var decoded AwardEvent
	require.NoError(t, json.Unmarshal(byID["award-1"].data, &decoded))
	assert.Equal(t, "ABCD-EFGH-JKLM-NPQR", decoded.Code)
	assert.Equal(t, int64(3), decoded.ContestID)
}

func TestDispatcher_TransportFailureDoesNotPanic(t *testing.T) {
	transport := &fakeTransport{err: errors.New("broker down")}
	d := NewDispatcher(transport, DispatcherConfig{SubjectPrefix: "p", Workers: 1, QueueSize: 4})

	record, contest := winningRecord()
	d.Publish(NewAwardEvent(record, contest))
	d.Close()

	assert.Empty(t, transport.sent)
}

func TestNatsTransport_SetsMsgID(t *testing.T) {
	conn := &fakeNatsConn{}
	transport := NewNatsTransport(conn)

	require.NoError(t, transport.Send(context.Background(), "contest.awards.won", []byte(`{}`), "award-1"))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "contest.awards.won", conn.msgs[0].Subject)
	assert.Equal(t, "award-1", conn.msgs[0].Header.Get(nats.MsgIdHdr))
	assert.Equal(t, 1, conn.flushes)

	transport.Close()
	assert.True(t, conn.closed)
}

func TestNewPublisher_NoURL(t *testing.T) {
	p, err := NewPublisher(config.NotifyConfig{SubjectPrefix: "p", Workers: 1})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)
	p.Publish(&AwardEvent{})
	p.Close()
}
