// Package notify publishes award outcomes to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/kkkkikiki/contest/internal/logger"
	"github.com/kkkkikiki/contest/internal/metrics"
	"github.com/kkkkikiki/contest/internal/model"
)

// AwardEvent is the message published for every newly decided award record
type AwardEvent struct {
	AwardID     string    `json:"award_id"`
	ContestID   int64     `json:"contest_id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	School      string    `json:"school"`
	Won         bool      `json:"won"`
	Code        string    `json:"code,omitempty"`
	Prize       string    `json:"prize,omitempty"`
	PrizeAmount int       `json:"prize_amount,omitempty"`
	DecidedAt   time.Time `json:"decided_at"`
}

// NewAwardEvent builds the event for a committed record
func NewAwardEvent(record *model.AwardRecord, contest *model.Contest) *AwardEvent {
	event := &AwardEvent{
		AwardID:   record.ID,
		ContestID: record.ContestID,
		Email:     record.Email,
		FirstName: record.FirstName,
		LastName:  record.LastName,
		School:    record.School,
		Won:       record.Won(),
		DecidedAt: record.DecidedAt,
	}
	if event.Won {
		if record.Code != nil {
			event.Code = *record.Code
		}
		event.Prize = contest.Prize
		event.PrizeAmount = contest.PrizeAmount
	}
	return event
}

// Publisher delivers award events without blocking the caller
type Publisher interface {
	Publish(event *AwardEvent)
	Close()
}

// Transport sends one encoded message. msgID lets the broker drop duplicates.
type Transport interface {
	Send(ctx context.Context, subject string, data []byte, msgID string) error
	Close()
}

// Noop discards every event
type Noop struct{}

func (Noop) Publish(*AwardEvent) {}
func (Noop) Close()              {}

// Dispatcher publishes events through a transport on a bounded worker pool
type Dispatcher struct {
	transport Transport
	prefix    string
	timeout   time.Duration
	pool      pond.Pool
}

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	SubjectPrefix string
	Workers       int
	QueueSize     int
	SendTimeout   time.Duration
}

// NewDispatcher creates a dispatcher sending through transport
func NewDispatcher(transport Transport, cfg DispatcherConfig) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &Dispatcher{
		transport: transport,
		prefix:    cfg.SubjectPrefix,
		timeout:   cfg.SendTimeout,
		pool:      pond.NewPool(cfg.Workers, pond.WithQueueSize(cfg.QueueSize)),
	}
}

// Subject returns the subject an event is published on
func (d *Dispatcher) Subject(event *AwardEvent) string {
	if event.Won {
		return d.prefix + ".won"
	}
	return d.prefix + ".lost"
}

// Publish queues event for delivery. A full queue drops the event.
func (d *Dispatcher) Publish(event *AwardEvent) {
	if _, ok := d.pool.TrySubmit(func() { d.send(event) }); !ok {
		metrics.NotificationFailures.Inc()
		logger.Warn("Award notification queue full, dropping event",
			zap.String("award_id", event.AwardID),
			zap.Int64("contest_id", event.ContestID))
	}
}

func (d *Dispatcher) send(event *AwardEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		metrics.NotificationFailures.Inc()
		logger.Error(fmt.Errorf("failed to marshal award event: %w", err), zap.String("award_id", event.AwardID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.transport.Send(ctx, d.Subject(event), data, event.AwardID); err != nil {
		metrics.NotificationFailures.Inc()
		logger.Error(fmt.Errorf("failed to publish award event: %w", err),
			zap.String("award_id", event.AwardID),
			zap.Int64("contest_id", event.ContestID))
		return
	}

	logger.Debug("Published award event",
		zap.String("award_id", event.AwardID),
		zap.Bool("won", event.Won))
}

// Close waits for queued events and closes the transport
func (d *Dispatcher) Close() {
	d.pool.StopAndWait()
	d.transport.Close()
}
