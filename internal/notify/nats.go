package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kkkkikiki/contest/internal/config"
	"github.com/kkkkikiki/contest/internal/logger"
)

// NatsConn is the subset of *nats.Conn used for publishing
type NatsConn interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NatsTransport publishes on core NATS with a Nats-Msg-Id header
type NatsTransport struct {
	nc NatsConn
}

// NewNatsTransport wraps an existing connection
func NewNatsTransport(nc NatsConn) *NatsTransport {
	return &NatsTransport{nc: nc}
}

// ConnectNats dials the configured NATS server
func ConnectNats(cfg config.NotifyConfig) (*NatsTransport, error) {
	opts := []nats.Option{
		nats.Name("contest-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNatsTransport(nc), nil
}

// Send publishes data on subject and flushes it to the server
func (t *NatsTransport) Send(ctx context.Context, subject string, data []byte, msgID string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, msgID)

	if err := t.nc.PublishMsg(msg); err != nil {
		return err
	}
	return t.nc.FlushWithContext(ctx)
}

// Close closes the NATS connection
func (t *NatsTransport) Close() {
	if t.nc == nil {
		return
	}
	t.nc.Close()
}

// NewPublisher returns a NATS-backed dispatcher, or Noop when no URL is configured
func NewPublisher(cfg config.NotifyConfig) (Publisher, error) {
	if cfg.URL == "" {
		logger.Info("NATS_URL not set, award notifications disabled")
		return Noop{}, nil
	}

	transport, err := ConnectNats(cfg)
	if err != nil {
		return nil, err
	}
	return NewDispatcher(transport, DispatcherConfig{
		SubjectPrefix: cfg.SubjectPrefix,
		Workers:       cfg.Workers,
		QueueSize:     cfg.QueueSize,
	}), nil
}
