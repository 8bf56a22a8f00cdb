// Package audit emits domain audit events (session created, match created)
// to a RabbitMQ topic exchange. Without an AMQP URL events are only logged.
package audit

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Routing keys.
const (
	EventSessionCreated = "session.created"
	EventSessionJoined  = "session.joined"
	EventMatchCreated   = "match.created"
)

// Event is the envelope published for every audit record.
type Event struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"sessionId"`
	ActorID    string         `json:"actorId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher publishes audit events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NewPublisher dials RabbitMQ and declares the exchange. Any failure yields a
// logging publisher so callers never need a nil check.
func NewPublisher(url, exchange string, logger *zap.Logger) Publisher {
	logger = logger.Named("audit")
	if url == "" {
		logger.Info("audit sink disabled, using noop", zap.String("reason", "empty amqp url"))
		return NewNoop(logger)
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		logger.Warn("audit sink disabled, using noop", zap.Error(err))
		return NewNoop(logger)
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Warn("audit sink disabled, using noop", zap.Error(err))
		_ = conn.Close()
		return NewNoop(logger)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		logger.Warn("audit sink disabled, using noop", zap.Error(err))
		_ = ch.Close()
		_ = conn.Close()
		return NewNoop(logger)
	}

	logger.Info("audit sink connected", zap.String("exchange", exchange))
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *zap.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		p.logger.Warn("audit publish failed", zap.String("type", event.Type), zap.Error(err))
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Noop logs events at debug level and drops them.
type Noop struct {
	logger *zap.Logger
}

// NewNoop returns a publisher that only logs.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) Publish(_ context.Context, event Event) error {
	n.logger.Debug("audit noop publish",
		zap.String("type", event.Type),
		zap.String("session_id", event.SessionID))
	return nil
}

func (n *Noop) Close() error { return nil }
