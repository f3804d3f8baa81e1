// Package rabbitmq publishes audit events to a topic exchange, falling
// back to a noop publisher when no broker is configured or reachable.
package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/observability"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/telemetry"
)

// NewPublisher builds a RabbitMQ publisher or a noop publisher when AMQP
// is disabled or unavailable.
func NewPublisher(amqpURL, exchange string, log zerolog.Logger) telemetry.Publisher {
	if amqpURL == "" {
		log.Info().Msg("rabbitmq disabled, using noop publisher")
		return noopPublisher{log: log}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, using noop publisher")
		return noopPublisher{log: log}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq channel failed, using noop publisher")
		_ = conn.Close()
		return noopPublisher{log: log}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Warn().Err(err).Msg("rabbitmq exchange declare failed, using noop publisher")
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{log: log}
	}

	log.Info().Str("exchange", exchange).Msg("rabbitmq connected")
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, log: log}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      zerolog.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		observability.IncAMQPPublishError()
		p.log.Warn().Err(err).Str("routing_key", routingKey).Msg("rabbitmq publish failed")
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

type noopPublisher struct {
	log zerolog.Logger
}

func (n noopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	n.log.Debug().Str("routing_key", routingKey).Msg("noop publish")
	return nil
}

func (noopPublisher) Close() error { return nil }
