// Package notify publishes catalog events to RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/catalog"
)

// RoutingKeyExported is the routing key of export events
const RoutingKeyExported = "catalog.exported"

// Publisher sends export events to a topic exchange. It dials per event;
// exports happen a few times a day.
type Publisher struct {
	url      string
	exchange string
	logger   *logrus.Logger
}

// NewPublisher creates a publisher. An empty url disables publishing.
func NewPublisher(url, exchange string, logger *logrus.Logger) *Publisher {
	return &Publisher{
		url:      url,
		exchange: exchange,
		logger:   logger,
	}
}

// Enabled reports whether a broker is configured
func (p *Publisher) Enabled() bool {
	return p.url != ""
}

// PublishExport announces a new snapshot version
func (p *Publisher) PublishExport(ctx context.Context, event catalog.ExportEvent) error {
	if !p.Enabled() {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal export event: %w", err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    event.Version,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, p.exchange, RoutingKeyExported, false, false, pub); err != nil {
		return fmt.Errorf("failed to publish export event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"exchange": p.exchange,
		"version":  event.Version,
	}).Debug("Published export event")
	return nil
}
