package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/biometric"
)

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// Declare exchange
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// ReadingAcceptedEvent is published after a reading passed the full pipeline.
type ReadingAcceptedEvent struct {
	ReadingID        string   `json:"reading_id"`
	UserID           string   `json:"user_id"`
	DeviceID         string   `json:"device_id"`
	ReadingTimestamp string   `json:"reading_timestamp"`
	DataTypes        []string `json:"data_types"`
}

// AlertEvent is published when the real-time processor raises a wellness
// alert.
type AlertEvent struct {
	AlertID   string `json:"alert_id"`
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// PublishReadingAccepted publishes an accepted-reading event.
func (p *Publisher) PublishReadingAccepted(ctx context.Context, reading *biometric.Reading, routingKey string) error {
	types := make([]string, 0, 4)
	for _, t := range reading.DataTypes() {
		types = append(types, string(t))
	}
	event := ReadingAcceptedEvent{
		ReadingID:        reading.ID,
		UserID:           reading.UserID,
		DeviceID:         reading.DeviceID,
		ReadingTimestamp: reading.Timestamp.Format(time.RFC3339),
		DataTypes:        types,
	}

	if err := p.publish(ctx, event, routingKey); err != nil {
		return err
	}
	p.logger.Debug("published accepted reading",
		zap.String("routing_key", routingKey),
		zap.String("user_id", reading.UserID),
		zap.String("reading_id", reading.ID),
	)
	return nil
}

// PublishAlert publishes a wellness alert event.
func (p *Publisher) PublishAlert(ctx context.Context, alert *biometric.Alert, routingKey string) error {
	event := AlertEvent{
		AlertID:   alert.ID,
		UserID:    alert.UserID,
		Type:      alert.Type,
		Severity:  string(alert.Severity),
		Message:   alert.Message,
		Timestamp: alert.Timestamp.Format(time.RFC3339),
	}

	if err := p.publish(ctx, event, routingKey); err != nil {
		return err
	}
	p.logger.Debug("published wellness alert",
		zap.String("routing_key", routingKey),
		zap.String("user_id", alert.UserID),
		zap.String("type", alert.Type),
	)
	return nil
}

func (p *Publisher) publish(ctx context.Context, event interface{}, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
