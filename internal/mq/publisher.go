package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
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

// ReadingEvent is published for every reading of a fetched record
type ReadingEvent struct {
	EventID        string  `json:"event_id"`
	RequestID      string  `json:"request_id"`
	UsagePointID   string  `json:"usage_point_id"`
	DataType       string  `json:"data_type"`
	Unit           string  `json:"unit"`
	Value          int64   `json:"value"`
	Date           string  `json:"date"`
	DateOnly       bool    `json:"date_only"`
	IntervalLength *string `json:"interval_length,omitempty"`
	MeasureType    *string `json:"measure_type,omitempty"`
	Anomalous      bool    `json:"anomalous"`
	AnomalyReason  string  `json:"anomaly_reason,omitempty"`
}

// RecordSummary is published once per fetched record
type RecordSummary struct {
	EventID      string    `json:"event_id"`
	RequestID    string    `json:"request_id"`
	UsagePointID string    `json:"usage_point_id"`
	DataType     string    `json:"data_type"`
	Start        string    `json:"start"`
	End          string    `json:"end"`
	Quality      string    `json:"quality"`
	Unit         string    `json:"unit"`
	ReadingCount int       `json:"reading_count"`
	Total        int64     `json:"total"`
	Average      float64   `json:"average"`
	AnomalyCount int       `json:"anomaly_count"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// PublishReadingEvent publishes one reading of a fetched record
func (p *Publisher) PublishReadingEvent(ctx context.Context, event ReadingEvent, routingKey string) error {
	if err := p.publishJSON(ctx, event, routingKey); err != nil {
		return err
	}

	p.logger.Debug("published reading event",
		zap.String("routing_key", routingKey),
		zap.String("usage_point_id", event.UsagePointID),
		zap.String("date", event.Date),
	)
	return nil
}

// PublishRecordSummary publishes the aggregate view of a fetched record
func (p *Publisher) PublishRecordSummary(ctx context.Context, summary RecordSummary, routingKey string) error {
	if err := p.publishJSON(ctx, summary, routingKey); err != nil {
		return err
	}

	p.logger.Debug("published record summary",
		zap.String("routing_key", routingKey),
		zap.String("usage_point_id", summary.UsagePointID),
		zap.Int("reading_count", summary.ReadingCount),
	)
	return nil
}

func (p *Publisher) publishJSON(ctx context.Context, v any, routingKey string) error {
	body, err := json.Marshal(v)
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
			Timestamp:    time.Now().UTC(),
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
