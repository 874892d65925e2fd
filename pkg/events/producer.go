package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/marinlafare/real-chessism/pkg/metrics"
	"github.com/marinlafare/real-chessism/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers []string
	Topic   string
}

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes sync events to Kafka
type Producer struct {
	writer MessageWriter
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Dev brokers may not have the topic yet.
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

// NewProducerWithWriter wraps an existing writer.
func NewProducerWithWriter(writer MessageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{writer: writer, logger: logger, topic: topic}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishSyncEvent publishes evt keyed by handle, so events for one player stay ordered.
func (p *Producer) PublishSyncEvent(ctx context.Context, evt *SyncEvent) error {
	if evt == nil {
		return fmt.Errorf("sync event is nil")
	}

	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishSyncEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("handle", evt.Handle),
		attribute.String("sync_id", evt.SyncID),
	)

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.TraceID = tracing.GetTraceID(ctx)
	evt.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal sync event")
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "handle", Value: []byte(evt.Handle)},
		{Key: "sync_id", Value: []byte(evt.SyncID)},
		{Key: "type", Value: []byte(evt.Type)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.Handle),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish sync event to Kafka topic %s", p.topic)
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())

	span.SetStatus(codes.Ok, "message published")
	p.logger.WithContext(ctx).Debugf("Published %s for %s to Kafka", evt.Type, evt.Handle)
	return nil
}

// CheckBrokers succeeds as soon as one broker accepts a connection.
func CheckBrokers(ctx context.Context, brokers []string) error {
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	if lastErr == nil {
		return errors.New("no kafka brokers configured")
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}
