package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobMessage is one queued unit of work
type JobMessage struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Handle    string            `json:"handle"`
	Headers   map[string]string `json:"headers,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Attempts  int               `json:"attempts"`
}

// StreamMessage is a job read from a stream together with its entry id
type StreamMessage struct {
	ID     string
	Stream string
	Job    *JobMessage
	// Raw is set when the entry could not be decoded into a JobMessage
	Raw string
}

// Streams provides Redis Streams operations for job queues
type Streams struct {
	client *Client
}

// NewStreams creates a new Streams instance
func NewStreams(client *Client) *Streams {
	return &Streams{client: client}
}

// Publish adds a job to a stream, assigning an id and timestamp when missing
func (s *Streams) Publish(ctx context.Context, stream string, job *JobMessage) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	result, err := s.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"data": string(payload),
		},
	}).Result()
	if err != nil {
		s.client.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to stream %s", stream)
		return "", err
	}

	s.client.logger.WithContext(ctx).Infof("Published job %s to stream %s (message ID: %s)", job.ID, stream, result)
	return result, nil
}

// CreateConsumerGroup creates a consumer group, creating the stream if needed
func (s *Streams) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	err := s.client.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Consume reads new messages for a consumer of the group
func (s *Streams) Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	results, err := s.client.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []StreamMessage
	for _, result := range results {
		messages = append(messages, decodeMessages(result.Stream, result.Messages)...)
	}
	return messages, nil
}

// Ack acknowledges messages
func (s *Streams) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return s.client.rdb.XAck(ctx, stream, group, ids...).Err()
}

// Pending returns pending entries of the group
func (s *Streams) Pending(ctx context.Context, stream, group string, count int64) ([]redis.XPendingExt, error) {
	return s.client.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
}

// Claim transfers idle pending messages to consumer
func (s *Streams) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	results, err := s.client.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}
	return decodeMessages(stream, results), nil
}

// Len returns the length of a stream
func (s *Streams) Len(ctx context.Context, stream string) (int64, error) {
	return s.client.rdb.XLen(ctx, stream).Result()
}

func decodeMessages(stream string, entries []redis.XMessage) []StreamMessage {
	messages := make([]StreamMessage, 0, len(entries))
	for _, msg := range entries {
		data, _ := msg.Values["data"].(string)
		sm := StreamMessage{ID: msg.ID, Stream: stream, Raw: data}

		var job JobMessage
		if err := json.Unmarshal([]byte(data), &job); err == nil && job.ID != "" {
			sm.Job = &job
		}
		messages = append(messages, sm)
	}
	return messages
}
