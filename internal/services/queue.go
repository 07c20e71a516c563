package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	bodyField       = "body"
	attemptsTTL     = 7 * 24 * time.Hour
	deadReasonField = "reason"
)

// QueueOptions describes the durable evaluation queue on the broker.
type QueueOptions struct {
	Stream         string
	Group          string
	DeadLetter     string
	BlockTimeout   time.Duration // negative: return immediately when empty
	RedeliverAfter time.Duration
	BatchSize      int64
}

// Delivery is one message handed to a consumer. Attempt counts deliveries of
// the same message id, starting at 1.
type Delivery struct {
	ID      string
	Body    []byte
	Attempt int
}

// QueueBroker hands out broker sessions. It owns no connection itself.
type QueueBroker struct {
	dial func() *redis.Client
	opts QueueOptions
}

func NewQueueBroker(dial func() *redis.Client, opts QueueOptions) *QueueBroker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.DeadLetter == "" {
		opts.DeadLetter = opts.Stream + ":dead"
	}
	return &QueueBroker{dial: dial, opts: opts}
}

// Open dials a fresh connection and verifies it. The caller must Close the
// returned channel on every path.
func (b *QueueBroker) Open(ctx context.Context) (*QueueChannel, error) {
	client := b.dial()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to queue broker: %w", err)
	}
	return &QueueChannel{client: client, opts: b.opts}, nil
}

func (b *QueueBroker) Options() QueueOptions {
	return b.opts
}

// QueueChannel is one owned broker session.
type QueueChannel struct {
	client *redis.Client
	opts   QueueOptions
}

// Declare creates the stream and consumer group if missing.
func (c *QueueChannel) Declare(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to declare queue %s: %w", c.opts.Stream, err)
	}
	return nil
}

func (c *QueueChannel) Publish(ctx context.Context, body []byte) (string, error) {
	id, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.opts.Stream,
		Values: map[string]interface{}{bodyField: string(body)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", c.opts.Stream, err)
	}
	return id, nil
}

// Fetch returns the next deliveries for consumer. Messages left
// unacknowledged for longer than RedeliverAfter are reclaimed first, then new
// messages are read. An empty slice with a nil error means nothing arrived
// before the block timeout.
func (c *QueueChannel) Fetch(ctx context.Context, consumer string) ([]Delivery, error) {
	reclaimed, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.opts.Stream,
		Group:    c.opts.Group,
		Consumer: consumer,
		MinIdle:  c.opts.RedeliverAfter,
		Start:    "0-0",
		Count:    c.opts.BatchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to reclaim pending messages: %w", err)
	}
	if len(reclaimed) > 0 {
		return c.toDeliveries(ctx, reclaimed)
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.opts.Group,
		Consumer: consumer,
		Streams:  []string{c.opts.Stream, ">"},
		Count:    c.opts.BatchSize,
		Block:    c.opts.BlockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from %s: %w", c.opts.Stream, err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return c.toDeliveries(ctx, messages)
}

// Ack removes the message from the pending list and forgets its attempt count.
func (c *QueueChannel) Ack(ctx context.Context, d Delivery) error {
	if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, d.ID).Err(); err != nil {
		return fmt.Errorf("failed to ack %s: %w", d.ID, err)
	}
	if err := c.client.Del(ctx, c.attemptsKey(d.ID)).Err(); err != nil {
		return fmt.Errorf("failed to clear attempts for %s: %w", d.ID, err)
	}
	return nil
}

// DeadLetter copies the message to the dead-letter stream with the reason and
// then acknowledges the original.
func (c *QueueChannel) DeadLetter(ctx context.Context, d Delivery, reason string) error {
	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.opts.DeadLetter,
		Values: map[string]interface{}{
			bodyField:       string(d.Body),
			deadReasonField: reason,
			"source_id":     d.ID,
			"attempts":      d.Attempt,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to dead-letter %s: %w", d.ID, err)
	}
	return c.Ack(ctx, d)
}

func (c *QueueChannel) Close() error {
	return c.client.Close()
}

func (c *QueueChannel) toDeliveries(ctx context.Context, messages []redis.XMessage) ([]Delivery, error) {
	deliveries := make([]Delivery, 0, len(messages))
	for _, msg := range messages {
		attempt, err := c.countAttempt(ctx, msg.ID)
		if err != nil {
			return nil, err
		}

		body, _ := msg.Values[bodyField].(string)
		deliveries = append(deliveries, Delivery{
			ID:      msg.ID,
			Body:    []byte(body),
			Attempt: attempt,
		})
	}
	return deliveries, nil
}

func (c *QueueChannel) countAttempt(ctx context.Context, id string) (int, error) {
	key := c.attemptsKey(id)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, attemptsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to count delivery of %s: %w", id, err)
	}
	return int(incr.Val()), nil
}

func (c *QueueChannel) attemptsKey(id string) string {
	return fmt.Sprintf("%s:attempts:%s", c.opts.Stream, id)
}
