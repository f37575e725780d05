package mqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/actorforge/internal/domain"
)

const (
	redisQueuePrefix   = "actorforge:mq:ready:"   // list, RPUSH/LPOP
	redisDelayedPrefix = "actorforge:mq:delayed:" // zset, score = ready-at unix millis
	redisInflightKey   = "actorforge:mq:inflight" // hash, messageID -> json(inflightEnvelope), shared across queues
	redisDedupPrefix   = "actorforge:mq:dedup:"   // set of seen dedup keys
	redisDLQPrefix     = "actorforge:mq:dlq:"     // list of dead-lettered envelopes
)

type inflightEnvelope struct {
	QueueName string         `json:"queue_name"`
	Message   domain.Message `json:"message"`
	Deadline  int64          `json:"deadline"`
}

// RedisQueue is the production Message Queue Adapter: RPUSH/LPOP for
// ready delivery (FIFO), a sorted set for delayed visibility, and a
// hash for in-flight tracking so Nack/Ack can find the envelope by
// message ID without scanning.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue wraps an existing Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, msg domain.Message, opts EnqueueOptions) error {
	if opts.DedupKey != "" {
		added, err := q.client.SAdd(ctx, redisDedupPrefix+queueName, opts.DedupKey).Result()
		if err != nil {
			return fmt.Errorf("check dedup key: %w", err)
		}
		if added == 0 {
			return nil
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if opts.Delay > 0 {
		score := float64(time.Now().Add(opts.Delay).UnixMilli())
		if err := q.client.ZAdd(ctx, redisDelayedPrefix+queueName, redis.Z{Score: score, Member: data}).Err(); err != nil {
			return fmt.Errorf("enqueue delayed message: %w", err)
		}
		return nil
	}

	if err := q.client.RPush(ctx, redisQueuePrefix+queueName, data).Err(); err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

// promoteDue moves any delayed messages whose ready-at has passed
// into the ready list. Called opportunistically from Dequeue so the
// in-memory and Redis drivers share the same polling cadence; a
// dedicated promoter goroutine is unnecessary at this scale.
func (q *RedisQueue) promoteDue(ctx context.Context, queueName string) error {
	now := float64(time.Now().UnixMilli())
	due, err := q.client.ZRangeByScore(ctx, redisDelayedPrefix+queueName, &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now), Count: 50,
	}).Result()
	if err != nil {
		return fmt.Errorf("scan delayed messages: %w", err)
	}
	for _, member := range due {
		removed, err := q.client.ZRem(ctx, redisDelayedPrefix+queueName, member).Result()
		if err != nil || removed == 0 {
			continue // another consumer already promoted it
		}
		if err := q.client.RPush(ctx, redisQueuePrefix+queueName, member).Err(); err != nil {
			return fmt.Errorf("promote delayed message: %w", err)
		}
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, queueName string, visibilityTimeout time.Duration) (*domain.Message, error) {
	if err := q.promoteDue(ctx, queueName); err != nil {
		return nil, err
	}

	data, err := q.client.LPop(ctx, redisQueuePrefix+queueName).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue message: %w", err)
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal dequeued message: %w", err)
	}

	envelope := inflightEnvelope{QueueName: queueName, Message: msg, Deadline: time.Now().Add(visibilityTimeout).UnixMilli()}
	envData, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal inflight envelope: %w", err)
	}
	if err := q.client.HSet(ctx, redisInflightKey, msg.MessageID, envData).Err(); err != nil {
		return nil, fmt.Errorf("track inflight message: %w", err)
	}

	return &msg, nil
}

func (q *RedisQueue) Ack(ctx context.Context, msg *domain.Message) error {
	if err := q.client.HDel(ctx, redisInflightKey, msg.MessageID).Err(); err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, msg *domain.Message, delay time.Duration) error {
	envData, err := q.client.HGet(ctx, redisInflightKey, msg.MessageID).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load inflight envelope: %w", err)
	}

	var envelope inflightEnvelope
	if err := json.Unmarshal(envData, &envelope); err != nil {
		return fmt.Errorf("unmarshal inflight envelope: %w", err)
	}
	q.client.HDel(ctx, redisInflightKey, msg.MessageID)

	return q.Enqueue(ctx, envelope.QueueName, envelope.Message, EnqueueOptions{Delay: delay})
}

func (q *RedisQueue) DeadLetter(ctx context.Context, msg *domain.Message, reason string) error {
	envData, err := q.client.HGet(ctx, redisInflightKey, msg.MessageID).Bytes()
	queueName := msg.ActorType
	if err == nil {
		var envelope inflightEnvelope
		if jsonErr := json.Unmarshal(envData, &envelope); jsonErr == nil {
			queueName = envelope.QueueName
		}
	}
	q.client.HDel(ctx, redisInflightKey, msg.MessageID)

	data, err := json.Marshal(struct {
		Message domain.Message `json:"message"`
		Reason  string         `json:"reason"`
	}{Message: *msg, Reason: reason})
	if err != nil {
		return fmt.Errorf("marshal dead-letter entry: %w", err)
	}
	if err := q.client.RPush(ctx, redisDLQPrefix+queueName, data).Err(); err != nil {
		return fmt.Errorf("dead-letter message: %w", err)
	}
	return nil
}

func (q *RedisQueue) Depth(ctx context.Context, queueName string) (int, error) {
	n, err := q.client.LLen(ctx, redisQueuePrefix+queueName).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return int(n), nil
}
