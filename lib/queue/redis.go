// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mymetro/beacon/lib/position"
)

// DefaultRedisKey is the sorted set used when RedisConfig.Key is empty.
const DefaultRedisKey = "beacon:positions"

// RedisConfig holds the parameters for OpenRedis.
type RedisConfig struct {
	// URL in redis:// or rediss:// form.
	URL string

	// Key names the sorted set; the sequence counter lives at
	// Key+":seq".
	Key string

	Logger *slog.Logger
}

// Redis is a Queue kept in a Redis sorted set. Members are encoded
// records (each carrying its own id, so members are unique) scored by
// a sequence from INCR. Durability is whatever the server's
// persistence settings provide; deployments run with appendonly.
type Redis struct {
	client    redis.UniversalClient
	key       string
	sequence  string
	ownClient bool
	logger    *slog.Logger
}

// OpenRedis connects to the server named by cfg.URL and verifies it
// answers.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	options, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("queue: parsing redis URL: %w", err)
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("queue: connecting to redis at %s: %w", options.Addr, err)
	}

	q := NewRedis(client, cfg.Key, cfg.Logger)
	q.ownClient = true

	pending, err := q.Len(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("queue: %w", err)
	}
	q.logger.Info("position queue opened", "backend", "redis", "addr", options.Addr, "key", q.key, "pending", pending)
	return q, nil
}

// NewRedis wraps an existing client. Close does not close a client
// passed in this way.
func NewRedis(client redis.UniversalClient, key string, logger *slog.Logger) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Redis{client: client, key: key, sequence: key + ":seq", logger: logger}
}

// Insert takes the next sequence number and then adds the record. A
// crash between the two leaves a gap in the ids, never a reuse.
func (q *Redis) Insert(ctx context.Context, p position.Position) (int64, error) {
	id, err := q.client.Incr(ctx, q.sequence).Result()
	if err != nil {
		return 0, storageError("insert", err)
	}
	payload, err := encodeRecord(id, p)
	if err != nil {
		return 0, fmt.Errorf("queue: encoding position: %w", err)
	}
	if err := q.client.ZAdd(ctx, q.key, redis.Z{Score: float64(id), Member: payload}).Err(); err != nil {
		return 0, storageError("insert", err)
	}
	return id, nil
}

func (q *Redis) PeekOldest(ctx context.Context) (*position.Position, error) {
	members, err := q.client.ZRangeWithScores(ctx, q.key, 0, 0).Result()
	if err != nil {
		return nil, storageError("peek", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	id := int64(members[0].Score)
	member, ok := members[0].Member.(string)
	if !ok {
		return nil, storageError("peek", fmt.Errorf("record %d: unexpected member type %T", id, members[0].Member))
	}
	p, _, err := decodeRecord([]byte(member))
	if err != nil {
		return nil, storageError("peek", fmt.Errorf("record %d: %w", id, err))
	}
	p.ID = id
	return &p, nil
}

func (q *Redis) Delete(ctx context.Context, id int64) error {
	score := strconv.FormatInt(id, 10)
	if err := q.client.ZRemRangeByScore(ctx, q.key, score, score).Err(); err != nil {
		return storageError("delete", err)
	}
	return nil
}

func (q *Redis) Len(ctx context.Context) (int, error) {
	count, err := q.client.ZCard(ctx, q.key).Result()
	if err != nil {
		return 0, storageError("count", err)
	}
	return int(count), nil
}

func (q *Redis) Close() error {
	if !q.ownClient {
		return nil
	}
	return q.client.Close()
}
