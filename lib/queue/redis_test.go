// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// testRedisClient connects to the server in BEACON_TEST_REDIS_ADDR or
// skips the test.
func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	address := os.Getenv("BEACON_TEST_REDIS_ADDR")
	if address == "" {
		t.Skip("BEACON_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: address})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Fatalf("redis at %s: %v", address, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testRedisKey(t *testing.T, client *redis.Client) string {
	key := fmt.Sprintf("beacon-test:%s:%d", t.Name(), time.Now().UnixNano())
	t.Cleanup(func() { client.Del(context.Background(), key, key+":seq") })
	return key
}

func TestRedisContract(t *testing.T) {
	client := testRedisClient(t)
	q := NewRedis(client, testRedisKey(t, client), nil)
	defer q.Close()
	runQueueContract(t, q)
}

func TestRedisSequenceSurvivesNewHandle(t *testing.T) {
	ctx := context.Background()
	client := testRedisClient(t)
	key := testRedisKey(t, client)

	first := NewRedis(client, key, nil)
	id, err := first.Insert(ctx, samplePosition("dev", 0))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := first.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	second := NewRedis(client, key, nil)
	next, err := second.Insert(ctx, samplePosition("dev", 1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if next <= id {
		t.Fatalf("id = %d, want > %d", next, id)
	}
}

func TestRedisCloseLeavesBorrowedClientOpen(t *testing.T) {
	client := testRedisClient(t)
	q := NewRedis(client, testRedisKey(t, client), nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("client unusable after queue Close: %v", err)
	}
}

func TestOpenRedisBadURL(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{URL: "not a url"}); err == nil {
		t.Fatal("OpenRedis accepted an invalid URL")
	}
}
