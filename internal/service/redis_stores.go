package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/examquest-backend/internal/config"
	"github.com/stemsi/examquest-backend/internal/session"
)

// RedisQueue pushes JSON jobs onto Redis lists consumed by the workers.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue creates a new RedisQueue.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

// Enqueue appends payload to the tail of queue.
func (q *RedisQueue) Enqueue(ctx context.Context, queue string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.rdb.RPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("push %s: %w", queue, err)
	}
	return nil
}

// RedisDrafts stores answer drafts as JSON strings with a TTL.
type RedisDrafts struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisDrafts creates a new RedisDrafts. Drafts outlive the longest exam by ttl.
func NewRedisDrafts(rdb *redis.Client, ttl time.Duration) *RedisDrafts {
	return &RedisDrafts{rdb: rdb, ttl: ttl}
}

func (d *RedisDrafts) Save(ctx context.Context, studentID, examID string, entries []session.Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return d.rdb.Set(ctx, config.CacheKey.AnswerDraftKey(studentID, examID), data, d.ttl).Err()
}

// Load returns nil entries when there is no draft.
func (d *RedisDrafts) Load(ctx context.Context, studentID, examID string) ([]session.Entry, error) {
	data, err := d.rdb.Get(ctx, config.CacheKey.AnswerDraftKey(studentID, examID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []session.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return entries, nil
}

func (d *RedisDrafts) Delete(ctx context.Context, studentID, examID string) error {
	return d.rdb.Del(ctx, config.CacheKey.AnswerDraftKey(studentID, examID)).Err()
}
