package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sbb/models"

	"github.com/redis/go-redis/v9"
)

// QuestionCache holds fully loaded questions, answers included. Get returns
// (nil, nil) on a miss.
//
// Every entry has a version. A reader takes the version before loading from
// the database and passes it to Set, which stores nothing once Invalidate
// has moved the version on.
type QuestionCache interface {
	Get(ctx context.Context, id uint) (*models.Question, error)
	Version(ctx context.Context, id uint) (int64, error)
	Set(ctx context.Context, question *models.Question, version int64) error
	Invalidate(ctx context.Context, id uint) error
}

const (
	DefaultCacheTTL = 10 * time.Minute

	// versionTTL outlives any in-flight read of a question.
	versionTTL = 24 * time.Hour
)

// KEYS: entry, version. ARGV: expected version, payload, ttl in ms.
var setIfCurrent = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// KEYS: entry, version. ARGV: version ttl in ms.
var bumpAndDelete = redis.NewScript(`
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`)

type RedisQuestionCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ QuestionCache = (*RedisQuestionCache)(nil)

func NewRedisQuestionCache(client *redis.Client, ttl time.Duration) *RedisQuestionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisQuestionCache{client: client, ttl: ttl}
}

func (c *RedisQuestionCache) Get(ctx context.Context, id uint) (*models.Question, error) {
	data, err := c.client.Get(ctx, questionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached question %d: %w", id, err)
	}

	var question models.Question
	if err := json.Unmarshal(data, &question); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached question %d: %w", id, err)
	}
	return &question, nil
}

// Version returns 0 for a question that was never invalidated.
func (c *RedisQuestionCache) Version(ctx context.Context, id uint) (int64, error) {
	version, err := c.client.Get(ctx, versionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache version of question %d: %w", id, err)
	}
	return version, nil
}

// Set stores question only while its version is still version.
func (c *RedisQuestionCache) Set(ctx context.Context, question *models.Question, version int64) error {
	data, err := json.Marshal(question)
	if err != nil {
		return fmt.Errorf("failed to marshal question %d: %w", question.ID, err)
	}

	keys := []string{questionKey(question.ID), versionKey(question.ID)}
	if err := setIfCurrent.Run(ctx, c.client, keys, version, data, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to cache question %d: %w", question.ID, err)
	}
	return nil
}

// Invalidate drops the entry and moves the version on in one step.
func (c *RedisQuestionCache) Invalidate(ctx context.Context, id uint) error {
	keys := []string{questionKey(id), versionKey(id)}
	if err := bumpAndDelete.Run(ctx, c.client, keys, versionTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached question %d: %w", id, err)
	}
	return nil
}

func questionKey(id uint) string {
	return fmt.Sprintf("question:%d", id)
}

func versionKey(id uint) string {
	return fmt.Sprintf("question:%d:version", id)
}
