// Package previewcache keeps the latest dedupe preview per team in Redis so
// an operator can review it before applying.
package previewcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"qero/api/internal/dedupe"
)

const defaultTTL = 24 * time.Hour

// allTeams stands in for the empty scope in keys.
const allTeams = "all"

// RedisStore implements dedupe.PreviewCache using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "dedupe:preview:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(teamID string) string {
	if teamID == "" {
		teamID = allTeams
	}
	return s.prefix + teamID
}

// SavePreview replaces the cached preview of the team.
func (s *RedisStore) SavePreview(ctx context.Context, teamID string, preview dedupe.Preview) error {
	jsonData, err := json.Marshal(preview)
	if err != nil {
		return fmt.Errorf("marshal preview: %w", err)
	}
	if err := s.client.Set(ctx, s.key(teamID), jsonData, s.ttl).Err(); err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	return nil
}

// LookupPreview returns the cached preview or an error wrapping
// dedupe.ErrNotFound when there is none.
func (s *RedisStore) LookupPreview(ctx context.Context, teamID string) (dedupe.Preview, error) {
	jsonData, err := s.client.Get(ctx, s.key(teamID)).Bytes()
	if err == redis.Nil {
		return dedupe.Preview{}, fmt.Errorf("lookup preview: %w", dedupe.ErrNotFound)
	}
	if err != nil {
		return dedupe.Preview{}, fmt.Errorf("lookup preview: %w", err)
	}

	var preview dedupe.Preview
	if err := json.Unmarshal(jsonData, &preview); err != nil {
		return dedupe.Preview{}, fmt.Errorf("unmarshal preview: %w", err)
	}
	return preview, nil
}

// Invalidate drops the cached preview of the team.
func (s *RedisStore) Invalidate(ctx context.Context, teamID string) error {
	if err := s.client.Del(ctx, s.key(teamID)).Err(); err != nil {
		return fmt.Errorf("invalidate preview: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
