package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/mythicmate/internal/domain"
)

// LeaderboardCache stores computed leaderboards per server.
type LeaderboardCache interface {
	Get(ctx context.Context, serverID string, category domain.LeaderboardCategory, timeframe domain.Timeframe) ([]domain.LeaderboardEntry, bool, error)
	Set(ctx context.Context, serverID string, category domain.LeaderboardCategory, timeframe domain.Timeframe, entries []domain.LeaderboardEntry, ttl time.Duration) error
	Invalidate(ctx context.Context, serverID string) error
}

type redisLeaderboardCache struct {
	client *redis.Client
}

// NewRedisLeaderboardCache returns a cache backed by client. A nil client
// yields a cache that never hits.
func NewRedisLeaderboardCache(client *redis.Client) LeaderboardCache {
	if client == nil {
		return noopLeaderboardCache{}
	}
	return &redisLeaderboardCache{client: client}
}

type cachedEntry struct {
	UserID string `json:"user_id"`
	Value  int64  `json:"value"`
}

func (c *redisLeaderboardCache) Get(ctx context.Context, serverID string, category domain.LeaderboardCategory, timeframe domain.Timeframe) ([]domain.LeaderboardEntry, bool, error) {
	raw, err := c.client.Get(ctx, leaderboardKey(serverID, category, timeframe)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cached []cachedEntry
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, err
	}
	entries := make([]domain.LeaderboardEntry, 0, len(cached))
	for _, e := range cached {
		entries = append(entries, domain.LeaderboardEntry{UserID: domain.Identity(e.UserID), Value: e.Value})
	}
	return entries, true, nil
}

func (c *redisLeaderboardCache) Set(ctx context.Context, serverID string, category domain.LeaderboardCategory, timeframe domain.Timeframe, entries []domain.LeaderboardEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cached := make([]cachedEntry, 0, len(entries))
	for _, e := range entries {
		cached = append(cached, cachedEntry{UserID: string(e.UserID), Value: e.Value})
	}
	raw, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, leaderboardKey(serverID, category, timeframe), raw, ttl).Err()
}

func (c *redisLeaderboardCache) Invalidate(ctx context.Context, serverID string) error {
	iter := c.client.Scan(ctx, 0, leaderboardPrefix(serverID)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func leaderboardPrefix(serverID string) string {
	return fmt.Sprintf("mythicmate:leaderboard:%s:", serverID)
}

func leaderboardKey(serverID string, category domain.LeaderboardCategory, timeframe domain.Timeframe) string {
	return leaderboardPrefix(serverID) + string(category) + ":" + string(timeframe)
}

type noopLeaderboardCache struct{}

func (noopLeaderboardCache) Get(context.Context, string, domain.LeaderboardCategory, domain.Timeframe) ([]domain.LeaderboardEntry, bool, error) {
	return nil, false, nil
}

func (noopLeaderboardCache) Set(context.Context, string, domain.LeaderboardCategory, domain.Timeframe, []domain.LeaderboardEntry, time.Duration) error {
	return nil
}

func (noopLeaderboardCache) Invalidate(context.Context, string) error { return nil }
