// Package cache keeps computed leaderboards in Redis so repeated reads skip
// the users x winners join.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"contest-platform/internal/models"
)

const leaderboardKey = "contest:leaderboard"

// Leaderboard is a best-effort cache; a miss or an error means recompute.
type Leaderboard interface {
	Get(ctx context.Context) ([]models.LeaderboardEntry, bool)
	Set(ctx context.Context, entries []models.LeaderboardEntry)
	Invalidate(ctx context.Context)
}

type RedisLeaderboard struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedis(addr, password string, db int, ttl time.Duration, logger zerolog.Logger) (*RedisLeaderboard, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("addr", addr).Msg("Connected to Redis")
	return &RedisLeaderboard{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "leaderboard-cache").Logger(),
	}, nil
}

func (c *RedisLeaderboard) Close() error {
	return c.rdb.Close()
}

func (c *RedisLeaderboard) Get(ctx context.Context) ([]models.LeaderboardEntry, bool) {
	raw, err := c.rdb.Get(ctx, leaderboardKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("Leaderboard cache read failed")
		}
		return nil, false
	}

	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.logger.Warn().Err(err).Msg("Discarding malformed leaderboard cache entry")
		return nil, false
	}
	return entries, true
}

func (c *RedisLeaderboard) Set(ctx context.Context, entries []models.LeaderboardEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, leaderboardKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Leaderboard cache write failed")
	}
}

func (c *RedisLeaderboard) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, leaderboardKey).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Leaderboard cache invalidation failed")
	}
}
