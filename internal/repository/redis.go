package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/GoAffiliate/tiergate/internal/config"
	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{Client: rdb}, nil
}

// Implement usage.Store so multiple tiergate instances share admit counters.
func (r *RedisClient) GetDailyUsage(ctx context.Context, affiliateID string) (int, int, error) {
	today := time.Now().UTC().Format("2006-01-02")
	keyClicks := fmt.Sprintf("usage:%s:%s:clicks", affiliateID, today)
	keySales := fmt.Sprintf("usage:%s:%s:sales", affiliateID, today)

	pipe := r.Client.Pipeline()
	clicksCmd := pipe.Get(ctx, keyClicks)
	salesCmd := pipe.Get(ctx, keySales)
	_, err := pipe.Exec(ctx)

	if err != nil && err != redis.Nil {
		return 0, 0, err
	}

	clicks, _ := clicksCmd.Int()
	sales, _ := salesCmd.Int()

	return clicks, sales, nil
}

func (r *RedisClient) AddDailyUsage(ctx context.Context, affiliateID string, clicks, sales int) error {
	today := time.Now().UTC().Format("2006-01-02")
	keyClicks := fmt.Sprintf("usage:%s:%s:clicks", affiliateID, today)
	keySales := fmt.Sprintf("usage:%s:%s:sales", affiliateID, today)

	pipe := r.Client.Pipeline()
	pipe.IncrBy(ctx, keyClicks, int64(clicks))
	pipe.IncrBy(ctx, keySales, int64(sales))

	// Counters only matter for the current program day; 2 days is safe.
	pipe.Expire(ctx, keyClicks, 48*time.Hour)
	pipe.Expire(ctx, keySales, 48*time.Hour)

	_, err := pipe.Exec(ctx)
	return err
}
