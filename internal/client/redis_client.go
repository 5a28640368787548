package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trendz-app/auth-service/internal/config"
	"github.com/trendz-app/auth-service/internal/util"
)

// RedisClient wraps the go-redis client used by the OTP, session, and
// rate-limit stores
type RedisClient struct {
	Client *redis.Client
	config *config.RedisConfig
}

func NewRedisClient(cfg *config.Config, logger *zap.Logger) (*RedisClient, error) {
	redisConfig := cfg.Redis

	opts, err := redis.ParseURL(redisConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if opts.Password == "" && redisConfig.Password != "" {
		opts.Password = redisConfig.Password
	}

	opts.DB = redisConfig.DB
	opts.PoolSize = redisConfig.PoolSize
	opts.MinIdleConns = redisConfig.PoolSize / 2
	if opts.MinIdleConns < 10 {
		opts.MinIdleConns = 10
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	if strings.HasPrefix(redisConfig.URL, "rediss://") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	util.Info("Redis client initialized",
		zap.String("url", redisConfig.URL),
		zap.Int("db", redisConfig.DB),
		zap.Int("pool_size", redisConfig.PoolSize))

	return &RedisClient{
		Client: client,
		config: &redisConfig,
	}, nil
}

func (r *RedisClient) Close() error {
	if r.Client != nil {
		if err := r.Client.Close(); err != nil {
			util.Error("failed to close Redis client", zap.Error(err))
			return err
		}
		util.Info("Redis client closed")
	}
	return nil
}

// HealthCheck verifies Redis connectivity with a round-trip write
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	testKey := "healthcheck"
	testValue := fmt.Sprintf("%d", time.Now().Unix())
	if err := r.Client.Set(ctx, testKey, testValue, 10*time.Second).Err(); err != nil {
		return fmt.Errorf("redis set operation failed: %w", err)
	}

	val, err := r.Client.Get(ctx, testKey).Result()
	if err != nil {
		return fmt.Errorf("redis get operation failed: %w", err)
	}
	if val != testValue {
		return fmt.Errorf("redis data integrity failed")
	}

	_ = r.Client.Del(ctx, testKey)
	return nil
}

// ===================== CORE OPERATIONS =====================

var ErrKeyNotFound = fmt.Errorf("key not found")

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.Client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := r.Client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrKeyNotFound
		}
		return "", err
	}
	return val, nil
}

func (r *RedisClient) Del(ctx context.Context, keys ...string) (int64, error) {
	return r.Client.Del(ctx, keys...).Result()
}

func (r *RedisClient) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return r.Client.Expire(ctx, key, expiration).Err()
}

func (r *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.Client.TTL(ctx, key).Result()
}

func (r *RedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return r.Client.SetNX(ctx, key, value, expiration).Result()
}

// IncrWithExpire atomically increments a counter and refreshes its window
func (r *RedisClient) IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	pipe := r.Client.TxPipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiration)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incrCmd.Val(), nil
}

// ===================== PIPELINES & SCRIPTS =====================

func (r *RedisClient) Pipeline() redis.Pipeliner {
	return r.Client.Pipeline()
}

func (r *RedisClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return r.Client.Eval(ctx, script, keys, args...).Result()
}

// ===================== SET OPERATIONS =====================

func (r *RedisClient) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return r.Client.SAdd(ctx, key, members...).Err()
}

func (r *RedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.Client.SMembers(ctx, key).Result()
}

func (r *RedisClient) SRem(ctx context.Context, key string, members ...interface{}) error {
	return r.Client.SRem(ctx, key, members...).Err()
}
