package infra

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opencmp/cmp-orchestrator/config"
)

type RedisClient struct {
	Client *redis.Client
}

func InitRedisClient(cfg *config.EnvConfig) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}

	log.Println("Connected to Redis:", cfg.Redis.Host+":"+cfg.Redis.Port)

	return &RedisClient{Client: client}
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errors.New("key not found in cache")
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	return r.Client.Del(ctx, keys...).Err()
}

const leaseKeyPrefix = "cmp:reconcile:lease:"

// AcquireLease takes the per-project reconcile lease. Exactly one holder per
// project at a time; the TTL bounds how long a crashed run can block the
// next one. Returns false when another run holds the lease.
func (r *RedisClient) AcquireLease(ctx context.Context, projectID, holder string, ttl time.Duration) (bool, error) {
	return r.Client.SetNX(ctx, leaseKeyPrefix+projectID, holder, ttl).Result()
}

// ReleaseLease frees the lease only when it is still owned by holder, so a
// run that outlived its TTL cannot release its successor's lease.
func (r *RedisClient) ReleaseLease(ctx context.Context, projectID, holder string) error {
	key := leaseKeyPrefix + projectID
	current, err := r.Client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if current != holder {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}
