package redis

import (
	"context"
	"errors"
	"time"

	"github.com/JMURv/session-core/internal/cache"
	"github.com/JMURv/session-core/internal/config"
	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

type Cache struct {
	cli *redis.Client
}

func New(conf config.RedisConfig) *Cache {
	cli := redis.NewClient(
		&redis.Options{
			Addr:     conf.Addr,
			Password: conf.Pass,
			DB:       conf.DB,
		},
	)

	if err := cli.Ping(context.Background()).Err(); err != nil {
		zap.L().Warn("failed to ping redis, continuing in degraded mode", zap.Error(err))
	}

	return &Cache{cli: cli}
}

func NewWithClient(cli *redis.Client) *Cache {
	return &Cache{cli: cli}
}

func (c *Cache) Close() error {
	return c.cli.Close()
}

func (c *Cache) GetToStruct(ctx context.Context, key string, dest any) error {
	const op = "cache.GetToStruct.redis"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	val, err := c.cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cache.ErrNotFoundInCache
	} else if err != nil {
		zap.L().Debug("failed to get from cache", zap.String("op", op), zap.String("key", key), zap.Error(err))
		return err
	}

	return json.Unmarshal(val, dest)
}

func (c *Cache) Set(ctx context.Context, t time.Duration, key string, val any) error {
	const op = "cache.Set.redis"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	if err := c.cli.Set(ctx, key, val, t).Err(); err != nil {
		zap.L().Debug("failed to set to cache", zap.String("op", op), zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Generation returns the current value of the generation counter genKey,
// zero when it does not exist.
func (c *Cache) Generation(ctx context.Context, genKey string) (int64, error) {
	const op = "cache.Generation.redis"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	gen, err := c.cli.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetAtGeneration stores val under key only while genKey still holds gen.
// It reports whether the value was written.
func (c *Cache) SetAtGeneration(ctx context.Context, t time.Duration, key, genKey string, gen int64, val any) (bool, error) {
	const op = "cache.SetAtGeneration.redis"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	n, err := setAtGenScript.Run(ctx, c.cli, []string{key, genKey}, gen, val, t.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Invalidate drops key and advances genKey, so writes prepared against an
// older generation are refused.
func (c *Cache) Invalidate(ctx context.Context, key, genKey string) error {
	const op = "cache.Invalidate.redis"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	return invalidateScript.Run(ctx, c.cli, []string{key, genKey}, config.GenerationTime.Milliseconds()).Err()
}

// SetNX stores val only if key is absent and reports whether it did.
func (c *Cache) SetNX(ctx context.Context, t time.Duration, key string, val any) (bool, error) {
	const op = "cache.SetNX.redis"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	return c.cli.SetNX(ctx, key, val, t).Result()
}

func (c *Cache) Delete(ctx context.Context, key string) {
	const op = "cache.Delete.redis"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	if err := c.cli.Del(ctx, key).Err(); err != nil {
		zap.L().Debug("failed to delete from cache", zap.String("op", op), zap.String("key", key), zap.Error(err))
	}
}

// Take consumes one hit of a fixed window of size limit. ok is false once the
// window is spent; the counter is not incremented in that case.
func (c *Cache) Take(ctx context.Context, key string, limit int64, window time.Duration) (int64, bool, error) {
	n, err := takeScript.Run(ctx, c.cli, []string{key}, limit, window.Milliseconds()).Int64()
	if err != nil {
		return 0, false, err
	}
	if n < 0 {
		return limit, false, nil
	}
	return n, true, nil
}

// Acquire takes a slot of a counter bounded by limit. ttl bounds how long a
// slot outlives a crashed holder.
func (c *Cache) Acquire(ctx context.Context, key string, limit int64, ttl time.Duration) (bool, error) {
	n, err := acquireScript.Run(ctx, c.cli, []string{key}, limit, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Cache) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, c.cli, []string{key}).Err()
}
