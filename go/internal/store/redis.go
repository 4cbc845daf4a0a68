package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds connection settings for the shared store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisBackend implements Backend on a Redis server.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend connects and pings the server.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis")
	return &RedisBackend{rdb: rdb}, nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

// Ping checks the server is reachable.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}

func (r *RedisBackend) SPopN(ctx context.Context, key string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := r.rdb.SPopN(ctx, key, n).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return members, err
}

func (r *RedisBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.rdb.SMembers(ctx, key).Result()
}

func (r *RedisBackend) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	return r.rdb.SAdd(ctx, key, toAny(members)...).Result()
}

func (r *RedisBackend) RenameNX(ctx context.Context, src, dst string) (bool, error) {
	moved, err := r.rdb.RenameNX(ctx, src, dst).Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return false, nil
		}
		return false, err
	}
	return moved, nil
}

func (r *RedisBackend) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := r.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.rdb.HGetAll(ctx, key).Result()
}

func (r *RedisBackend) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	return r.rdb.HSetNX(ctx, key, field, value).Result()
}

func (r *RedisBackend) Incr(ctx context.Context, key string) (int64, error) {
	return r.rdb.Incr(ctx, key).Result()
}

func (r *RedisBackend) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.rdb.LRange(ctx, key, start, stop).Result()
}

func (r *RedisBackend) LLen(ctx context.Context, key string) (int64, error) {
	return r.rdb.LLen(ctx, key).Result()
}

func (r *RedisBackend) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// Exec runs the batch inside MULTI/EXEC.
func (r *RedisBackend) Exec(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, o := range b.ops {
			switch o.kind {
			case opSAdd:
				pipe.SAdd(ctx, o.key, toAny(o.members)...)
			case opSRem:
				pipe.SRem(ctx, o.key, toAny(o.members)...)
			case opDel:
				pipe.Del(ctx, o.key)
			case opHSet:
				values := make(map[string]interface{}, len(o.fields))
				for k, v := range o.fields {
					values[k] = v
				}
				pipe.HSet(ctx, o.key, values)
			case opHDel:
				pipe.HDel(ctx, o.key, o.members...)
			case opHIncrBy:
				pipe.HIncrBy(ctx, o.key, o.members[0], o.delta)
			case opRPushTrim:
				pipe.RPush(ctx, o.key, o.members[0])
				if o.keep > 0 {
					pipe.LTrim(ctx, o.key, -o.keep, -1)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("exec batch: %w", err)
	}
	return nil
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
