package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// errCacheMiss key 不存在
var errCacheMiss = errors.New("cache miss")

// RedisCache 结果缓存使用的 Redis 连接。
// 每条结果一个 key，另有一个集合索引记录数据集下有哪些结果。
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 与 asynq 共用 REDIS_ADDR，启动时探活一次
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// putIndexed 在一个事务里写入 value 并把 member 加入索引，ttl 同时作用于两者
func (c *RedisCache) putIndexed(ctx context.Context, key, index, member string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, data, ttl)
		p.SAdd(ctx, index, member)
		if ttl > 0 {
			p.Expire(ctx, index, ttl)
		}
		return nil
	})
	return err
}

func (c *RedisCache) get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return errCacheMiss
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// liveMembers 索引成员中对应 key 仍存在的部分。索引可能比结果活得久。
func (c *RedisCache) liveMembers(ctx context.Context, index string, keyOf func(member string) string) ([]string, error) {
	members, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", index, err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.IntCmd, len(members))
	_, err = c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, m := range members {
			cmds[i] = p.Exists(ctx, keyOf(m))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check index %s: %w", index, err)
	}
	live := members[:0]
	for i, m := range members {
		if cmds[i].Val() > 0 {
			live = append(live, m)
		}
	}
	return live, nil
}

// dropIndexed 删除索引及其全部成员对应的 key，返回成员数
func (c *RedisCache) dropIndexed(ctx context.Context, index string, keyOf func(member string) string) (int, error) {
	members, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return 0, fmt.Errorf("read index %s: %w", index, err)
	}
	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, keyOf(m))
	}
	keys = append(keys, index)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("delete index %s: %w", index, err)
	}
	return len(members), nil
}

// CacheKey analysis:<prefix>:<part>...
func CacheKey(prefix string, parts ...string) string {
	return strings.Join(append([]string{"analysis", prefix}, parts...), ":")
}
