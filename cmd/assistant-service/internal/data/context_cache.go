package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatassistant/cmd/assistant-service/internal/biz"
	"chatassistant/cmd/assistant-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	// 子线程缓存键前缀
	subThreadCachePrefix = "subthread:"

	// 前驱链写入后不可变，可以用较长的 TTL
	subThreadCacheTTL = 24 * time.Hour
)

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient 创建Redis客户端
func NewRedisClient(config *RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// SubThreadCache 子线程重建结果的Redis缓存，按锚点消息ID索引
type SubThreadCache struct {
	redis *redis.Client
}

// NewSubThreadCache 创建子线程缓存
func NewSubThreadCache(client *redis.Client) biz.SubThreadCache {
	return &SubThreadCache{
		redis: client,
	}
}

// Get 命中返回消息列表，未命中返回 (nil, nil)
func (c *SubThreadCache) Get(ctx context.Context, anchorID string) ([]*domain.Message, error) {
	data, err := c.redis.Get(ctx, subThreadCachePrefix+anchorID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var messages []*domain.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("unmarshal cached chain: %w", err)
	}
	return messages, nil
}

// Set 写入缓存
func (c *SubThreadCache) Set(ctx context.Context, anchorID string, messages []*domain.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal chain: %w", err)
	}
	if err := c.redis.Set(ctx, subThreadCachePrefix+anchorID, data, subThreadCacheTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
