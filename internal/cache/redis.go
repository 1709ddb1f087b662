// Package cache 提供 Redis 缓存操作的封装
// 目前只缓存会话行，减少聊天热路径上的会话查询
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-chat-server/internal/config"
	"ai-chat-server/internal/model"
)

// 会话缓存的过期时间
// 会话标题会被自动摘要改写，所以不宜缓存太久
const sessionTTL = 30 * time.Minute

// RedisCache 封装 Redis 客户端，提供业务相关的缓存操作
type RedisCache struct {
	client *redis.Client // Redis 客户端实例
}

// NewRedisCache 创建 RedisCache 实例
// 参数:
//   - cfg: 应用配置（包含 Redis 连接信息）
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username, // 阿里云 Redis 需要用户名
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// ==================== 会话缓存 ====================

func sessionKey(id string) string {
	return fmt.Sprintf("chat:session:%s", id)
}

// CacheSession 缓存会话行
// 参数:
//   - ctx: 上下文
//   - session: 会话对象（会被 JSON 序列化）
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) CacheSession(ctx context.Context, session *model.ChatSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(session.ID), data, sessionTTL).Err()
}

// GetSession 读取缓存的会话
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - *model.ChatSession: 会话对象，未命中返回 nil
//   - error: Redis 操作错误
func (c *RedisCache) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	data, err := c.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil // 缓存未命中
	}
	if err != nil {
		return nil, err
	}
	var session model.ChatSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// InvalidateSession 失效会话缓存
// 标题更新或会话删除时调用
// 参数:
//   - ctx: 上下文
//   - id: 会话ID
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) InvalidateSession(ctx context.Context, id string) error {
	return c.client.Del(ctx, sessionKey(id)).Err()
}

// Ping 检查 Redis 连接
// 参数:
//   - ctx: 上下文
//
// 返回:
//   - error: 如果连接失败返回错误
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
