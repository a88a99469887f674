package redis

import (
	"context"
	"fmt"
	"time"

	"tsu-loot/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

// Config Redis 配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Client Redis 客户端封装
type Client struct {
	*redis.Client
	service string
}

// NewClient 创建 Redis 客户端
func NewClient(cfg Config, service string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	if service == "" {
		service = metrics.GetServiceName()
	}

	return &Client{
		Client:  rdb,
		service: service,
	}, nil
}

// GetMany 批量读取，返回存在的键及其值
func (c *Client) GetMany(ctx context.Context, keys ...string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	start := time.Now()
	values, err := c.MGet(ctx, keys...).Result()
	c.record("MGET", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(keys))
	for i, v := range values {
		// 不存在的键为 nil
		switch s := v.(type) {
		case string:
			out[keys[i]] = []byte(s)
		case []byte:
			out[keys[i]] = s
		}
	}
	return out, nil
}

// SetMany 通过 pipeline 批量写入，ttl 为 0 表示不过期
func (c *Client) SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}

	start := time.Now()
	_, err := c.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, k, v, ttl)
		}
		return nil
	})
	c.record("PIPELINE_SET", err, time.Since(start))
	return err
}

// Healthy 检查连接是否可用
func (c *Client) Healthy(ctx context.Context) bool {
	start := time.Now()
	err := c.Ping(ctx).Err()
	c.record("PING", err, time.Since(start))
	return err == nil
}

// record 记录 Redis 操作指标
func (c *Client) record(op string, err error, duration time.Duration) {
	metrics.DefaultResourceMetrics.RecordRedisOperation(op, err == nil, duration, c.service)
	if err != nil && err != redis.Nil {
		metrics.DefaultResourceMetrics.RecordRedisError("operation_error", c.service)
	}
}
