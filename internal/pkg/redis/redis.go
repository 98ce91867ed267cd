package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"fleet-rollout/internal/pkg/config"
)

var Client *goredis.Client

// Init 初始化Redis连接
func Init(cfg *config.RedisConfig) error {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return fmt.Errorf("解析Redis地址失败: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = config.ParseDuration(cfg.DialTimeout, 5*time.Second)

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("Redis连接测试失败: %w", err)
	}

	Client = client
	return nil
}

// Close 关闭Redis连接
func Close() error {
	if Client != nil {
		return Client.Close()
	}
	return nil
}

// GetClient 获取Redis客户端
func GetClient() *goredis.Client {
	return Client
}
