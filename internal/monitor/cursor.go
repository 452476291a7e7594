package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Cursor 保存已处理的最后一个区块
type Cursor interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, block uint64) error
}

// RedisCursor 存在 Redis 中的游标, 多副本共享
type RedisCursor struct {
	client *redis.Client
	key    string
}

// NewRedisCursor 按合约地址区分游标
func NewRedisCursor(client *redis.Client, contractAddress string) *RedisCursor {
	return &RedisCursor{client: client, key: "fundchain:monitor:cursor:" + contractAddress}
}

func (c *RedisCursor) Load(ctx context.Context) (uint64, bool, error) {
	block, err := c.client.Get(ctx, c.key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load cursor %s: %w", c.key, err)
	}
	return block, true, nil
}

func (c *RedisCursor) Save(ctx context.Context, block uint64) error {
	if err := c.client.Set(ctx, c.key, block, 0).Err(); err != nil {
		return fmt.Errorf("failed to save cursor %s: %w", c.key, err)
	}
	return nil
}
