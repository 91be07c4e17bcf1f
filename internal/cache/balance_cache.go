package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
)

// BalanceCache is a read-through cache for the scalar points balance.
// A nil implementation is valid and means caching is disabled.
type BalanceCache interface {
	Get(ctx context.Context, tenantID, customerID snowflake.ID) (int64, bool, error)
	Set(ctx context.Context, tenantID, customerID snowflake.ID, balance int64) error
	Invalidate(ctx context.Context, tenantID, customerID snowflake.ID) error
}

const balanceTTL = 5 * time.Minute

type redisBalanceCache struct {
	client *redis.Client
}

func NewRedisBalanceCache(client *redis.Client) BalanceCache {
	return &redisBalanceCache{client: client}
}

func balanceKey(tenantID, customerID snowflake.ID) string {
	return fmt.Sprintf("points:balance:%s:%s", tenantID.String(), customerID.String())
}

func (c *redisBalanceCache) Get(ctx context.Context, tenantID, customerID snowflake.ID) (int64, bool, error) {
	value, err := c.client.Get(ctx, balanceKey(tenantID, customerID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	balance, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

func (c *redisBalanceCache) Set(ctx context.Context, tenantID, customerID snowflake.ID, balance int64) error {
	return c.client.Set(ctx, balanceKey(tenantID, customerID), strconv.FormatInt(balance, 10), balanceTTL).Err()
}

func (c *redisBalanceCache) Invalidate(ctx context.Context, tenantID, customerID snowflake.ID) error {
	return c.client.Del(ctx, balanceKey(tenantID, customerID)).Err()
}
