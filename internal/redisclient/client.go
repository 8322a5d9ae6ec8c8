package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/adjust_exposure.lua
var adjustExposureScript string

//go:embed scripts/init_exposure.lua
var initExposureScript string

// exposureTTL bounds staleness of seeded entries; refreshed on seed.
const exposureTTL = 24 * time.Hour

type Client struct {
	rdb          *redis.Client
	adjustScript *redis.Script
	initScript   *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:          rdb,
		adjustScript: redis.NewScript(adjustExposureScript),
		initScript:   redis.NewScript(initExposureScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func exposureKey(organizationID string) string {
	return fmt.Sprintf("exposure:%s", organizationID)
}

// GetExposure reads the cached exposure for an organization. The second
// return reports whether the value was cached at all.
func (c *Client) GetExposure(ctx context.Context, organizationID string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, exposureKey(organizationID)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("exposure read failed: %w", err)
	}
	return val, true, nil
}

// AdjustExposure atomically moves the cached exposure by delta. Keys that
// were never seeded are left absent.
func (c *Client) AdjustExposure(ctx context.Context, organizationID string, delta int64) error {
	key := exposureKey(organizationID)

	result, err := c.adjustScript.Run(ctx, c.rdb, []string{key}, delta).Result()
	if err != nil {
		return fmt.Errorf("adjust exposure script failed: %w", err)
	}

	if _, ok := result.(int64); !ok {
		return fmt.Errorf("unexpected script result type")
	}

	return nil
}

// InitExposure seeds the cached exposure from the database value.
func (c *Client) InitExposure(ctx context.Context, organizationID string, exposure int64) error {
	key := exposureKey(organizationID)

	_, err := c.initScript.Run(ctx, c.rdb, []string{key}, exposure, int(exposureTTL.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("init exposure script failed: %w", err)
	}

	return nil
}
