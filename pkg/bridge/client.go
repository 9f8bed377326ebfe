// Package bridge exposes the scenario engine and catalog to an external
// operator console over Redis, the same external-collaborator role the
// teacher gave Redis for its vehicle system, and mirrors telemetry
// snapshots out for that console to observe (spec §4.3 [EXPANSION]).
package bridge

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is a thin wrapper over go-redis, adapted directly from the
// teacher's pkg/redis.Client: same hash write/publish/BRPOP shape, with
// the scooter-state string-to-int translation table the teacher carried
// (GetStateInt) dropped since nothing in this domain stores state as a
// battery/vehicle-state string.
type Client struct {
	rdb *redis.Client
	ctx context.Context
}

// New connects to a Redis instance at addr, verifying reachability with a
// PING before returning, exactly as the teacher's pkg/redis.New does.
func New(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bridge: failed to connect to redis: %w", err)
	}
	return &Client{rdb: rdb, ctx: ctx}, nil
}

// WriteAndPublishString writes a hash field and publishes its change on
// the hash key's channel in one pipeline, per the teacher's
// WriteAndPublishString.
func (c *Client) WriteAndPublishString(key, field, value string) error {
	pipe := c.rdb.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, fmt.Sprintf("%s:%s", field, value))
	_, err := pipe.Exec(c.ctx)
	if err != nil {
		return fmt.Errorf("bridge: write-and-publish %s.%s: %w", key, field, err)
	}
	return nil
}

// WriteAndPublishInt is WriteAndPublishString's integer-valued sibling,
// used for the per-tick telemetry mirror fields.
func (c *Client) WriteAndPublishInt(key, field string, value int64) error {
	pipe := c.rdb.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, fmt.Sprintf("%s:%d", field, value))
	_, err := pipe.Exec(c.ctx)
	if err != nil {
		return fmt.Errorf("bridge: write-and-publish %s.%s: %w", key, field, err)
	}
	return nil
}

// GetString reads a single hash field.
func (c *Client) GetString(key, field string) (string, error) {
	val, err := c.rdb.HGet(c.ctx, key, field).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("bridge: %s.%s not found", key, field)
	}
	return val, err
}

// BRPop performs a blocking right-pop on key, timing out after timeout
// (0 blocks indefinitely). A timeout is reported as (nil, nil), matching
// the teacher's BRPop so a polling watcher can distinguish "nothing yet"
// from a real error.
func (c *Client) BRPop(timeout time.Duration, key string) ([]string, error) {
	result, err := c.rdb.BRPop(c.ctx, timeout, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		log.Printf("bridge: BRPOP on %s: %v", key, err)
		return nil, err
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("bridge: unexpected BRPOP result %v", result)
	}
	return result, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
