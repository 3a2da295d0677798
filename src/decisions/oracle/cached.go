package oracle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const memberCountPrefix = "govdecisions:members:"

type countCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cached keeps member counts in Redis for ttl. Redis errors fall through
// to the wrapped oracle.
type Cached struct {
	next Membership
	rdb  countCache
	ttl  time.Duration
}

func NewCached(next Membership, rdb countCache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl}
}

func (c *Cached) MemberCount(ctx context.Context, channelID string) (int, error) {
	key := memberCountPrefix + channelID
	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			return n, nil
		}
	case !errors.Is(err, redis.Nil):
		log.Printf("oracle: member cache read %s: %v", channelID, err)
	}

	n, err := c.next.MemberCount(ctx, channelID)
	if err != nil {
		return 0, err
	}
	if err := c.rdb.Set(ctx, key, strconv.Itoa(n), c.ttl).Err(); err != nil {
		log.Printf("oracle: member cache write %s: %v", channelID, err)
	}
	return n, nil
}

func (c *Cached) Invalidate(ctx context.Context, channelID string) error {
	if err := c.rdb.Del(ctx, memberCountPrefix+channelID).Err(); err != nil {
		return fmt.Errorf("oracle: invalidate %s: %w", channelID, err)
	}
	return nil
}
