package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "govdecisions.events"

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream appends events to a Redis stream.
type RedisStream struct {
	rdb    streamAdder
	stream string
	maxLen int64
}

// NewRedisStream appends to stream, trimming it to roughly maxLen entries
// when maxLen > 0.
func NewRedisStream(rdb streamAdder, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (r *RedisStream) Emit(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis stream: marshal: %w", err)
	}
	meta := e.Meta()
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"id":         meta.ID,
			"type":       string(meta.Type),
			"digest":     meta.Digest,
			"emitted_at": meta.EmittedAt.Format(time.RFC3339Nano),
			"payload":    string(payload),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis stream: xadd: %w", err)
	}
	return nil
}
