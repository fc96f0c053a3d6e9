package orphans

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "kycvault:storage:orphans"

// RedisRegistry keeps orphans in one hash keyed by object path so every
// replica's sweeper sees the same queue.
type RedisRegistry struct {
	client redis.Cmdable
	key    string
}

func NewRedis(client redis.Cmdable, key string) *RedisRegistry {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisRegistry{client: client, key: key}
}

func (r *RedisRegistry) Record(ctx context.Context, orphan Orphan) error {
	existing, err := r.client.HGet(ctx, r.key, orphan.Path).Result()
	if err == nil {
		var prev Orphan
		if json.Unmarshal([]byte(existing), &prev) == nil && !prev.RecordedAt.IsZero() {
			orphan.RecordedAt = prev.RecordedAt
		}
	} else if err != redis.Nil {
		return fmt.Errorf("read orphan: %w", err)
	}
	b, err := json.Marshal(orphan)
	if err != nil {
		return fmt.Errorf("encode orphan: %w", err)
	}
	if err := r.client.HSet(ctx, r.key, orphan.Path, b).Err(); err != nil {
		return fmt.Errorf("record orphan: %w", err)
	}
	return nil
}

func (r *RedisRegistry) List(ctx context.Context, limit int) ([]Orphan, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	out := make([]Orphan, 0, len(all))
	for path, raw := range all {
		var o Orphan
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			o = Orphan{Path: path, Reason: "undecodable entry"}
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RedisRegistry) Remove(ctx context.Context, path string) error {
	if err := r.client.HDel(ctx, r.key, path).Err(); err != nil {
		return fmt.Errorf("remove orphan: %w", err)
	}
	return nil
}

var _ Registry = (*RedisRegistry)(nil)
