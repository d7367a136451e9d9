package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "recgo:exports:"

// Redis keeps the last keep entries per member in a capped list.
type Redis struct {
	client *redis.Client
	keep   int
	ttl    time.Duration
}

// NewRedis wraps client. keep <= 0 keeps 50 entries; ttl <= 0 never expires.
func NewRedis(client *redis.Client, keep int, ttl time.Duration) *Redis {
	if keep <= 0 {
		keep = 50
	}
	return &Redis{client: client, keep: keep, ttl: ttl}
}

func redisKey(memberCode string) string { return redisKeyPrefix + memberCode }

func (r *Redis) Record(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := redisKey(e.MemberCode)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(r.keep-1))
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) Recent(ctx context.Context, memberCode string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > r.keep {
		limit = r.keep
	}
	raw, err := r.client.LRange(ctx, redisKey(memberCode), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Redis) Close() error { return r.client.Close() }
