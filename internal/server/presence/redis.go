package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "presence:"

// RedisStore shares presence across server instances. Each identity is a
// key holding the unix time of its last heartbeat; staleness is enforced by
// key expiry.
type RedisStore struct {
	client     *redis.Client
	staleAfter time.Duration
}

// NewRedisClient returns a connected client, verifying it with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisStore wraps client. staleAfter of zero stores keys without expiry.
func NewRedisStore(client *redis.Client, staleAfter time.Duration) *RedisStore {
	return &RedisStore{client: client, staleAfter: staleAfter}
}

// MarkOnline sets the identity's key to now.
func (r *RedisStore) MarkOnline(ctx context.Context, identity string) error {
	if identity == "" {
		return nil
	}
	now := time.Now().UTC().Unix()
	if err := r.client.Set(ctx, redisKeyPrefix+identity, now, r.staleAfter).Err(); err != nil {
		return fmt.Errorf("failed to mark %s online: %w", identity, err)
	}
	return nil
}

// MarkOffline deletes the identity's key.
func (r *RedisStore) MarkOffline(ctx context.Context, identity string) error {
	if identity == "" {
		return nil
	}
	if err := r.client.Del(ctx, redisKeyPrefix+identity).Err(); err != nil {
		return fmt.Errorf("failed to mark %s offline: %w", identity, err)
	}
	return nil
}

// Active scans all presence keys. Keys that expire mid-scan are skipped.
func (r *RedisStore) Active(ctx context.Context) ([]Entry, error) {
	var out []Entry
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		unix, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Identity: strings.TrimPrefix(key, redisKeyPrefix),
			LastSeen: time.Unix(unix, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan presence keys: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}
