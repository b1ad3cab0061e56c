package kv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisDriver is the durable KV Driver backing arbitrary key-value storage
// across process restarts.
type RedisDriver struct {
	client *redis.Client
	prefix string
}

// NewRedisDriver builds a RedisDriver from a redis:// URL. keyPrefix
// namespaces all keys this process writes, so multiple deployments can
// safely share one Redis instance.
func NewRedisDriver(redisURL, keyPrefix string) (*RedisDriver, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisDriver{client: redis.NewClient(opts), prefix: keyPrefix}, nil
}

type wireEntry struct {
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (d *RedisDriver) redisKey(key string) string {
	return d.prefix + key
}

func (d *RedisDriver) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := d.client.Get(ctx, d.redisKey(key)).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return Entry{}, false, err
	}
	return Entry{Value: w.Value, ExpiresAt: w.ExpiresAt}, true, nil
}

func (d *RedisDriver) Set(ctx context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(wireEntry{Value: entry.Value, ExpiresAt: entry.ExpiresAt})
	if err != nil {
		return err
	}
	var ttl time.Duration
	if entry.ExpiresAt != nil {
		ttl = time.Until(*entry.ExpiresAt)
		if ttl <= 0 {
			return d.client.Del(ctx, d.redisKey(key)).Err()
		}
	}
	return d.client.Set(ctx, d.redisKey(key), raw, ttl).Err()
}

func (d *RedisDriver) Delete(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.redisKey(key)).Err()
}

func (d *RedisDriver) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := d.client.Scan(ctx, 0, d.redisKey(prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(d.prefix):])
	}
	return out, iter.Err()
}

func (d *RedisDriver) ClearPrefix(ctx context.Context, prefix string) error {
	keys, err := d.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = d.redisKey(k)
	}
	return d.client.Del(ctx, full...).Err()
}

func (d *RedisDriver) Close() error {
	return d.client.Close()
}
