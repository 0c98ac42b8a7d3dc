package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultPoolSize keeps the connection pool small; the store is shared by
// the pipeline and the background loops.
const defaultPoolSize = 5

// NewClient connects to the key-value store at the given URL
// (redis://host:port/db) and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid store URL: %w", err)
	}
	opts.PoolSize = defaultPoolSize

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach store: %w", err)
	}
	return client, nil
}

// RedisDedup implements DedupStore on a Redis-compatible store. The
// SET NX round-trip is the cross-process ordering primitive for the
// whole pipeline.
type RedisDedup struct {
	rdb *redis.Client
}

// NewRedisDedup creates a dedup store backed by the given client.
func NewRedisDedup(rdb *redis.Client) *RedisDedup {
	return &RedisDedup{rdb: rdb}
}

func (d *RedisDedup) TestAndSet(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupPrefix+fingerprint, "1", minTTL(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup test-and-set failed: %w", err)
	}
	return ok, nil
}

func (d *RedisDedup) Clear(ctx context.Context, fingerprint string) error {
	if err := d.rdb.Del(ctx, dedupPrefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("dedup clear failed: %w", err)
	}
	return nil
}

func (d *RedisDedup) SetTTL(ctx context.Context, fingerprint string, ttl time.Duration) error {
	if err := d.rdb.Set(ctx, dedupPrefix+fingerprint, "1", minTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("dedup set-ttl failed: %w", err)
	}
	return nil
}

// RedisIncidents implements IncidentStore on a Redis-compatible store.
// Records are JSON values under alert:<alertId>:<resource>.
type RedisIncidents struct {
	rdb *redis.Client
}

// NewRedisIncidents creates an incident store backed by the given client.
func NewRedisIncidents(rdb *redis.Client) *RedisIncidents {
	return &RedisIncidents{rdb: rdb}
}

func (s *RedisIncidents) Get(ctx context.Context, key string) (*IncidentRecord, error) {
	data, err := s.rdb.Get(ctx, incidentPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("incident get failed: %w", err)
	}

	var rec IncidentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("incident record corrupt: %w", err)
	}
	return &rec, nil
}

func (s *RedisIncidents) Put(ctx context.Context, rec *IncidentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("incident record encode failed: %w", err)
	}
	if err := s.rdb.Set(ctx, incidentPrefix+rec.Key(), data, RecordTTL).Err(); err != nil {
		return fmt.Errorf("incident put failed: %w", err)
	}
	return nil
}

func (s *RedisIncidents) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, incidentPrefix+key).Err(); err != nil {
		return fmt.Errorf("incident delete failed: %w", err)
	}
	return nil
}

// Keys walks the keyspace with SCAN so the sweep never blocks the store.
func (s *RedisIncidents) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, incidentPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("incident scan failed: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, incidentPrefix))
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
