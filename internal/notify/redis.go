package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/canectors/itemstore/internal/config"
)

// RedisPublisher PUBLISHes each event on a channel and keeps the latest
// snapshot plus per-status counters under a key prefix.
type RedisPublisher struct {
	rdb *redis.Client

	channel string
	prefix  string
	// ttl applies to the latest snapshot key only; counters never expire
	ttl time.Duration
}

// RedisOption configures a RedisPublisher.
type RedisOption func(*RedisPublisher)

// WithChannel sets the PUBLISH channel.
func WithChannel(channel string) RedisOption {
	return func(p *RedisPublisher) {
		if channel = strings.TrimSpace(channel); channel != "" {
			p.channel = channel
		}
	}
}

// WithKeyPrefix sets the prefix for the snapshot and counter keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(p *RedisPublisher) { p.prefix = strings.Trim(prefix, ":") }
}

// WithSnapshotTTL sets the expiry of the latest snapshot key (0 = none).
func WithSnapshotTTL(d time.Duration) RedisOption {
	return func(p *RedisPublisher) { p.ttl = d }
}

// NewRedisPublisher creates a publisher on an existing client.
func NewRedisPublisher(rdb *redis.Client, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{
		rdb:     rdb,
		channel: config.DefaultRedisChannel,
		prefix:  "itemstore",
		ttl:     24 * time.Hour,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DialRedis creates a client for addr and checks it with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Channel returns the PUBLISH channel.
func (p *RedisPublisher) Channel() string { return p.channel }

// SnapshotKey returns the key holding the latest snapshot of store.
func (p *RedisPublisher) SnapshotKey(store string) string {
	return p.prefix + ":" + store + ":latest"
}

// CountersKey returns the hash counting transitions of store by status.
func (p *RedisPublisher) CountersKey(store string) string {
	return p.prefix + ":" + store + ":transitions"
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.rdb == nil {
		return nil
	}

	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, p.channel, payload)
	pipe.HIncrBy(ctx, p.CountersKey(ev.Store), string(ev.Status), 1)
	if !ev.State.Loading {
		pipe.Set(ctx, p.SnapshotKey(ev.Store), payload, p.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing to redis channel %s: %w", p.channel, err)
	}
	return nil
}

// Close closes the underlying client.
func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
