// Package redis provides a journal.Journal backed by Redis Streams, one
// stream per realm, so several router processes can share an audit log.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggoodman/wamp-router-go/journal"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for the Redis journal. Defaults can be loaded via envdecode.
type Config struct {
	// Addr like "localhost:6379". ENV: REDIS_ADDR
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: JOURNAL_KEY_PREFIX
	KeyPrefix string `env:"JOURNAL_KEY_PREFIX,default=wamp:journal:"`
	// MaxLen approximately caps each realm's stream; zero keeps everything.
	// ENV: JOURNAL_MAX_LEN
	MaxLen int64 `env:"JOURNAL_MAX_LEN,default=0"`
	// Client overrides Addr when set.
	Client redis.UniversalClient
}

// Journal is a Redis Streams implementation of journal.Journal.
type Journal struct {
	client    redis.UniversalClient
	keyPrefix string
	maxLen    int64
}

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Journal, error) {
	client := cfg.Client
	if client == nil {
		addr := cfg.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "wamp:journal:"
	}
	return &Journal{client: client, keyPrefix: prefix, maxLen: cfg.MaxLen}, nil
}

// NewFromEnv builds a Journal using envdecode to populate Config.
func NewFromEnv() (*Journal, error) {
	var cfg Config
	// Defaults come from the struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client.
func (j *Journal) Close() error { return j.client.Close() }

// Append implements journal.Journal.
func (j *Journal) Append(ctx context.Context, realm string, data []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: j.streamKey(realm),
		Values: map[string]any{"d": data},
	}
	if j.maxLen > 0 {
		args.MaxLen = j.maxLen
		args.Approx = true
	}
	id, err := j.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", args.Stream, err)
	}
	return id, nil
}

// Read implements journal.Journal.
func (j *Journal) Read(ctx context.Context, realm string, afterID string, handler journal.Handler) error {
	key := j.streamKey(realm)
	start := afterID
	if start == "" {
		start = "$"
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := j.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, start},
			Count:   100,
			// Bounded so cancellation is noticed between reads.
			Block: time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isInvalidID(err) {
				return fmt.Errorf("%w: %q", journal.ErrInvalidID, afterID)
			}
			return fmt.Errorf("read %s: %w", key, err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				start = msg.ID
				data, ok := msg.Values["d"].(string)
				if !ok {
					continue
				}
				if err := handler(ctx, journal.Entry{ID: msg.ID, Data: []byte(data)}); err != nil {
					return err
				}
			}
		}
	}
}

// Cleanup implements journal.Journal.
func (j *Journal) Cleanup(ctx context.Context, realm string) error {
	if err := j.client.Del(ctx, j.streamKey(realm)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cleanup realm %s: %w", realm, err)
	}
	return nil
}

func (j *Journal) streamKey(realm string) string { return j.keyPrefix + "stream:" + realm }

func isInvalidID(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && strings.Contains(rerr.Error(), "Invalid stream ID")
}

var _ journal.Journal = (*Journal)(nil)
