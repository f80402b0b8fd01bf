// Package idempotency remembers which submission was created for a client
// supplied key, so that a retried request does not create a duplicate.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "buyback:idempotency:"

	MaxKeyLength = 255

	// Expired entries of a MemoryStore are swept once it grows past this
	memorySweepSize = 4096
)

var ErrInvalidKey = errors.New("invalid idempotency key")

type Store interface {
	// Claim associates key to id for ttl. If the key was already claimed
	// the id stored first is returned, with claimed set to false.
	Claim(ctx context.Context, key string, id uuid.UUID, ttl time.Duration) (existing uuid.UUID, claimed bool, err error)

	// Release drops a claim, so the key can be used again
	Release(ctx context.Context, key string) error
}

// ValidateKey rejects empty, oversized or non printable keys.
func ValidateKey(key string) error {
	if key == "" || len(key) > MaxKeyLength {
		return fmt.Errorf("%w: length must be between 1 and %d", ErrInvalidKey, MaxKeyLength)
	}
	for _, r := range key {
		if r < 0x21 || r > 0x7e {
			return fmt.Errorf("%w: unsupported character %q", ErrInvalidKey, r)
		}
	}
	return nil
}

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	err := client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (rs *RedisStore) Claim(ctx context.Context, key string, id uuid.UUID, ttl time.Duration) (uuid.UUID, bool, error) {
	// The claim can expire between the two calls, so try again once
	for i := 0; i < 2; i++ {
		ok, err := rs.client.SetNX(ctx, keyPrefix+key, id.String(), ttl).Result()
		if err != nil {
			return uuid.Nil, false, err
		}
		if ok {
			return id, true, nil
		}

		raw, err := rs.client.Get(ctx, keyPrefix+key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return uuid.Nil, false, err
		}
		existing, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("corrupted idempotency entry %s: %w", key, err)
		}
		return existing, false, nil
	}
	return uuid.Nil, false, fmt.Errorf("could not claim idempotency key %s", key)
}

func (rs *RedisStore) Release(ctx context.Context, key string) error {
	return rs.client.Del(ctx, keyPrefix+key).Err()
}

type memoryEntry struct {
	id      uuid.UUID
	expires time.Time
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

func (ms *MemoryStore) Claim(ctx context.Context, key string, id uuid.UUID, ttl time.Duration) (uuid.UUID, bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	entry, found := ms.entries[key]
	if found && now.Before(entry.expires) {
		return entry.id, false, nil
	}

	if len(ms.entries) >= memorySweepSize {
		for k, e := range ms.entries {
			if !now.Before(e.expires) {
				delete(ms.entries, k)
			}
		}
	}
	ms.entries[key] = memoryEntry{
		id:      id,
		expires: now.Add(ttl),
	}
	return id, true, nil
}

func (ms *MemoryStore) Release(ctx context.Context, key string) error {
	ms.mu.Lock()
	delete(ms.entries, key)
	ms.mu.Unlock()
	return nil
}
