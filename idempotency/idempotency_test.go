package idempotency

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testStore(t *testing.T, store Store, key string) {
	ctx := context.Background()

	first := uuid.New()
	got, claimed, err := store.Claim(ctx, key, first, time.Minute)
	if err != nil || !claimed || got != first {
		t.Fatalf("FAIL: Expected a fresh claim, got %s %v %v", got, claimed, err)
	}

	got, claimed, err = store.Claim(ctx, key, uuid.New(), time.Minute)
	if err != nil || claimed || got != first {
		t.Fatalf("FAIL: Expected the first id back, got %s %v %v", got, claimed, err)
	}

	err = store.Release(ctx, key)
	if err != nil {
		t.Fatal(err)
	}

	second := uuid.New()
	got, claimed, err = store.Claim(ctx, key, second, time.Minute)
	if err != nil || !claimed || got != second {
		t.Errorf("FAIL: released key was not claimable, got %s %v %v", got, claimed, err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	testStore(t, store, "order-1")

	// Claims expire
	now := time.Now()
	store.now = func() time.Time { return now }
	first := uuid.New()
	_, _, _ = store.Claim(context.Background(), "short", first, time.Second)
	store.now = func() time.Time { return now.Add(2 * time.Second) }

	second := uuid.New()
	got, claimed, _ := store.Claim(context.Background(), "short", second, time.Second)
	if !claimed || got != second {
		t.Errorf("FAIL: expired claim was not replaced, got %s", got)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		Key string
		OK  bool
	}{
		{"6f1c2a1e-8d7b-4a51", true},
		{"cart:42", true},
		{"", false},
		{"has space", false},
		{"città", false},
		{strings.Repeat("k", MaxKeyLength+1), false},
	}
	for _, test := range tests {
		err := ValidateKey(test.Key)
		if test.OK && err != nil {
			t.Errorf("FAIL: unexpected error for %q: %s", test.Key, err)
		}
		if !test.OK && !errors.Is(err, ErrInvalidKey) {
			t.Errorf("FAIL: Expected ErrInvalidKey for %q got %v", test.Key, err)
		}
	}
}

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("skipping redis tests: REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, redisURL)
	if err != nil {
		t.Skipf("skipping redis tests: %v", err)
	}
	defer client.Close()

	key := "test-" + uuid.NewString()
	defer client.Del(context.Background(), keyPrefix+key)

	testStore(t, NewRedisStore(client), key)
}
