package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mallquest/mallquest/internal/config"
	"github.com/mallquest/mallquest/internal/domain"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	return New(context.Background(), config.CacheConfig{LocalCapacity: 10, LocalTTL: time.Minute, RedisEnabled: false}, config.RedisConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCacheDegradesToLRUOnlyWhenRedisDisabled(t *testing.T) {
	c := testCache(t)
	_, _, redisEnabled := c.Stats()
	if redisEnabled {
		t.Fatal("expected redis tier disabled")
	}
}

func TestCacheSetThenGetUser(t *testing.T) {
	c := testCache(t)
	u := domain.User{ID: "user1", TenantID: "tenant1", Coins: 50}

	c.SetUser(context.Background(), u)
	got, ok := c.GetUser(context.Background(), "tenant1", "user1")
	if !ok {
		t.Fatal("expected a cache hit after SetUser")
	}
	if got.Coins != 50 {
		t.Fatalf("got.Coins = %d, want 50", got.Coins)
	}
}

func TestCacheGetUserMissForUnknownUser(t *testing.T) {
	c := testCache(t)
	_, ok := c.GetUser(context.Background(), "tenant1", "nobody")
	if ok {
		t.Fatal("expected a miss for a user never cached")
	}
}

func TestCacheInvalidateUserEvicts(t *testing.T) {
	c := testCache(t)
	u := domain.User{ID: "user1", TenantID: "tenant1"}
	c.SetUser(context.Background(), u)

	c.InvalidateUser(context.Background(), "tenant1", "user1")

	if _, ok := c.GetUser(context.Background(), "tenant1", "user1"); ok {
		t.Fatal("expected the entry to be gone after InvalidateUser")
	}
}

func TestCacheTemplateRoundTrips(t *testing.T) {
	c := testCache(t)
	c.SetTemplate("daily_missions", []string{"a", "b"})

	v, ok := c.GetTemplate("daily_missions")
	if !ok {
		t.Fatal("expected a template cache hit")
	}
	if got, ok := v.([]string); !ok || len(got) != 2 {
		t.Fatalf("unexpected template value: %#v", v)
	}
}

func TestCacheStatsReportsOccupancy(t *testing.T) {
	c := testCache(t)
	c.SetUser(context.Background(), domain.User{ID: "user1", TenantID: "tenant1"})
	c.SetTemplate("tmpl1", 1)

	userEntries, templateEntries, _ := c.Stats()
	if userEntries != 1 || templateEntries != 1 {
		t.Fatalf("Stats() = %d users, %d templates; want 1, 1", userEntries, templateEntries)
	}
}

func TestCacheCloseWithoutRedisIsNoOp(t *testing.T) {
	c := testCache(t)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
