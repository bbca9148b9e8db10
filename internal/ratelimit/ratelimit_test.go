package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mallquest/mallquest/internal/config"
)

type fakeStore struct {
	counts     map[string]int64
	forceError int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: make(map[string]int64)}
}

func (f *fakeStore) RateLimitIncr(ctx context.Context, tenantID, subject, action string, windowStart time.Time, delta int64) (int64, error) {
	if atomic.LoadInt32(&f.forceError) != 0 {
		return 0, errors.New("store unavailable")
	}
	key := subject + "|" + action
	f.counts[key] += delta
	return f.counts[key], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		FlushInterval: time.Hour, // timer flush only on a bucket's first request (lastFlush starts zero)
		FlushMaxCount: 1000,      // never flush on count unless forced
		Actions: map[string]config.ActionLimit{
			"claim_mission":  {Window: time.Minute, Max: 3, FailOpen: true},
			"submit_receipt": {Window: time.Minute, Max: 3, FailOpen: false},
		},
	}
}

func TestAllowUnderLimit(t *testing.T) {
	l := New(newFakeStore(), testConfig(), testLogger())

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(context.Background(), "tenant1", "user1", "claim_mission")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed under the cap of 3", i+1)
		}
	}
}

func TestAllowRejectsOverLimit(t *testing.T) {
	l := New(newFakeStore(), testConfig(), testLogger())

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(context.Background(), "tenant1", "user1", "claim_mission"); !ok {
			t.Fatalf("request %d unexpectedly rejected", i+1)
		}
	}

	ok, err := l.Allow(context.Background(), "tenant1", "user1", "claim_mission")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("4th request should exceed the cap of 3 and be rejected")
	}
}

func TestAllowUnknownActionUsesSafeDefault(t *testing.T) {
	l := New(newFakeStore(), testConfig(), testLogger())

	ok, err := l.Allow(context.Background(), "tenant1", "user1", "unregistered_action")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !ok {
		t.Fatal("unregistered action should fall back to the safe default window and allow the first request")
	}
}

func TestAllowBucketsArePerSubjectAndAction(t *testing.T) {
	cfg := testConfig()
	l := New(newFakeStore(), cfg, testLogger())

	for i := 0; i < 3; i++ {
		l.Allow(context.Background(), "tenant1", "userA", "claim_mission")
	}
	// A different subject must have its own independent bucket.
	ok, err := l.Allow(context.Background(), "tenant1", "userB", "claim_mission")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !ok {
		t.Fatal("a different subject should not be throttled by userA's bucket")
	}
}

func TestFailClosedRejectsAfterGracePeriodWhenStoreDown(t *testing.T) {
	store := newFakeStore()
	cfg := config.RateLimitConfig{
		FlushInterval: 0, // flush on every call
		FlushMaxCount: 1,
		Actions: map[string]config.ActionLimit{
			"submit_receipt": {Window: time.Minute, Max: 100, FailOpen: false},
		},
	}
	l := New(store, cfg, testLogger())
	atomic.StoreInt32(&store.forceError, 1)
	l.unhealthySince = time.Now().Add(-gracePeriod - time.Second)
	l.storeHealthy = false

	ok, err := l.Allow(context.Background(), "tenant1", "user1", "submit_receipt")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("fail-closed action should reject once the grace period has elapsed and the store is down")
	}
}

func TestFailOpenAllowsAfterGracePeriodWhenStoreDown(t *testing.T) {
	store := newFakeStore()
	cfg := config.RateLimitConfig{
		FlushInterval: 0,
		FlushMaxCount: 1,
		Actions: map[string]config.ActionLimit{
			"claim_mission": {Window: time.Minute, Max: 100, FailOpen: true},
		},
	}
	l := New(store, cfg, testLogger())
	atomic.StoreInt32(&store.forceError, 1)
	l.unhealthySince = time.Now().Add(-gracePeriod - time.Second)
	l.storeHealthy = false

	ok, err := l.Allow(context.Background(), "tenant1", "user1", "claim_mission")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !ok {
		t.Fatal("fail-open action should still allow requests under the local count when the store is down")
	}
}
