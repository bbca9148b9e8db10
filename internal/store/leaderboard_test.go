package store

import (
	"testing"

	"github.com/mallquest/mallquest/internal/domain"
)

func TestRankAndTruncateOrdersByScoreDescending(t *testing.T) {
	entries := []domain.LeaderboardEntry{
		{UserID: "a", Score: 50},
		{UserID: "b", Score: 200},
		{UserID: "c", Score: 120},
	}

	got := rankAndTruncate(entries, 10)

	want := []string{"b", "c", "a"}
	for i, userID := range want {
		if got[i].UserID != userID {
			t.Fatalf("position %d: got %s, want %s", i, got[i].UserID, userID)
		}
		if got[i].Rank != i+1 {
			t.Fatalf("position %d: got rank %d, want %d", i, got[i].Rank, i+1)
		}
	}
}

func TestRankAndTruncateLimitsResults(t *testing.T) {
	entries := []domain.LeaderboardEntry{
		{UserID: "a", Score: 10},
		{UserID: "b", Score: 30},
		{UserID: "c", Score: 20},
	}

	got := rankAndTruncate(entries, 2)

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].UserID != "b" || got[1].UserID != "c" {
		t.Fatalf("unexpected truncated order: %+v", got)
	}
}

func TestRankAndTruncateHandlesFewerThanLimit(t *testing.T) {
	entries := []domain.LeaderboardEntry{{UserID: "only", Score: 5}}

	got := rankAndTruncate(entries, 50)

	if len(got) != 1 || got[0].Rank != 1 {
		t.Fatalf("expected single ranked entry, got %+v", got)
	}
}

func TestRankAndTruncateEmpty(t *testing.T) {
	got := rankAndTruncate(nil, 10)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}
