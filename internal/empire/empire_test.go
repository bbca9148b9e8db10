package empire

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mallquest/mallquest/internal/domain"
)

type fakeStore struct {
	users      map[string]domain.User
	facilities map[string]map[string]domain.Facility // userID -> type -> facility
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[string]domain.User),
		facilities: make(map[string]map[string]domain.Facility),
	}
}

func (f *fakeStore) LoadUser(ctx context.Context, tenantID, userID string) (domain.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) ApplyUserDelta(ctx context.Context, delta domain.UserDelta, responseBlob json.RawMessage) (domain.CommitResult, error) {
	u, ok := f.users[delta.UserID]
	if !ok {
		return domain.CommitResult{}, domain.ErrUserNotFound
	}
	if delta.ExpectedVersion != u.Version {
		return domain.CommitResult{}, domain.ErrVersionConflict
	}
	u.Coins += delta.CoinsDelta
	u.Version++
	f.users[delta.UserID] = u

	if delta.FacilityUpsert != nil {
		if f.facilities[delta.UserID] == nil {
			f.facilities[delta.UserID] = map[string]domain.Facility{}
		}
		f.facilities[delta.UserID][delta.FacilityUpsert.Type] = *delta.FacilityUpsert
	}

	return domain.CommitResult{User: u}, nil
}

func (f *fakeStore) ListFacilities(ctx context.Context, tenantID, userID string) ([]domain.Facility, error) {
	var out []domain.Facility
	for _, fac := range f.facilities[userID] {
		out = append(out, fac)
	}
	return out, nil
}

func (f *fakeStore) GetFacility(ctx context.Context, tenantID, userID, facilityType string) (domain.Facility, error) {
	fac, ok := f.facilities[userID][facilityType]
	if !ok {
		return domain.Facility{}, domain.ErrFacilityNotFound
	}
	return fac, nil
}

func seedUser(f *fakeStore, userID string, level int, coins int64) domain.User {
	u := domain.User{ID: userID, Level: level, Coins: coins}
	f.users[userID] = u
	return u
}

func TestPurchaseFacilitySucceedsWhenUnlocked(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "user1", 5, 1000)
	c := New(fs)

	result, err := c.PurchaseFacility(context.Background(), "tenant1", "user1", "food_court")
	if err != nil {
		t.Fatalf("PurchaseFacility: %v", err)
	}
	if result.Cost != 1000 {
		t.Fatalf("expected cost 1000, got %d", result.Cost)
	}
	if result.RemainingCoins != 0 {
		t.Fatalf("expected 0 coins remaining, got %d", result.RemainingCoins)
	}
	if fs.facilities["user1"]["food_court"].Level != 1 {
		t.Fatal("expected the new facility at level 1")
	}
}

func TestPurchaseFacilityRejectsBelowLevel(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "user1", 1, 10000)
	c := New(fs)

	_, err := c.PurchaseFacility(context.Background(), "tenant1", "user1", "food_court")
	if err == nil {
		t.Fatal("expected a level-gate error")
	}
}

func TestPurchaseFacilityRejectsInsufficientCoins(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "user1", 5, 10)
	c := New(fs)

	_, err := c.PurchaseFacility(context.Background(), "tenant1", "user1", "food_court")
	if err == nil {
		t.Fatal("expected an insufficient-coins error")
	}
}

func TestPurchaseFacilityRejectsAlreadyOwned(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "user1", 5, 5000)
	c := New(fs)

	if _, err := c.PurchaseFacility(context.Background(), "tenant1", "user1", "food_court"); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	if _, err := c.PurchaseFacility(context.Background(), "tenant1", "user1", "food_court"); err == nil {
		t.Fatal("expected the second purchase of the same type to be rejected")
	}
}

func TestUpgradeFacilityRaisesLevelAndChargesCost(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "user1", 5, 5000)
	c := New(fs)
	if _, err := c.PurchaseFacility(context.Background(), "tenant1", "user1", "food_court"); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	result, err := c.UpgradeFacility(context.Background(), "tenant1", "user1", "food_court")
	if err != nil {
		t.Fatalf("UpgradeFacility: %v", err)
	}
	if result.OldLevel != 1 || result.Facility.Level != 2 {
		t.Fatalf("expected level 1 -> 2, got %d -> %d", result.OldLevel, result.Facility.Level)
	}
}

func TestUpgradeFacilityRejectsAtMaxLevel(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "user1", 18, 1_000_000)
	fs.facilities["user1"] = map[string]domain.Facility{
		"cinema": {Type: "cinema", Level: facilityCatalog["cinema"].MaxLevel},
	}
	c := New(fs)

	_, err := c.UpgradeFacility(context.Background(), "tenant1", "user1", "cinema")
	if err == nil {
		t.Fatal("expected a max-level error")
	}
}

func TestCollectIncomeSkipsFacilitiesUnderAnHour(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "user1", 5, 1000)
	fs.facilities["user1"] = map[string]domain.Facility{
		"food_court": {Type: "food_court", Level: 1, LastCollectedAt: time.Now().Add(-30 * time.Minute)},
	}
	c := New(fs)

	_, err := c.CollectIncome(context.Background(), "tenant1", "user1")
	if err == nil {
		t.Fatal("expected nothing-to-collect since the facility was collected under an hour ago")
	}
}

func TestCollectIncomePaysOutAccruedIncome(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "user1", 5, 0)
	fs.facilities["user1"] = map[string]domain.Facility{
		"food_court": {Type: "food_court", Level: 1, LastCollectedAt: time.Now().Add(-2 * time.Hour), EventMultiplier: 1.0},
	}
	c := New(fs)

	result, err := c.CollectIncome(context.Background(), "tenant1", "user1")
	if err != nil {
		t.Fatalf("CollectIncome: %v", err)
	}
	if result.TotalIncome <= 0 {
		t.Fatalf("expected positive income, got %d", result.TotalIncome)
	}
	if result.RemainingCoins != result.TotalIncome {
		t.Fatalf("expected all accrued income credited, got coins=%d income=%d", result.RemainingCoins, result.TotalIncome)
	}
}

func TestStartSpecialEventRejectsUnsupportedEvent(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "user1", 5, 5000)
	fs.facilities["user1"] = map[string]domain.Facility{"food_court": {Type: "food_court", Level: 1}}
	c := New(fs)

	_, err := c.StartSpecialEvent(context.Background(), "tenant1", "user1", "food_court", "movie_premiere")
	if err == nil {
		t.Fatal("expected rejection for an event type the facility doesn't support")
	}
}

func TestStartSpecialEventChargesCostAndSetsMultiplier(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "user1", 5, 5000)
	fs.facilities["user1"] = map[string]domain.Facility{"food_court": {Type: "food_court", Level: 1}}
	c := New(fs)

	result, err := c.StartSpecialEvent(context.Background(), "tenant1", "user1", "food_court", "food_festival")
	if err != nil {
		t.Fatalf("StartSpecialEvent: %v", err)
	}
	if result.Cost != 500 {
		t.Fatalf("expected cost 500, got %d", result.Cost)
	}
	if result.Facility.EventMultiplier != 2.0 {
		t.Fatalf("expected event multiplier 2.0, got %v", result.Facility.EventMultiplier)
	}
}
