package empire

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mallquest/mallquest/internal/apperr"
	"github.com/mallquest/mallquest/internal/domain"
)

// Store is the persistence surface the empire coordinator depends on.
type Store interface {
	LoadUser(ctx context.Context, tenantID, userID string) (domain.User, error)
	ApplyUserDelta(ctx context.Context, delta domain.UserDelta, responseBlob json.RawMessage) (domain.CommitResult, error)
	ListFacilities(ctx context.Context, tenantID, userID string) ([]domain.Facility, error)
	GetFacility(ctx context.Context, tenantID, userID, facilityType string) (domain.Facility, error)
}

const lockWait = 500 * time.Millisecond

// Coordinator serializes purchase/upgrade/collect/event operations per user,
// the same keyed-mutex discipline progression.Coordinator uses for receipts.
type Coordinator struct {
	store     Store
	userLocks sync.Map // (tenant,user) -> *sync.Mutex
}

// New wires an empire coordinator against the shared Store.
func New(store Store) *Coordinator {
	return &Coordinator{store: store}
}

func (c *Coordinator) withUserLock(tenantID, userID string, fn func() error) error {
	key := tenantID + ":" + userID
	lockAny, _ := c.userLocks.LoadOrStore(key, &sync.Mutex{})
	mu := lockAny.(*sync.Mutex)

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		defer mu.Unlock()
		return fn()
	case <-time.After(lockWait):
		return domain.ErrBusy
	}
}

// PurchaseResult mirrors purchase_facility's response shape.
type PurchaseResult struct {
	Facility       domain.Facility
	Cost           int64
	RemainingCoins int64
}

// PurchaseFacility buys a new facility of facilityType for the user, gated
// on level and coin unlock requirements plus the facility's base cost.
func (c *Coordinator) PurchaseFacility(ctx context.Context, tenantID, userID, facilityType string) (*PurchaseResult, error) {
	entry, ok := facilityCatalog[facilityType]
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "invalid_facility_type", "unknown facility type")
	}

	var result *PurchaseResult
	err := c.withUserLock(tenantID, userID, func() error {
		user, err := c.store.LoadUser(ctx, tenantID, userID)
		if err != nil {
			return apperr.Wrap(err)
		}

		if _, err := c.store.GetFacility(ctx, tenantID, userID, facilityType); err == nil {
			return apperr.New(apperr.KindConflict, "facility_already_owned", "facility already purchased")
		} else if !domain.IsNotFoundError(err) {
			return apperr.Wrap(err)
		}

		if user.Level < entry.Unlock.Level {
			return apperr.New(apperr.KindValidation, "level_too_low", fmt.Sprintf("level %d required to unlock %s", entry.Unlock.Level, entry.Name))
		}
		if user.Coins < entry.Unlock.Coins {
			return apperr.New(apperr.KindValidation, "unlock_coins_required", fmt.Sprintf("%d coins required to unlock %s", entry.Unlock.Coins, entry.Name))
		}
		if user.Coins < entry.BaseCost {
			return apperr.New(apperr.KindValidation, "insufficient_coins", fmt.Sprintf("need %d coins for %s", entry.BaseCost, entry.Name))
		}

		now := time.Now()
		facility := domain.Facility{
			ID: facilityID(userID, facilityType, now), UserID: userID, Type: facilityType,
			Level: 1, LastCollectedAt: now, EventMultiplier: 1.0,
		}

		delta := domain.UserDelta{
			TenantID: tenantID, UserID: userID, ExpectedVersion: user.Version,
			CoinsDelta: -entry.BaseCost, FacilityUpsert: &facility,
		}
		res, err := c.store.ApplyUserDelta(ctx, delta, nil)
		if err != nil {
			return apperr.Wrap(err)
		}

		result = &PurchaseResult{Facility: facility, Cost: entry.BaseCost, RemainingCoins: res.User.Coins}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return result, nil
}

// UpgradeResult mirrors upgrade_facility's response shape.
type UpgradeResult struct {
	Facility       domain.Facility
	Cost           int64
	OldLevel       int
	RemainingCoins int64
}

// UpgradeFacility raises a facility's level by one, paying the type's
// UpgradeCost for the new level. Only the level changes; hourly income
// follows from the type's linear per-level income, and facilities carry no
// happiness attribute.
func (c *Coordinator) UpgradeFacility(ctx context.Context, tenantID, userID, facilityType string) (*UpgradeResult, error) {
	entry, ok := facilityCatalog[facilityType]
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "invalid_facility_type", "unknown facility type")
	}

	var result *UpgradeResult
	err := c.withUserLock(tenantID, userID, func() error {
		user, err := c.store.LoadUser(ctx, tenantID, userID)
		if err != nil {
			return apperr.Wrap(err)
		}

		facility, err := c.store.GetFacility(ctx, tenantID, userID, facilityType)
		if err != nil {
			return apperr.Wrap(err)
		}
		if facility.Level >= entry.MaxLevel {
			return apperr.New(apperr.KindValidation, "max_level_reached", "facility is already at maximum level")
		}

		cost := entry.UpgradeCost(facility.Level + 1)
		if user.Coins < cost {
			return apperr.New(apperr.KindValidation, "insufficient_coins", fmt.Sprintf("need %d coins for upgrade", cost))
		}

		oldLevel := facility.Level
		facility.Level++
		delta := domain.UserDelta{
			TenantID: tenantID, UserID: userID, ExpectedVersion: user.Version,
			CoinsDelta: -cost, FacilityUpsert: &facility,
		}
		res, err := c.store.ApplyUserDelta(ctx, delta, nil)
		if err != nil {
			return apperr.Wrap(err)
		}

		result = &UpgradeResult{Facility: facility, Cost: cost, OldLevel: oldLevel, RemainingCoins: res.User.Coins}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return result, nil
}

// CollectResult mirrors collect_income's response shape.
type CollectResult struct {
	TotalIncome     int64
	FacilityIncomes map[string]int64
	HoursPassed     float64
	RemainingCoins  int64
}

// CollectIncome pays out accrued income across every facility the user
// owns, gated to once per hour per facility per the original's rule.
func (c *Coordinator) CollectIncome(ctx context.Context, tenantID, userID string) (*CollectResult, error) {
	var result *CollectResult
	err := c.withUserLock(tenantID, userID, func() error {
		user, err := c.store.LoadUser(ctx, tenantID, userID)
		if err != nil {
			return apperr.Wrap(err)
		}

		facilities, err := c.store.ListFacilities(ctx, tenantID, userID)
		if err != nil {
			return apperr.Wrap(err)
		}
		if len(facilities) == 0 {
			return apperr.New(apperr.KindValidation, "no_facilities", "no facilities to collect income from")
		}

		bonus := incomeMultiplierFor(len(facilities))
		now := time.Now()
		var total int64
		incomes := map[string]int64{}
		var collected []domain.Facility
		var maxHours float64

		for _, f := range facilities {
			hoursPassed := now.Sub(f.LastCollectedAt).Hours()
			if hoursPassed < 1 {
				continue
			}
			if hoursPassed > maxHours {
				maxHours = hoursPassed
			}
			mult := bonus
			if f.EventMultiplier > 1 && now.Before(f.EventUntil) {
				mult *= f.EventMultiplier
			}
			entry := facilityCatalog[f.Type]
			income := int64(float64(entry.IncomePerHour(f.Level)) * hoursPassed * mult)
			incomes[f.ID] = income
			total += income

			f.LastCollectedAt = now
			f.PendingIncome = 0
			collected = append(collected, f)
		}

		if len(collected) == 0 {
			return apperr.New(apperr.KindValidation, "nothing_to_collect", "income can only be collected once per hour")
		}

		// Each facility upsert is its own shard transaction; the first one
		// credits the full total and every later one carries a zero coin
		// delta, re-reading the version the prior commit advanced to.
		version := user.Version
		var remainingCoins int64
		for i, f := range collected {
			coinsDelta := int64(0)
			if i == 0 {
				coinsDelta = total
			}
			delta := domain.UserDelta{
				TenantID: tenantID, UserID: userID, ExpectedVersion: version,
				CoinsDelta: coinsDelta, FacilityUpsert: &f,
			}
			res, err := c.store.ApplyUserDelta(ctx, delta, nil)
			if err != nil {
				return apperr.Wrap(err)
			}
			version = res.User.Version
			remainingCoins = res.User.Coins
		}

		result = &CollectResult{TotalIncome: total, FacilityIncomes: incomes, HoursPassed: maxHours, RemainingCoins: remainingCoins}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return result, nil
}

// EventResult mirrors start_special_event's response shape.
type EventResult struct {
	Facility       domain.Facility
	EventName      string
	Cost           int64
	RemainingCoins int64
	EndsAt         time.Time
}

// StartSpecialEvent triggers a time-limited income multiplier at one
// facility, paid for out of pocket.
func (c *Coordinator) StartSpecialEvent(ctx context.Context, tenantID, userID, facilityType, eventType string) (*EventResult, error) {
	entry, ok := facilityCatalog[facilityType]
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "invalid_facility_type", "unknown facility type")
	}
	if !contains(entry.SpecialEvents, eventType) {
		return nil, apperr.New(apperr.KindValidation, "invalid_event_type", "facility does not support this event")
	}
	event, ok := specialEventCatalog[eventType]
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "invalid_event_type", "unknown event type")
	}

	var result *EventResult
	err := c.withUserLock(tenantID, userID, func() error {
		user, err := c.store.LoadUser(ctx, tenantID, userID)
		if err != nil {
			return apperr.Wrap(err)
		}
		facility, err := c.store.GetFacility(ctx, tenantID, userID, facilityType)
		if err != nil {
			return apperr.Wrap(err)
		}
		if user.Coins < event.Cost {
			return apperr.New(apperr.KindValidation, "insufficient_coins", fmt.Sprintf("need %d coins for this event", event.Cost))
		}

		now := time.Now()
		facility.EventMultiplier = event.IncomeMultiplier
		facility.EventUntil = now.Add(time.Duration(event.DurationHours) * time.Hour)

		delta := domain.UserDelta{
			TenantID: tenantID, UserID: userID, ExpectedVersion: user.Version,
			CoinsDelta: -event.Cost, FacilityUpsert: &facility,
		}
		res, err := c.store.ApplyUserDelta(ctx, delta, nil)
		if err != nil {
			return apperr.Wrap(err)
		}

		result = &EventResult{Facility: facility, EventName: event.Name, Cost: event.Cost, RemainingCoins: res.User.Coins, EndsAt: facility.EventUntil}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return result, nil
}

func facilityID(userID, facilityType string, now time.Time) string {
	return fmt.Sprintf("facility_%s_%s_%d", userID, facilityType, now.Unix())
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
