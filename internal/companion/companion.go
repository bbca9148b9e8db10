package companion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mallquest/mallquest/internal/apperr"
	"github.com/mallquest/mallquest/internal/domain"
)

// Store is the persistence surface the companion coordinator depends on.
type Store interface {
	LoadUser(ctx context.Context, tenantID, userID string) (domain.User, error)
	ApplyUserDelta(ctx context.Context, delta domain.UserDelta, responseBlob json.RawMessage) (domain.CommitResult, error)
	ListCompanions(ctx context.Context, tenantID, userID string) ([]domain.Companion, error)
	GetCompanion(ctx context.Context, tenantID, userID, companionID string) (domain.Companion, error)
}

const lockWait = 500 * time.Millisecond

// Coordinator serializes adopt/feed/level-up/ability operations per user.
type Coordinator struct {
	store     Store
	userLocks sync.Map // (tenant,user) -> *sync.Mutex
}

// New wires a companion coordinator against the shared Store.
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

// Adopt creates a new companion for the user. A user may hold at most one
// companion at a time, matching get_companion/create_companion's single-slot
// behavior in the source system.
func (c *Coordinator) Adopt(ctx context.Context, tenantID, userID, companionType, name string) (*domain.Companion, error) {
	entry, ok := companionCatalog[companionType]
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "invalid_companion_type", "unknown companion type")
	}

	var result *domain.Companion
	err := c.withUserLock(tenantID, userID, func() error {
		existing, err := c.store.ListCompanions(ctx, tenantID, userID)
		if err != nil {
			return apperr.Wrap(err)
		}
		if len(existing) > 0 {
			return apperr.New(apperr.KindConflict, "companion_already_owned", "a companion is already adopted")
		}

		user, err := c.store.LoadUser(ctx, tenantID, userID)
		if err != nil {
			return apperr.Wrap(err)
		}

		if name == "" {
			name = entry.Name
		}
		companion := domain.Companion{
			ID: uuid.NewString(), UserID: userID, Type: companionType, Name: name,
			Stats:             domain.CompanionStats{Health: 100, Happiness: 100, Energy: 100, XP: 0, Level: 1},
			LastInteractionAt: time.Now(),
		}

		delta := domain.UserDelta{
			TenantID: tenantID, UserID: userID, ExpectedVersion: user.Version,
			CompanionUpsert: &companion,
		}
		if _, err := c.store.ApplyUserDelta(ctx, delta, nil); err != nil {
			return apperr.Wrap(err)
		}

		result = &companion
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return result, nil
}

// FeedResult mirrors feed_companion's response shape.
type FeedResult struct {
	Companion      domain.Companion
	FeedingEffects feedingEffect
	LeveledUp      bool
	NewLevel       int
	GrowthStage    string
}

// Feed raises a companion's happiness/energy/health per the chosen food
// type, rolling any earned level-ups into the same commit.
func (c *Coordinator) Feed(ctx context.Context, tenantID, userID, companionID, foodType string) (*FeedResult, error) {
	effect, ok := feedingCatalog[foodType]
	if !ok {
		effect = feedingCatalog["regular"]
	}

	var result *FeedResult
	err := c.withUserLock(tenantID, userID, func() error {
		user, err := c.store.LoadUser(ctx, tenantID, userID)
		if err != nil {
			return apperr.Wrap(err)
		}
		comp, err := c.store.GetCompanion(ctx, tenantID, userID, companionID)
		if err != nil {
			return apperr.Wrap(err)
		}

		comp.Stats.Happiness += effect.Happiness
		comp.Stats.Energy += effect.Energy
		comp.Stats.Health += effect.Health
		comp.Stats.Clamp()
		comp.LastInteractionAt = time.Now()

		leveledUp, newLevel := applyLevelUps(&comp)

		delta := domain.UserDelta{
			TenantID: tenantID, UserID: userID, ExpectedVersion: user.Version,
			CompanionUpsert: &comp,
		}
		if _, err := c.store.ApplyUserDelta(ctx, delta, nil); err != nil {
			return apperr.Wrap(err)
		}

		result = &FeedResult{Companion: comp, FeedingEffects: effect, LeveledUp: leveledUp, NewLevel: newLevel, GrowthStage: growthStage(comp.Stats.Level)}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return result, nil
}

// applyLevelUps repeatedly levels a companion up while its accumulated XP
// clears the next threshold, unlocking one additional ability per level up
// to the catalog's ability count, mirroring companion_level_up's growth
// loop without the original's single-step cap.
func applyLevelUps(comp *domain.Companion) (leveledUp bool, newLevel int) {
	entry, ok := companionCatalog[comp.Type]
	if !ok {
		return false, comp.Stats.Level
	}
	for comp.Stats.Level < entry.MaxLevel {
		needed := xpForLevel(comp.Stats.Level)
		if comp.Stats.XP < needed {
			break
		}
		comp.Stats.XP -= needed
		comp.Stats.Level++
		leveledUp = true
		if comp.Stats.Level-1 < len(entry.Abilities) && !comp.HasAbility(entry.Abilities[comp.Stats.Level-1]) {
			comp.AbilitiesUnlocked = append(comp.AbilitiesUnlocked, entry.Abilities[comp.Stats.Level-1])
		}
	}
	return leveledUp, comp.Stats.Level
}

// AddXP credits a companion with XP from an activity, boosted by its
// current happiness/energy average, and rolls in any level-ups.
func (c *Coordinator) AddXP(ctx context.Context, tenantID, userID, companionID string, amount int) (*FeedResult, error) {
	var result *FeedResult
	err := c.withUserLock(tenantID, userID, func() error {
		user, err := c.store.LoadUser(ctx, tenantID, userID)
		if err != nil {
			return apperr.Wrap(err)
		}
		comp, err := c.store.GetCompanion(ctx, tenantID, userID, companionID)
		if err != nil {
			return apperr.Wrap(err)
		}

		bonus := (float64(comp.Stats.Happiness) + float64(comp.Stats.Energy)) / 200.0
		finalXP := int(float64(amount) * (1 + bonus))
		comp.Stats.XP += finalXP
		comp.LastInteractionAt = time.Now()

		leveledUp, newLevel := applyLevelUps(&comp)

		delta := domain.UserDelta{
			TenantID: tenantID, UserID: userID, ExpectedVersion: user.Version,
			CompanionUpsert: &comp,
		}
		if _, err := c.store.ApplyUserDelta(ctx, delta, nil); err != nil {
			return apperr.Wrap(err)
		}

		result = &FeedResult{Companion: comp, LeveledUp: leveledUp, NewLevel: newLevel, GrowthStage: growthStage(comp.Stats.Level)}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return result, nil
}

// AbilityResult mirrors use_companion_ability's response shape.
type AbilityResult struct {
	Companion   domain.Companion
	Ability     string
	XPGained    int
	EnergyCost  int
	GrowthStage string
}

// UseAbility spends a companion's energy to trigger an unlocked ability,
// granting the ability's XP/happiness reward scaled by level.
func (c *Coordinator) UseAbility(ctx context.Context, tenantID, userID, companionID, ability string) (*AbilityResult, error) {
	var result *AbilityResult
	err := c.withUserLock(tenantID, userID, func() error {
		user, err := c.store.LoadUser(ctx, tenantID, userID)
		if err != nil {
			return apperr.Wrap(err)
		}
		comp, err := c.store.GetCompanion(ctx, tenantID, userID, companionID)
		if err != nil {
			return apperr.Wrap(err)
		}
		if !comp.HasAbility(ability) {
			return apperr.New(apperr.KindValidation, "ability_locked", fmt.Sprintf("ability %q not unlocked", ability))
		}

		cost := abilityEnergyCostFor(ability)
		if comp.Stats.Energy < cost {
			return apperr.New(apperr.KindValidation, "insufficient_energy", "not enough energy to use ability")
		}

		effect := abilityEffectCatalog[ability]
		intelligenceBonus := float64(comp.Stats.Level) / 10.0
		xpGain := int(float64(effect.XP) * (1 + intelligenceBonus))

		comp.Stats.Energy -= cost
		comp.Stats.Happiness += effect.Happiness
		comp.Stats.XP += xpGain
		comp.Stats.Clamp()
		comp.LastInteractionAt = time.Now()
		applyLevelUps(&comp)

		delta := domain.UserDelta{
			TenantID: tenantID, UserID: userID, ExpectedVersion: user.Version,
			CompanionUpsert: &comp,
		}
		if _, err := c.store.ApplyUserDelta(ctx, delta, nil); err != nil {
			return apperr.Wrap(err)
		}

		result = &AbilityResult{Companion: comp, Ability: ability, XPGained: xpGain, EnergyCost: cost, GrowthStage: growthStage(comp.Stats.Level)}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return result, nil
}
