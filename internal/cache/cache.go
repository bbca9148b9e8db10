package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mallquest/mallquest/internal/config"
	"github.com/mallquest/mallquest/internal/domain"
)

// Cache is the two-tier cache: a bounded in-process LRU in front of an
// optional distributed second tier. Writes are write-through from the
// owning shard; the second tier degrades silently to LRU-only when absent.
type Cache struct {
	users     *localCache
	templates *localCache
	userTTL   time.Duration
	tmplTTL   time.Duration

	redis   *redis.Client
	redisOn bool
	logger  *slog.Logger
}

// New builds a Cache. If cfg.RedisEnabled is false or the ping fails, the
// second tier is disabled and the cache runs LRU-only.
func New(ctx context.Context, cfg config.CacheConfig, redisCfg config.RedisConfig, logger *slog.Logger) *Cache {
	c := &Cache{
		users:     newLocalCache(cfg.LocalCapacity),
		templates: newLocalCache(cfg.LocalCapacity),
		userTTL:   cfg.LocalTTL,
		tmplTTL:   cfg.RedisTTL,
		logger:    logger,
	}
	if c.tmplTTL <= 0 {
		c.tmplTTL = 10 * time.Minute
	}

	if !cfg.RedisEnabled {
		return c
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         redisCfg.Addr,
		Password:     redisCfg.Password,
		DB:           redisCfg.DB,
		PoolSize:     redisCfg.PoolSize,
		MinIdleConns: redisCfg.MinIdleConns,
		DialTimeout:  redisCfg.DialTimeout,
		ReadTimeout:  redisCfg.ReadTimeout,
		WriteTimeout: redisCfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("cache: redis unavailable, degrading to LRU-only", "error", err)
		return c
	}

	c.redis = rdb
	c.redisOn = true
	return c
}

func userKey(tenantID, userID string) string { return "user:" + tenantID + ":" + userID }

// GetUser returns a cached snapshot, probing LRU then the second tier.
func (c *Cache) GetUser(ctx context.Context, tenantID, userID string) (domain.User, bool) {
	key := userKey(tenantID, userID)

	if v, ok := c.users.Get(key); ok {
		return v.(domain.User), true
	}

	if c.redisOn {
		raw, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			var u domain.User
			if json.Unmarshal(raw, &u) == nil {
				c.users.Set(key, u, c.userTTL)
				return u, true
			}
		} else if err != redis.Nil {
			c.logger.Warn("cache: redis get failed", "error", err)
		}
	}

	return domain.User{}, false
}

// SetUser populates both tiers. Called by the coordinator after a commit
// (write-through) or after a Store miss (populate-on-read).
func (c *Cache) SetUser(ctx context.Context, u domain.User) {
	key := userKey(u.TenantID, u.ID)
	c.users.Set(key, u, c.userTTL)

	if !c.redisOn {
		return
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.userTTL).Err(); err != nil {
		c.logger.Warn("cache: redis set failed", "error", err)
	}
}

// InvalidateUser evicts a user snapshot from both tiers. Called on any
// observed version mismatch.
func (c *Cache) InvalidateUser(ctx context.Context, tenantID, userID string) {
	key := userKey(tenantID, userID)
	c.users.Remove(key)
	if c.redisOn {
		if err := c.redis.Del(ctx, key).Err(); err != nil {
			c.logger.Warn("cache: redis del failed", "error", err)
		}
	}
}

// GetTemplate returns a memoized deterministic derivation (mission
// templates, VIP benefit tables, event-multiplier compositions).
func (c *Cache) GetTemplate(key string) (any, bool) {
	return c.templates.Get("tmpl:" + key)
}

// SetTemplate memoizes a deterministic derivation for tmplTTL (cfg.RedisTTL,
// or 10 minutes when that is unset).
func (c *Cache) SetTemplate(key string, value any) {
	c.templates.Set("tmpl:"+key, value, c.tmplTTL)
}

// Stats reports current occupancy, exposed via /api/performance-metrics.
func (c *Cache) Stats() (userEntries, templateEntries int, redisEnabled bool) {
	return c.users.Len(), c.templates.Len(), c.redisOn
}

// Close releases the second-tier client, if any.
func (c *Cache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
