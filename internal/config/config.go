package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  ShardConfig     `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	Policy    PolicyConfig    `yaml:"policy"`
	Mission   MissionConfig   `yaml:"mission"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Timezone  string          `yaml:"timezone"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds the second-tier cache Redis connection configuration.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresDSN holds the connection parameters for one shard.
type PostgresDSN struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the libpq connection string for this shard.
func (c *PostgresDSN) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// ShardConfig holds the sharded PostgreSQL store configuration. Shards is
// one DSN per shard, indexed positionally by hash(tenant_id,user_id)%len(Shards).
type ShardConfig struct {
	Shards          []PostgresDSN `yaml:"shards"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// KafkaConfig holds the POS receipt-ingest consumer configuration.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"group_id"`
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// CacheConfig holds the two-tier cache configuration.
type CacheConfig struct {
	LocalCapacity int           `yaml:"local_capacity"`
	LocalTTL      time.Duration `yaml:"local_ttl"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
	RedisEnabled  bool          `yaml:"redis_enabled"`
}

// RateLimitConfig holds the fixed-window rate limiter configuration.
type RateLimitConfig struct {
	FlushInterval time.Duration           `yaml:"flush_interval"`
	FlushMaxCount int                     `yaml:"flush_max_count"`
	Actions       map[string]ActionLimit  `yaml:"actions"`
}

// ActionLimit is the per-action window and policy.
type ActionLimit struct {
	Window   time.Duration `yaml:"window"`
	Max      int64         `yaml:"max"`
	FailOpen bool          `yaml:"fail_open"`
}

// AuthConfig holds AuthGate tunables.
type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `yaml:"refresh_token_ttl"`
	BcryptCost         int           `yaml:"bcrypt_cost"`
	MaxFailedAttempts  int           `yaml:"max_failed_attempts"`
	LockoutWindow      time.Duration `yaml:"lockout_window"`
	LockoutDuration    time.Duration `yaml:"lockout_duration"`
	TOTPBackupCodes    int           `yaml:"totp_backup_codes"`
}

// PolicyConfig seeds the default reward Policy used when a tenant doesn't
// override it (see domain.DefaultPolicy).
type PolicyConfig struct {
	BaseRate           float64 `yaml:"base_rate"`
	XPRate             float64 `yaml:"xp_rate"`
	XPPerLevel         int64   `yaml:"xp_per_level"`
	EventMultiplierCap float64 `yaml:"event_multiplier_cap"`
	MaxReceiptAmount   float64 `yaml:"max_receipt_amount"`
	SuspiciousAmount   float64 `yaml:"suspicious_amount"`
}

// MissionConfig controls daily/weekly mission generation cadence.
type MissionConfig struct {
	DailySlots   int       `yaml:"daily_slots"`
	WeeklySlots  int       `yaml:"weekly_slots"`
	ResetHourUTC int       `yaml:"reset_hour_utc"`
	SeasonalKeys []string  `yaml:"seasonal_keys"`
}

// SchedulerConfig controls the interval for each background job.
type SchedulerConfig struct {
	EmpireAccrual       time.Duration `yaml:"empire_accrual"`
	MissionExpiry       time.Duration `yaml:"mission_expiry"`
	StreakReset         time.Duration `yaml:"streak_reset"`
	NotificationSweep   time.Duration `yaml:"notification_sweep"`
	SessionCleanup      time.Duration `yaml:"session_cleanup"`
	CompanionDecay      time.Duration `yaml:"companion_decay"`
	Enabled             bool          `yaml:"enabled"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	if len(c.Postgres.Shards) == 0 {
		c.Postgres.Shards = []PostgresDSN{{Host: "localhost", Port: 5432, Database: "mallquest", SSLMode: "disable"}}
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "pos-receipts"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "mallquest-receipt-ingest"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	if c.Cache.LocalCapacity == 0 {
		c.Cache.LocalCapacity = 10000
	}
	if c.Cache.LocalTTL == 0 {
		c.Cache.LocalTTL = 60 * time.Second
	}
	if c.Cache.RedisTTL == 0 {
		c.Cache.RedisTTL = 10 * time.Minute
	}

	if c.RateLimit.FlushInterval == 0 {
		c.RateLimit.FlushInterval = 1 * time.Second
	}
	if c.RateLimit.FlushMaxCount == 0 {
		c.RateLimit.FlushMaxCount = 100
	}
	if c.RateLimit.Actions == nil {
		c.RateLimit.Actions = map[string]ActionLimit{
			"submit_receipt":  {Window: time.Minute, Max: 5, FailOpen: false},
			"claim_mission":   {Window: time.Minute, Max: 20, FailOpen: true},
			"login":           {Window: 15 * time.Minute, Max: 10, FailOpen: false},
			"collect_income":  {Window: time.Minute, Max: 30, FailOpen: true},
			"feed_companion":  {Window: time.Minute, Max: 30, FailOpen: true},
		}
	}

	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 12
	}
	if c.Auth.MaxFailedAttempts == 0 {
		c.Auth.MaxFailedAttempts = 5
	}
	if c.Auth.LockoutWindow == 0 {
		c.Auth.LockoutWindow = 15 * time.Minute
	}
	if c.Auth.LockoutDuration == 0 {
		c.Auth.LockoutDuration = 15 * time.Minute
	}
	if c.Auth.TOTPBackupCodes == 0 {
		c.Auth.TOTPBackupCodes = 10
	}

	if c.Policy.BaseRate == 0 {
		c.Policy.BaseRate = 0.10
	}
	if c.Policy.XPRate == 0 {
		c.Policy.XPRate = 0.20
	}
	if c.Policy.XPPerLevel == 0 {
		c.Policy.XPPerLevel = 100
	}
	if c.Policy.EventMultiplierCap == 0 {
		c.Policy.EventMultiplierCap = 3.0
	}
	if c.Policy.MaxReceiptAmount == 0 {
		c.Policy.MaxReceiptAmount = 10000
	}
	if c.Policy.SuspiciousAmount == 0 {
		c.Policy.SuspiciousAmount = 5000
	}

	if c.Mission.DailySlots == 0 {
		c.Mission.DailySlots = 3
	}
	if c.Mission.WeeklySlots == 0 {
		c.Mission.WeeklySlots = 2
	}

	if c.Scheduler.EmpireAccrual == 0 {
		c.Scheduler.EmpireAccrual = time.Minute
	}
	if c.Scheduler.MissionExpiry == 0 {
		c.Scheduler.MissionExpiry = time.Minute
	}
	if c.Scheduler.StreakReset == 0 {
		c.Scheduler.StreakReset = time.Hour
	}
	if c.Scheduler.NotificationSweep == 0 {
		c.Scheduler.NotificationSweep = 10 * time.Minute
	}
	if c.Scheduler.SessionCleanup == 0 {
		c.Scheduler.SessionCleanup = 10 * time.Minute
	}
	if c.Scheduler.CompanionDecay == 0 {
		c.Scheduler.CompanionDecay = 5 * time.Minute
	}

	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Scheduler.Enabled = true
	cfg.Kafka.Enabled = true
	cfg.Cache.RedisEnabled = true
	return cfg
}
