package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
}

// WorkerPoolConfig holds the configuration for the delivery worker pool.
type WorkerPoolConfig struct {
	CoreSize         int           `yaml:"core_size"`
	MaxSize          int           `yaml:"max_size"`
	QueueSize        int           `yaml:"queue_size"`
	KeepAliveSeconds int           `yaml:"keep_alive_seconds"`
	KeepAlive        time.Duration `yaml:"-"`
}

// DeliveryConfig holds the local retry policy of a single delivery.
type DeliveryConfig struct {
	MaxAttempts           int           `yaml:"max_attempts"`
	InitialBackoffSeconds int           `yaml:"initial_backoff_seconds"`
	MaxBackoffSeconds     int           `yaml:"max_backoff_seconds"`
	BackoffMultiplier     float64       `yaml:"backoff_multiplier"`
	SendTimeoutSeconds    int           `yaml:"send_timeout_seconds"`
	InitialBackoff        time.Duration `yaml:"-"`
	MaxBackoff            time.Duration `yaml:"-"`
	SendTimeout           time.Duration `yaml:"-"`
}

// Budget is the longest a delivery can run: every attempt hitting its send
// timeout plus every backoff wait between attempts.
func (d DeliveryConfig) Budget() time.Duration {
	total := time.Duration(d.MaxAttempts) * d.SendTimeout
	delay := float64(d.InitialBackoff)
	for i := 1; i < d.MaxAttempts; i++ {
		wait := time.Duration(delay)
		if d.MaxBackoff > 0 && wait > d.MaxBackoff {
			wait = d.MaxBackoff
		}
		total += wait
		delay *= d.BackoffMultiplier
	}
	return total
}

// ReconcileConfig controls the scheduled re-drive of stuck deliveries.
type ReconcileConfig struct {
	Enabled           *bool         `yaml:"enabled"`
	Schedule          string        `yaml:"schedule"`
	StaleAfterMinutes int           `yaml:"stale_after_minutes"`
	StaleAfter        time.Duration `yaml:"-"`
	BatchSize         int           `yaml:"batch_size"`
	// AbandonExhausted moves stale rows without attempt budget to ABANDONED
	// instead of leaving them PENDING.
	AbandonExhausted *bool `yaml:"abandon_exhausted"`
}

// CleanupConfig controls the scheduled removal of dead endpoints.
type CleanupConfig struct {
	Enabled      *bool         `yaml:"enabled"`
	Schedule     string        `yaml:"schedule"`
	LookbackDays int           `yaml:"lookback_days"`
	Lookback     time.Duration `yaml:"-"`
	Threshold    int           `yaml:"threshold"`
}

// PushConfig holds the gateway credentials.
type PushConfig struct {
	PublicKey          string `yaml:"vapid_public_key"`
	PrivateKey         string `yaml:"vapid_private_key"`
	Subject            string `yaml:"subject"`
	TTL                int    `yaml:"ttl"`
	FCMCredentialsFile string `yaml:"fcm_credentials_file"`
	SNSRegion          string `yaml:"sns_region"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.CoreSize <= 0 {
		cfg.WorkerPool.CoreSize = 8
	}
	if cfg.WorkerPool.MaxSize < cfg.WorkerPool.CoreSize {
		cfg.WorkerPool.MaxSize = cfg.WorkerPool.CoreSize * 2
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 500
	}
	if cfg.WorkerPool.KeepAliveSeconds <= 0 {
		cfg.WorkerPool.KeepAliveSeconds = 60
	}
	cfg.WorkerPool.KeepAlive = time.Duration(cfg.WorkerPool.KeepAliveSeconds) * time.Second

	if cfg.Delivery.MaxAttempts <= 0 {
		cfg.Delivery.MaxAttempts = 3
	}
	if cfg.Delivery.InitialBackoffSeconds <= 0 {
		cfg.Delivery.InitialBackoffSeconds = 3
	}
	if cfg.Delivery.MaxBackoffSeconds <= 0 {
		cfg.Delivery.MaxBackoffSeconds = 15
	}
	if cfg.Delivery.BackoffMultiplier < 1 {
		cfg.Delivery.BackoffMultiplier = 3
	}
	if cfg.Delivery.SendTimeoutSeconds <= 0 {
		cfg.Delivery.SendTimeoutSeconds = 30
	}
	cfg.Delivery.InitialBackoff = time.Duration(cfg.Delivery.InitialBackoffSeconds) * time.Second
	cfg.Delivery.MaxBackoff = time.Duration(cfg.Delivery.MaxBackoffSeconds) * time.Second
	cfg.Delivery.SendTimeout = time.Duration(cfg.Delivery.SendTimeoutSeconds) * time.Second

	cfg.Reconcile.Enabled = defaultTrue(cfg.Reconcile.Enabled)
	if cfg.Reconcile.Schedule == "" {
		cfg.Reconcile.Schedule = "0 0 9,15,21 * * *"
	}
	if cfg.Reconcile.StaleAfterMinutes <= 0 {
		cfg.Reconcile.StaleAfterMinutes = 10
	}
	cfg.Reconcile.StaleAfter = time.Duration(cfg.Reconcile.StaleAfterMinutes) * time.Minute
	if cfg.Reconcile.BatchSize <= 0 {
		cfg.Reconcile.BatchSize = 500
	}
	cfg.Reconcile.AbandonExhausted = defaultTrue(cfg.Reconcile.AbandonExhausted)

	cfg.Cleanup.Enabled = defaultTrue(cfg.Cleanup.Enabled)
	if cfg.Cleanup.Schedule == "" {
		cfg.Cleanup.Schedule = "0 30 3 * * *"
	}
	if cfg.Cleanup.LookbackDays <= 0 {
		cfg.Cleanup.LookbackDays = 30
	}
	cfg.Cleanup.Lookback = time.Duration(cfg.Cleanup.LookbackDays) * 24 * time.Hour
	if cfg.Cleanup.Threshold <= 0 {
		cfg.Cleanup.Threshold = 3
	}
}

func defaultTrue(b *bool) *bool {
	if b != nil {
		return b
	}
	v := true
	return &v
}

// Validate rejects combinations that cannot run.
func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	// A delivery still running when reconciliation looks at it would be sent
	// twice.
	if budget := cfg.Delivery.Budget(); budget >= cfg.Reconcile.StaleAfter {
		return fmt.Errorf("delivery budget %s (send timeouts plus backoff) must be below reconcile.stale_after_minutes (%s)",
			budget, cfg.Reconcile.StaleAfter)
	}
	return nil
}
