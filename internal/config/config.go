package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Signals    SignalsConfig    `yaml:"signals" mapstructure:"signals"`
	Retention  RetentionConfig  `yaml:"retention" mapstructure:"retention"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ScoringConfig holds the trust score weights and penalties. Changing any of
// these should be followed by a full recompute.
type ScoringConfig struct {
	DomainWeight           float64 `yaml:"domain_weight" mapstructure:"domain_weight"`
	CommunityWeight        float64 `yaml:"community_weight" mapstructure:"community_weight"`
	SpamPenalty            float64 `yaml:"spam_penalty" mapstructure:"spam_penalty"`
	MisleadingPenalty      float64 `yaml:"misleading_penalty" mapstructure:"misleading_penalty"`
	ScamPenalty            float64 `yaml:"scam_penalty" mapstructure:"scam_penalty"`
	ConfidenceFloorRatings int     `yaml:"confidence_floor_ratings" mapstructure:"confidence_floor_ratings"`
	MaxBlacklistPenalty    float64 `yaml:"max_blacklist_penalty" mapstructure:"max_blacklist_penalty"`
}

// CacheConfig configures the domain signal cache.
type CacheConfig struct {
	TTLDays int `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// SchedulerConfig configures the periodic aggregation pass.
type SchedulerConfig struct {
	IntervalSecs        int  `yaml:"interval_secs" mapstructure:"interval_secs"`
	MaxURLsPerRun       int  `yaml:"max_urls_per_run" mapstructure:"max_urls_per_run"`
	ChunkSize           int  `yaml:"chunk_size" mapstructure:"chunk_size"`
	Concurrency         int  `yaml:"concurrency" mapstructure:"concurrency"`
	RefreshStaleDomains bool `yaml:"refresh_stale_domains" mapstructure:"refresh_stale_domains"`
}

// SignalsConfig configures the asynchronous domain signal refresher and the
// providers it calls.
type SignalsConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	QueueSize         int           `yaml:"queue_size" mapstructure:"queue_size"`
	Workers           int           `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs       int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retry             RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit           CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
	RDAP              RDAPConfig    `yaml:"rdap" mapstructure:"rdap"`
	DNSBL             DNSBLConfig   `yaml:"dnsbl" mapstructure:"dnsbl"`
	Probe             ProbeConfig   `yaml:"probe" mapstructure:"probe"`
}

// RetryConfig configures exponential backoff for provider calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RDAPConfig configures registration-date lookups.
type RDAPConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// DNSBLConfig configures DNS blocklist threat lookups.
type DNSBLConfig struct {
	Enabled bool              `yaml:"enabled" mapstructure:"enabled"`
	Server  string            `yaml:"server" mapstructure:"server"`
	Zones   []DNSBLZoneConfig `yaml:"zones" mapstructure:"zones"`
}

// DNSBLZoneConfig maps the answer addresses of one blocklist zone to threat
// statuses.
type DNSBLZoneConfig struct {
	Zone  string            `yaml:"zone" mapstructure:"zone"`
	Codes []DNSBLCodeConfig `yaml:"codes" mapstructure:"codes"`
}

// DNSBLCodeConfig maps one answer address (e.g. "127.0.1.4") to a threat
// status (e.g. "phishing"). Addresses are listed rather than used as map keys
// because viper splits keys on dots.
type DNSBLCodeConfig struct {
	Answer string `yaml:"answer" mapstructure:"answer"`
	Status string `yaml:"status" mapstructure:"status"`
}

// ProbeConfig configures the HTTPS reachability probe.
type ProbeConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// RetentionConfig configures how long raw and derived data is kept.
type RetentionConfig struct {
	RatingDays        int  `yaml:"rating_days" mapstructure:"rating_days"`
	CacheDays         int  `yaml:"cache_days" mapstructure:"cache_days"`
	StatsDays         int  `yaml:"stats_days" mapstructure:"stats_days"`
	SweepIntervalSecs int  `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
}

// MonitoringConfig configures backlog and pass-health alerting.
type MonitoringConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	BacklogThreshold  int     `yaml:"backlog_threshold" mapstructure:"backlog_threshold"`
	SkipRateThreshold float64 `yaml:"skip_rate_threshold" mapstructure:"skip_rate_threshold"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRUST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "trustscore.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("scoring.domain_weight", 0.4)
	v.SetDefault("scoring.community_weight", 0.6)
	v.SetDefault("scoring.spam_penalty", 30)
	v.SetDefault("scoring.misleading_penalty", 25)
	v.SetDefault("scoring.scam_penalty", 40)
	v.SetDefault("scoring.confidence_floor_ratings", 5)
	v.SetDefault("scoring.max_blacklist_penalty", 50)
	v.SetDefault("cache.ttl_days", 7)
	v.SetDefault("scheduler.interval_secs", 300)
	v.SetDefault("scheduler.max_urls_per_run", 5000)
	v.SetDefault("scheduler.chunk_size", 250)
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.refresh_stale_domains", true)
	v.SetDefault("signals.enabled", true)
	v.SetDefault("signals.requests_per_second", 2.0)
	v.SetDefault("signals.burst", 4)
	v.SetDefault("signals.queue_size", 1024)
	v.SetDefault("signals.workers", 2)
	v.SetDefault("signals.timeout_secs", 10)
	v.SetDefault("signals.retry.max_attempts", 3)
	v.SetDefault("signals.retry.initial_backoff_ms", 500)
	v.SetDefault("signals.retry.max_backoff_ms", 30000)
	v.SetDefault("signals.retry.multiplier", 2.0)
	v.SetDefault("signals.retry.jitter_fraction", 0.25)
	v.SetDefault("signals.circuit.failure_threshold", 5)
	v.SetDefault("signals.circuit.reset_timeout_secs", 60)
	v.SetDefault("signals.rdap.enabled", true)
	v.SetDefault("signals.dnsbl.enabled", true)
	v.SetDefault("signals.dnsbl.server", "1.1.1.1:53")
	v.SetDefault("signals.probe.enabled", true)
	v.SetDefault("signals.probe.user_agent", "trustscore-probe/1.0")
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.rating_days", 365)
	v.SetDefault("retention.cache_days", 30)
	v.SetDefault("retention.stats_days", 365)
	v.SetDefault("retention.sweep_interval_secs", 86400)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.backlog_threshold", 10000)
	v.SetDefault("monitoring.skip_rate_threshold", 0.10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate rejects configurations that would silently skew every score.
// It is called once at startup and a failure is fatal.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres (TRUST_STORE_DATABASE_URL)")
	}

	errs = append(errs, c.Scoring.problems()...)

	if c.Cache.TTLDays < 1 || c.Cache.TTLDays > 365 {
		errs = append(errs, "cache.ttl_days must be between 1 and 365")
	}

	if c.Scheduler.IntervalSecs < 1 {
		errs = append(errs, "scheduler.interval_secs must be >= 1")
	}
	if c.Scheduler.MaxURLsPerRun < 1 {
		errs = append(errs, "scheduler.max_urls_per_run must be >= 1")
	}
	if c.Scheduler.ChunkSize < 1 {
		errs = append(errs, "scheduler.chunk_size must be >= 1")
	}
	if c.Scheduler.Concurrency < 1 {
		errs = append(errs, "scheduler.concurrency must be >= 1")
	}

	if c.Signals.Enabled {
		if c.Signals.RequestsPerSecond <= 0 {
			errs = append(errs, "signals.requests_per_second must be > 0")
		}
		if c.Signals.Workers < 1 {
			errs = append(errs, "signals.workers must be >= 1")
		}
		if c.Signals.QueueSize < 1 {
			errs = append(errs, "signals.queue_size must be >= 1")
		}
	}

	if c.Retention.Enabled {
		if c.Retention.RatingDays < 1 || c.Retention.CacheDays < 1 || c.Retention.StatsDays < 1 {
			errs = append(errs, "retention windows must be >= 1 day")
		}
	}

	if c.Monitoring.SkipRateThreshold < 0 || c.Monitoring.SkipRateThreshold > 1 {
		errs = append(errs, "monitoring.skip_rate_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the scoring section alone.
func (s ScoringConfig) Validate() error {
	if errs := s.problems(); len(errs) > 0 {
		return eris.Errorf("config: invalid scoring: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s ScoringConfig) problems() []string {
	var errs []string
	weights := []struct {
		name string
		v    float64
	}{
		{"scoring.domain_weight", s.DomainWeight},
		{"scoring.community_weight", s.CommunityWeight},
	}
	for _, w := range weights {
		if w.v < 0 || w.v > 1 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 1", w.name))
		}
	}
	if sum := s.DomainWeight + s.CommunityWeight; math.Abs(sum-1) > 0.001 {
		errs = append(errs, fmt.Sprintf("scoring weights should sum to 1, got %.3f", sum))
	}

	penalties := []struct {
		name string
		v    float64
	}{
		{"scoring.spam_penalty", s.SpamPenalty},
		{"scoring.misleading_penalty", s.MisleadingPenalty},
		{"scoring.scam_penalty", s.ScamPenalty},
	}
	for _, p := range penalties {
		if p.v < 0 || p.v > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100", p.name))
		}
	}

	if s.ConfidenceFloorRatings < 1 {
		errs = append(errs, "scoring.confidence_floor_ratings must be >= 1")
	}
	if s.MaxBlacklistPenalty < 0 || s.MaxBlacklistPenalty > 100 {
		errs = append(errs, "scoring.max_blacklist_penalty must be between 0 and 100")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
