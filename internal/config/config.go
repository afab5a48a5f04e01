package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ArticlesDB/internal/domain"
)

const (
	configPathEnv    = "ARTICLES_DB_CONFIG"
	topicEnv         = "ARTICLES_DB_TOPIC"
	outputEnv        = "ARTICLES_DB_OUTPUT"
	logLevelEnv      = "LOG_LEVEL"
	hiveTokenEnv     = "HIVE_API_TOKEN"
	twitterTokenEnv  = "TWITTER_BEARER_TOKEN"
	databaseDSNEnv   = "DATABASE_DSN"
	redisAddressEnv  = "REDIS_ADDRESS"
	redisPasswordEnv = "REDIS_PASSWORD"
)

// Config holds every setting of a pipeline run.
type Config struct {
	Topic       string           `yaml:"topic"`
	Logging     LoggingConfig    `yaml:"logging"`
	Influencers InfluencerConfig `yaml:"influencers"`
	Timeline    TimelineConfig   `yaml:"timeline"`
	Resolver    ResolverConfig   `yaml:"resolver"`
	HTTP        HTTPConfig       `yaml:"http"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
	Cache       CacheConfig      `yaml:"cache"`
	Snapshot    SnapshotConfig   `yaml:"snapshot"`
	Database    DatabaseConfig   `yaml:"database"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Network     NetworkConfig    `yaml:"network"`
}

// LoggingConfig selects slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// InfluencerConfig describes the ranked-influencer API.
type InfluencerConfig struct {
	BaseURL     string `yaml:"baseUrl"`
	Token       string `yaml:"token"`
	PageSize    int    `yaml:"pageSize"`
	Concurrency int    `yaml:"concurrency"`
}

// TimelineConfig describes the timeline API.
type TimelineConfig struct {
	BaseURL  string `yaml:"baseUrl"`
	Token    string `yaml:"token"`
	PageSize int    `yaml:"pageSize"`
	MaxPages int    `yaml:"maxPages"`
}

// ResolverConfig bounds article metadata fetches.
type ResolverConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
}

// HTTPConfig tunes the shared outbound client.
type HTTPConfig struct {
	UserAgent         string        `yaml:"userAgent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	MaxConcurrent     int           `yaml:"maxConcurrent"`
}

// PipelineConfig bounds timeline fan-out.
type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

// CacheConfig enables the redis response cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDb"`
	TTL           time.Duration `yaml:"ttl"`
}

// SnapshotConfig lists the sinks the final snapshot is written to.
type SnapshotConfig struct {
	Sinks []string `yaml:"sinks"`
	Path  string   `yaml:"path"`
}

// DatabaseConfig describes the Postgres sink connection.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// MetricsConfig exposes /metrics while a run is in progress when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// NetworkConfig names the hosts that belong to the source social network.
type NetworkConfig struct {
	Domains []string `yaml:"domains"`
}

// Load reads .env files, the YAML configuration (if present) and environment overrides.
// An explicit path wins over ARTICLES_DB_CONFIG. A named file that cannot be read or
// parsed is an error; with no file named, defaults and environment apply.
func Load(path string) (Config, error) {
	loadEnvFiles()

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Validate reports configuration problems that make a run impossible.
func (c Config) Validate() error {
	var missing []string
	if c.Influencers.Token == "" {
		missing = append(missing, hiveTokenEnv)
	}
	if c.Timeline.Token == "" {
		missing = append(missing, twitterTokenEnv)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s", domain.ErrMissingCredentials, strings.Join(missing, ", "))
	}

	if strings.TrimSpace(c.Topic) == "" {
		return fmt.Errorf("topic is required")
	}
	if c.Influencers.PageSize <= 0 || c.Timeline.PageSize <= 0 {
		return fmt.Errorf("page sizes must be positive")
	}
	if c.Timeline.MaxPages <= 0 {
		return fmt.Errorf("timeline.maxPages must be positive")
	}
	if c.Pipeline.Workers <= 0 || c.Influencers.Concurrency <= 0 {
		return fmt.Errorf("pipeline.workers and influencers.concurrency must be positive")
	}
	if len(c.Snapshot.Sinks) == 0 {
		return fmt.Errorf("at least one snapshot sink is required")
	}
	for _, s := range c.Snapshot.Sinks {
		if s == "postgres" && c.Database.DSN == "" {
			return fmt.Errorf("postgres sink requires %s", databaseDSNEnv)
		}
	}
	return nil
}

func loadEnvFiles() {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			log.Printf("config: cannot load %s: %v", name, err)
		}
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(topicEnv); v != "" {
		c.Topic = v
	}

	if v := os.Getenv(outputEnv); v != "" {
		c.Snapshot.Path = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(hiveTokenEnv); v != "" {
		c.Influencers.Token = v
	}

	if v := os.Getenv(twitterTokenEnv); v != "" {
		c.Timeline.Token = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(redisAddressEnv); v != "" {
		c.Cache.RedisAddr = v
	}

	if v := os.Getenv(redisPasswordEnv); v != "" {
		c.Cache.RedisPassword = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Topic != "" {
		base.Topic = override.Topic
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Influencers.BaseURL != "" {
		base.Influencers.BaseURL = override.Influencers.BaseURL
	}
	if override.Influencers.Token != "" {
		base.Influencers.Token = override.Influencers.Token
	}
	if override.Influencers.PageSize > 0 {
		base.Influencers.PageSize = override.Influencers.PageSize
	}
	if override.Influencers.Concurrency > 0 {
		base.Influencers.Concurrency = override.Influencers.Concurrency
	}

	if override.Timeline.BaseURL != "" {
		base.Timeline.BaseURL = override.Timeline.BaseURL
	}
	if override.Timeline.Token != "" {
		base.Timeline.Token = override.Timeline.Token
	}
	if override.Timeline.PageSize > 0 {
		base.Timeline.PageSize = override.Timeline.PageSize
	}
	if override.Timeline.MaxPages > 0 {
		base.Timeline.MaxPages = override.Timeline.MaxPages
	}

	if override.Resolver.Timeout > 0 {
		base.Resolver.Timeout = override.Resolver.Timeout
	}
	if override.Resolver.MaxBodyBytes > 0 {
		base.Resolver.MaxBodyBytes = override.Resolver.MaxBodyBytes
	}

	if override.HTTP.UserAgent != "" {
		base.HTTP.UserAgent = override.HTTP.UserAgent
	}
	if override.HTTP.Timeout > 0 {
		base.HTTP.Timeout = override.HTTP.Timeout
	}
	if override.HTTP.RequestsPerSecond > 0 {
		base.HTTP.RequestsPerSecond = override.HTTP.RequestsPerSecond
	}
	if override.HTTP.Burst > 0 {
		base.HTTP.Burst = override.HTTP.Burst
	}
	if override.HTTP.MaxConcurrent > 0 {
		base.HTTP.MaxConcurrent = override.HTTP.MaxConcurrent
	}

	if override.Pipeline.Workers > 0 {
		base.Pipeline.Workers = override.Pipeline.Workers
	}

	if override.Cache.RedisAddr != "" {
		base.Cache = override.Cache
		if base.Cache.TTL <= 0 {
			base.Cache.TTL = defaultConfig().Cache.TTL
		}
	}

	if len(override.Snapshot.Sinks) > 0 {
		base.Snapshot.Sinks = override.Snapshot.Sinks
	}
	if override.Snapshot.Path != "" {
		base.Snapshot.Path = override.Snapshot.Path
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Metrics.Addr != "" {
		base.Metrics = override.Metrics
	}

	if len(override.Network.Domains) > 0 {
		base.Network.Domains = override.Network.Domains
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Topic:   "tesla",
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Influencers: InfluencerConfig{
			BaseURL:     "https://api.borg.id",
			PageSize:    50,
			Concurrency: 8,
		},
		Timeline: TimelineConfig{
			BaseURL:  "https://api.twitter.com",
			PageSize: 100,
			MaxPages: 32,
		},
		Resolver: ResolverConfig{Timeout: 5 * time.Second, MaxBodyBytes: 4 << 20},
		HTTP: HTTPConfig{
			UserAgent:         "ArticlesDB/1.0",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 50,
			Burst:             10,
			MaxConcurrent:     64,
		},
		Pipeline: PipelineConfig{Workers: 16},
		Cache:    CacheConfig{TTL: 24 * time.Hour},
		Snapshot: SnapshotConfig{Sinks: []string{"json"}, Path: "articles.json"},
		Network:  NetworkConfig{Domains: []string{"twitter.com", "x.com", "t.co"}},
	}
}
