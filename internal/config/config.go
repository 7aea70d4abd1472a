package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/posixfs/posixfs/internal/circuit"
	"github.com/posixfs/posixfs/pkg/retry"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global       GlobalConfig       `yaml:"global"`
	Performance  PerformanceConfig  `yaml:"performance"`
	Network      NetworkConfig      `yaml:"network"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	PatternCache PatternCacheConfig `yaml:"pattern_cache"`
	PageStore    PageStoreConfig    `yaml:"page_store"`
	Tier         TierManagerConfig  `yaml:"tier"`
	CAS          CASConfig          `yaml:"cas"`
}

// PatternCacheConfig configures the global compiled-glob-pattern LRU.
type PatternCacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// PageStoreConfig configures the tiered page store.
type PageStoreConfig struct {
	PageSizeBytes int64 `yaml:"page_size_bytes"`
}

// TierManagerConfig configures the hot/warm/cold promotion manager.
type TierManagerConfig struct {
	Enabled         bool  `yaml:"enabled"`
	MaxHotPages     int   `yaml:"max_hot_pages"`
	AccessThreshold int64 `yaml:"access_threshold"`
}

// CASConfig configures the content-addressable store.
type CASConfig struct {
	Base           string               `yaml:"base"`
	PrefixLen      int                  `yaml:"prefix_len"`
	ExistenceCache ExistenceCacheConfig `yaml:"existence_cache"`
	ObjectCache    ObjectCacheConfig    `yaml:"object_cache"`
}

// ExistenceCacheConfig configures the CAS bloom-filter/positive-TTL cache.
type ExistenceCacheConfig struct {
	ExpectedItems      int           `yaml:"expected_items"`
	FalsePositiveRate  float64       `yaml:"false_positive_rate"`
	PositiveTTL        time.Duration `yaml:"positive_ttl"`
	MaxPositiveEntries int           `yaml:"max_positive_entries"`
}

// ObjectCacheConfig configures the CAS's optional in-memory object cache.
type ObjectCacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
	MaxBytes   int  `yaml:"max_bytes"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port"`
	HealthPort  int    `yaml:"health_port"`
	ProfilePort int    `yaml:"profile_port"`
}

// PerformanceConfig bounds concurrent work: traversal-driven fan-out, CAS
// batch puts, and the cold object store's connection pool.
type PerformanceConfig struct {
	MaxConcurrency     int `yaml:"max_concurrency"`
	BatchConcurrency   int `yaml:"batch_concurrency"`
	ConnectionPoolSize int `yaml:"connection_pool_size"`
}

// NetworkConfig configures how cold object-store calls behave under
// failure: per-call timeouts, backoff reattempts, and the breaker that
// short-circuits a store that keeps failing.
type NetworkConfig struct {
	Timeouts       TimeoutConfig        `yaml:"timeouts"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// TimeoutConfig represents timeout settings
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect"`
	Read    time.Duration `yaml:"read"`
	Write   time.Duration `yaml:"write"`
}

// RetryConfig is the YAML shape of pkg/retry's Policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Policy converts the YAML shape into the retry policy the object-store
// client consumes.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		Attempts:  r.MaxAttempts,
		BaseDelay: r.BaseDelay,
		MaxDelay:  r.MaxDelay,
		Jitter:    true,
	}
}

// CircuitBreakerConfig is the YAML shape of internal/circuit's Options.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// Options converts the YAML shape into the breaker options the
// object-store client consumes.
func (c CircuitBreakerConfig) Options() circuit.Options {
	return circuit.Options{
		FailureThreshold: c.FailureThreshold,
		Cooldown:         c.Cooldown,
	}
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics      MetricsConfig      `yaml:"metrics"`
	HealthChecks HealthChecksConfig `yaml:"health_checks"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Prometheus   bool              `yaml:"prometheus"`
	CustomLabels map[string]string `yaml:"custom_labels"`
}

// HealthChecksConfig represents health check settings
type HealthChecksConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Structured bool   `yaml:"structured"`
	Format     string `yaml:"format"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFile:     "",
			MetricsPort: 8080,
			HealthPort:  8081,
			ProfilePort: 6060,
		},
		Performance: PerformanceConfig{
			MaxConcurrency:     150,
			BatchConcurrency:   8,
			ConnectionPoolSize: 8,
		},
		Network: NetworkConfig{
			Timeouts: TimeoutConfig{
				Connect: 10 * time.Second,
				Read:    30 * time.Second,
				Write:   300 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts: 4,
				BaseDelay:   50 * time.Millisecond,
				MaxDelay:    10 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Cooldown:         30 * time.Second,
			},
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:    true,
				Prometheus: true,
				CustomLabels: map[string]string{
					"service": "posixfs",
				},
			},
			HealthChecks: HealthChecksConfig{
				Enabled:  true,
				Interval: 30 * time.Second,
				Timeout:  5 * time.Second,
			},
			Logging: LoggingConfig{
				Structured: true,
				Format:     "json",
			},
		},
		PatternCache: PatternCacheConfig{
			Capacity: 1000,
		},
		PageStore: PageStoreConfig{
			PageSizeBytes: 2 * 1024 * 1024,
		},
		Tier: TierManagerConfig{
			Enabled:         true,
			MaxHotPages:     1024,
			AccessThreshold: 3,
		},
		CAS: CASConfig{
			Base:      "objects",
			PrefixLen: 2,
			ExistenceCache: ExistenceCacheConfig{
				ExpectedItems:      100000,
				FalsePositiveRate:  0.01,
				PositiveTTL:        60 * time.Second,
				MaxPositiveEntries: 10000,
			},
			ObjectCache: ObjectCacheConfig{
				Enabled:    false,
				MaxEntries: 10000,
				MaxBytes:   0,
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("POSIXFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("POSIXFS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("POSIXFS_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}

	// Performance settings
	if val := os.Getenv("POSIXFS_MAX_CONCURRENCY"); val != "" {
		if concurrency, err := strconv.Atoi(val); err == nil {
			c.Performance.MaxConcurrency = concurrency
		}
	}
	if val := os.Getenv("POSIXFS_BATCH_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Performance.BatchConcurrency = n
		}
	}
	if val := os.Getenv("POSIXFS_CONNECTION_POOL_SIZE"); val != "" {
		if poolSize, err := strconv.Atoi(val); err == nil {
			c.Performance.ConnectionPoolSize = poolSize
		}
	}

	// Pattern cache / page store / tier manager / CAS settings
	if val := os.Getenv("POSIXFS_PATTERN_CACHE_CAPACITY"); val != "" {
		if capacity, err := strconv.Atoi(val); err == nil {
			c.PatternCache.Capacity = capacity
		}
	}
	if val := os.Getenv("POSIXFS_TIER_ENABLED"); val != "" {
		c.Tier.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("POSIXFS_TIER_MAX_HOT_PAGES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Tier.MaxHotPages = n
		}
	}
	if val := os.Getenv("POSIXFS_CAS_BASE"); val != "" {
		c.CAS.Base = val
	}
	if val := os.Getenv("POSIXFS_CAS_PREFIX_LEN"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.CAS.PrefixLen = n
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Performance.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be greater than 0")
	}

	if c.Performance.ConnectionPoolSize <= 0 {
		return fmt.Errorf("connection_pool_size must be greater than 0")
	}

	if c.Global.MetricsPort == c.Global.HealthPort {
		return fmt.Errorf("metrics_port and health_port cannot be the same")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.CAS.PrefixLen < 1 || c.CAS.PrefixLen > 8 {
		return fmt.Errorf("cas.prefix_len must be in [1, 8], got %d", c.CAS.PrefixLen)
	}
	if c.CAS.Base == "" {
		return fmt.Errorf("cas.base must not be empty")
	}
	if c.PageStore.PageSizeBytes <= 0 {
		return fmt.Errorf("page_store.page_size_bytes must be greater than 0")
	}
	if c.Tier.Enabled && c.Tier.AccessThreshold <= 0 {
		return fmt.Errorf("tier.access_threshold must be greater than 0 when tiering is enabled")
	}
	if c.Network.Retry.MaxAttempts < 0 {
		return fmt.Errorf("network.retry.max_attempts must not be negative")
	}

	return nil
}
