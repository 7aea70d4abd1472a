/*
Package config provides configuration management for the filesystem façade
and its supporting components, with layered YAML-file, environment-variable,
and compiled-in-default sources.

# Configuration Architecture

Multi-source configuration hierarchy with precedence:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (POSIXFS_*)                       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration Files                 │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	│        (Compiled-in defaults)              │
	└─────────────────────────────────────────────┘

# Configuration Structure

Global Settings:
- Logging configuration (level, file, format)
- Service ports (metrics, health, profiling)

Performance Settings:
- Traversal/batch concurrency limits
- Object-store connection pool sizing

Network Configuration:
- Timeout settings
- Retry policy for cold object-store calls (pkg/retry)
- Circuit breaker parameters (internal/circuit)

Pattern cache / page store / tier / CAS:
- Compiled-glob-pattern LRU capacity
- Page size for the tiered page store
- Hot/warm/cold promotion thresholds
- CAS object base path, prefix length, and existence/object cache sizing

# Usage Examples

Loading configuration:

	// Create with defaults
	cfg := config.NewDefault()

	// Load from file
	if err := cfg.LoadFromFile("/etc/posixfs/config.yaml"); err != nil {
		log.Fatal(err)
	}

	// Load environment variables
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}

	// Apply command-line overrides
	cfg.Tier.MaxHotPages = 2048
	cfg.Global.LogLevel = "DEBUG"

	// Validate final configuration
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

Configuration file format:

	global:
	  log_level: INFO
	  log_file: "/var/log/posixfs.log"
	  metrics_port: 8080
	  health_port: 8081
	  profile_port: 6060

	performance:
	  max_concurrency: 150
	  batch_concurrency: 8
	  connection_pool_size: 8

	network:
	  retry:
	    max_attempts: 4
	    base_delay: 50ms
	    max_delay: 10s
	  circuit_breaker:
	    enabled: true
	    failure_threshold: 5
	    cooldown: 30s

	pattern_cache:
	  capacity: 1000

	page_store:
	  page_size_bytes: 2097152

	tier:
	  enabled: true
	  max_hot_pages: 1024
	  access_threshold: 3

	cas:
	  base: "objects"
	  prefix_len: 2
	  existence_cache:
	    expected_items: 100000
	    false_positive_rate: 0.01
	    positive_ttl: 60s
	    max_positive_entries: 10000

Environment variable mapping:

	# Global settings
	POSIXFS_LOG_LEVEL="DEBUG"
	POSIXFS_LOG_FILE="/var/log/posixfs.log"
	POSIXFS_METRICS_PORT="9090"

	# Performance settings
	POSIXFS_MAX_CONCURRENCY="200"
	POSIXFS_BATCH_CONCURRENCY="16"
	POSIXFS_CONNECTION_POOL_SIZE="8"

	# Tier / CAS settings
	POSIXFS_TIER_ENABLED="true"
	POSIXFS_TIER_MAX_HOT_PAGES="2048"
	POSIXFS_CAS_BASE="objects"
	POSIXFS_CAS_PREFIX_LEN="2"

# Façade configuration

Separately from the hierarchical Configuration above, each façade instance
is constructed from a small frozen value built by NewFacadeConfig: rootPath
(made absolute), readOnly, encoding (one of utf8/utf-8/ascii/base64/hex/
binary/latin1), mode ([0, 0o7777]), flags (>= 0), and recursive. All of it
is validated once at construction time; invalid input returns EINVAL.

# Validation

Configuration.Validate checks cross-field and range invariants: a
non-empty, recognised log level, positive concurrency/pool-size settings,
distinct metrics/health ports, a CAS prefix length in [1, 8], a non-empty
CAS base, a positive page size, and (when tiering is enabled) a positive
access threshold.
*/
package config
