package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config sizes the Prometheus exporter.
type Config struct {
	Enabled        bool              `yaml:"enabled"`
	Port           int               `yaml:"port"`
	Path           string            `yaml:"path"`
	Labels         map[string]string `yaml:"labels"`
	Namespace      string            `yaml:"namespace"`
	UpdateInterval time.Duration     `yaml:"update_interval"`
}

// TierSnapshot is one sample of the tier manager's state, pulled from a
// registered source on every refresh (the counters mirror
// internal/tier.Metrics without importing it, to keep this package
// dependency-free).
type TierSnapshot struct {
	HotPages              int
	TotalAttempts         int64
	SuccessfulPromotions  int64
	FailedPromotions      int64
	BlockedByCapacity     int64
	EvictedForPromotion   int64
	AvgPromotionLatencyMs float64
}

// CacheSnapshot is one sample of a cache's state (the CAS object cache,
// the pattern LRU, or any other named cache a caller registers).
type CacheSnapshot struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	EntryCount int
	TotalBytes int64
}

// Collector exports the module's operational state over Prometheus:
// façade operations pushed through RecordOperation, plus tier-manager and
// cache gauges sampled from registered snapshot sources every
// UpdateInterval (and once per scrape of /debug/state).
type Collector struct {
	cfg      *Config
	registry *prometheus.Registry
	server   *http.Server

	opCounter  *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	opBytes    *prometheus.HistogramVec

	tierHotPages  prometheus.Gauge
	tierCounters  *prometheus.GaugeVec
	tierLatencyMs prometheus.Gauge
	cacheGauges   *prometheus.GaugeVec

	mu           sync.Mutex
	tierSource   func() TierSnapshot
	cacheSources map[string]func() CacheSnapshot
	started      time.Time
}

func defaultConfig() *Config {
	return &Config{
		Enabled:        true,
		Port:           8080,
		Path:           "/metrics",
		Namespace:      "posixfs",
		UpdateInterval: 30 * time.Second,
		Labels:         map[string]string{},
	}
}

// NewCollector builds a Collector; a nil config takes the defaults. A
// disabled collector accepts every call as a no-op.
func NewCollector(cfg *Config) (*Collector, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	c := &Collector{
		cfg:          cfg,
		cacheSources: make(map[string]func() CacheSnapshot),
		started:      time.Now(),
	}
	if !cfg.Enabled {
		return c, nil
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 30 * time.Second
	}

	c.registry = prometheus.NewRegistry()

	c.opCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   cfg.Namespace,
		Name:        "fs_operations_total",
		Help:        "Facade operations by type and outcome.",
		ConstLabels: prometheus.Labels(cfg.Labels),
	}, []string{"op", "status"})

	c.opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   cfg.Namespace,
		Name:        "fs_operation_duration_seconds",
		Help:        "Facade operation latency.",
		Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		ConstLabels: prometheus.Labels(cfg.Labels),
	}, []string{"op"})

	c.opBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   cfg.Namespace,
		Name:        "fs_operation_bytes",
		Help:        "Bytes moved per facade operation.",
		Buckets:     prometheus.ExponentialBuckets(256, 4, 12), // 256B to ~1GiB
		ConstLabels: prometheus.Labels(cfg.Labels),
	}, []string{"op"})

	c.tierHotPages = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   cfg.Namespace,
		Name:        "tier_hot_pages",
		Help:        "Pages currently resident in the hot tier.",
		ConstLabels: prometheus.Labels(cfg.Labels),
	})

	c.tierCounters = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   cfg.Namespace,
		Name:        "tier_promotion_events",
		Help:        "Tier-manager promotion counters, sampled each refresh.",
		ConstLabels: prometheus.Labels(cfg.Labels),
	}, []string{"event"})

	c.tierLatencyMs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   cfg.Namespace,
		Name:        "tier_promotion_latency_ms",
		Help:        "Mean promotion latency in milliseconds.",
		ConstLabels: prometheus.Labels(cfg.Labels),
	})

	c.cacheGauges = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   cfg.Namespace,
		Name:        "cache_state",
		Help:        "Per-cache counters (hits, misses, evictions, entries, bytes), sampled each refresh.",
		ConstLabels: prometheus.Labels(cfg.Labels),
	}, []string{"cache", "stat"})

	for _, m := range []prometheus.Collector{
		c.opCounter, c.opDuration, c.opBytes,
		c.tierHotPages, c.tierCounters, c.tierLatencyMs, c.cacheGauges,
	} {
		if err := c.registry.Register(m); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return c, nil
}

// RecordOperation feeds one façade operation into the exported counters.
// A nil err counts as success.
func (c *Collector) RecordOperation(op OperationType, duration time.Duration, bytes int64, err error) {
	if !c.cfg.Enabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.opCounter.WithLabelValues(string(op), status).Inc()
	c.opDuration.WithLabelValues(string(op)).Observe(duration.Seconds())
	if bytes > 0 {
		c.opBytes.WithLabelValues(string(op)).Observe(float64(bytes))
	}
}

// SetTierSource registers the tier manager's snapshot function; it is
// sampled on every refresh.
func (c *Collector) SetTierSource(fn func() TierSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tierSource = fn
}

// AddCacheSource registers a named cache's snapshot function.
func (c *Collector) AddCacheSource(name string, fn func() CacheSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheSources[name] = fn
}

// Refresh pulls every registered source into the exported gauges. Start's
// background loop calls it on UpdateInterval; tests call it directly.
func (c *Collector) Refresh() {
	if !c.cfg.Enabled {
		return
	}
	c.mu.Lock()
	tierSource := c.tierSource
	sources := make(map[string]func() CacheSnapshot, len(c.cacheSources))
	for name, fn := range c.cacheSources {
		sources[name] = fn
	}
	c.mu.Unlock()

	if tierSource != nil {
		snap := tierSource()
		c.tierHotPages.Set(float64(snap.HotPages))
		c.tierCounters.WithLabelValues("attempt").Set(float64(snap.TotalAttempts))
		c.tierCounters.WithLabelValues("success").Set(float64(snap.SuccessfulPromotions))
		c.tierCounters.WithLabelValues("failure").Set(float64(snap.FailedPromotions))
		c.tierCounters.WithLabelValues("blocked").Set(float64(snap.BlockedByCapacity))
		c.tierCounters.WithLabelValues("eviction").Set(float64(snap.EvictedForPromotion))
		c.tierLatencyMs.Set(snap.AvgPromotionLatencyMs)
	}
	for name, fn := range sources {
		snap := fn()
		c.cacheGauges.WithLabelValues(name, "hits").Set(float64(snap.Hits))
		c.cacheGauges.WithLabelValues(name, "misses").Set(float64(snap.Misses))
		c.cacheGauges.WithLabelValues(name, "evictions").Set(float64(snap.Evictions))
		c.cacheGauges.WithLabelValues(name, "entries").Set(float64(snap.EntryCount))
		c.cacheGauges.WithLabelValues(name, "bytes").Set(float64(snap.TotalBytes))
	}
}

// Handler returns the HTTP mux Start serves, for callers embedding the
// endpoints in their own server.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(c.cfg.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/state", c.debugStateHandler)
	return mux
}

// Start serves /metrics, /health and /debug/state and begins the periodic
// source refresh. The refresh loop stops when ctx is canceled; the HTTP
// server stops when Stop is called.
func (c *Collector) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.cfg.Port),
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(c.cfg.UpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Refresh()
			}
		}
	}()

	c.Refresh()
	return nil
}

// Stop shuts the HTTP server down.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"healthy","uptime":%q}`, time.Since(c.started).Round(time.Second))
}

// debugStateHandler dumps the latest source snapshots as JSON, refreshing
// them first so the dump is current rather than one tick stale.
func (c *Collector) debugStateHandler(w http.ResponseWriter, r *http.Request) {
	c.Refresh()

	c.mu.Lock()
	tierSource := c.tierSource
	names := make([]string, 0, len(c.cacheSources))
	for name := range c.cacheSources {
		names = append(names, name)
	}
	sort.Strings(names)
	caches := make(map[string]CacheSnapshot, len(names))
	for _, name := range names {
		caches[name] = c.cacheSources[name]()
	}
	c.mu.Unlock()

	state := struct {
		Uptime string                   `json:"uptime"`
		Tier   *TierSnapshot            `json:"tier,omitempty"`
		Caches map[string]CacheSnapshot `json:"caches"`
	}{
		Uptime: time.Since(c.started).Round(time.Second).String(),
		Caches: caches,
	}
	if tierSource != nil {
		snap := tierSource()
		state.Tier = &snap
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}
