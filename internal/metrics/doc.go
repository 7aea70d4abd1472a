/*
Package metrics is the module's observability surface, in two halves.

Collector is the Prometheus exporter: façade operations recorded through
RecordOperation become counters and latency/byte histograms, while the
tier manager and the CAS/pattern caches are sampled through registered
snapshot functions (SetTierSource, AddCacheSource) on a fixed refresh
interval. Start serves /metrics, /health and /debug/state; Handler
returns the same mux for embedding into an existing server. Snapshot
sources are plain funcs returning TierSnapshot/CacheSnapshot values, so
the exporter stays import-free of the packages it observes.

DetailedPerformanceMetrics is the in-process aggregator the filesystem
façade carries (internal/filesystem.Facade.Metrics): per-operation
latency/error/byte statistics, a bounded per-file hot list, and a
per-tier read/write breakdown recording which tier served each
operation. It holds plain counters behind a mutex rather than Prometheus
types, so library consumers pay no exporter dependency unless they also
run a Collector.

Wiring both halves together:

	collector, _ := metrics.NewCollector(nil)
	collector.SetTierSource(func() metrics.TierSnapshot {
		m := tiers.GetMetrics()
		return metrics.TierSnapshot{
			HotPages:              tiers.HotCount(),
			TotalAttempts:         m.TotalPromotionAttempts,
			SuccessfulPromotions:  m.SuccessfulPromotions,
			FailedPromotions:      m.FailedPromotions,
			BlockedByCapacity:     m.BlockedByCapacity,
			EvictedForPromotion:   m.EvictedForPromotion,
			AvgPromotionLatencyMs: m.AvgPromotionLatencyMs,
		}
	})
	_ = collector.Start(ctx)
*/
package metrics
