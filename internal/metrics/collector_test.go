package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := NewCollector(&Config{Enabled: true, Namespace: "posixfs", Path: "/metrics"})
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read scrape body: %v", err)
	}
	return string(body)
}

func TestNewCollectorNilConfigTakesDefaults(t *testing.T) {
	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector(nil): %v", err)
	}
	if !c.cfg.Enabled || c.cfg.Path != "/metrics" || c.cfg.Namespace != "posixfs" {
		t.Fatalf("defaults = %+v", c.cfg)
	}
}

func TestDisabledCollectorIsInert(t *testing.T) {
	c, err := NewCollector(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.RecordOperation(OpRead, time.Millisecond, 10, nil)
	c.Refresh()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start on disabled collector: %v", err)
	}
}

func TestRecordOperationExportsCounters(t *testing.T) {
	c := newTestCollector(t)
	c.RecordOperation(OpRead, 2*time.Millisecond, 512, nil)
	c.RecordOperation(OpRead, time.Millisecond, 0, errors.New("boom"))
	c.RecordOperation(OpWrite, time.Millisecond, 1024, nil)

	body := scrape(t, c)
	for _, want := range []string{
		`posixfs_fs_operations_total{op="read",status="success"} 1`,
		`posixfs_fs_operations_total{op="read",status="error"} 1`,
		`posixfs_fs_operations_total{op="write",status="success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape missing %q\n%s", want, body)
		}
	}
	if !strings.Contains(body, "posixfs_fs_operation_duration_seconds") {
		t.Fatalf("scrape missing the duration histogram")
	}
}

func TestRefreshSamplesTierSource(t *testing.T) {
	c := newTestCollector(t)
	c.SetTierSource(func() TierSnapshot {
		return TierSnapshot{
			HotPages:              12,
			SuccessfulPromotions:  4,
			BlockedByCapacity:     2,
			AvgPromotionLatencyMs: 1.5,
		}
	})
	c.Refresh()

	body := scrape(t, c)
	for _, want := range []string{
		`posixfs_tier_hot_pages 12`,
		`posixfs_tier_promotion_events{event="success"} 4`,
		`posixfs_tier_promotion_events{event="blocked"} 2`,
		`posixfs_tier_promotion_latency_ms 1.5`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape missing %q\n%s", want, body)
		}
	}
}

func TestRefreshSamplesCacheSources(t *testing.T) {
	c := newTestCollector(t)
	c.AddCacheSource("cas-objects", func() CacheSnapshot {
		return CacheSnapshot{Hits: 10, Misses: 3, EntryCount: 7, TotalBytes: 4096}
	})
	c.Refresh()

	body := scrape(t, c)
	for _, want := range []string{
		`posixfs_cache_state{cache="cas-objects",stat="hits"} 10`,
		`posixfs_cache_state{cache="cas-objects",stat="entries"} 7`,
		`posixfs_cache_state{cache="cas-objects",stat="bytes"} 4096`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape missing %q\n%s", want, body)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	c := newTestCollector(t)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"status":"healthy"`) {
		t.Fatalf("body = %s", body)
	}
}

func TestDebugStateDumpsSources(t *testing.T) {
	c := newTestCollector(t)
	c.SetTierSource(func() TierSnapshot { return TierSnapshot{HotPages: 3} })
	c.AddCacheSource("pattern", func() CacheSnapshot { return CacheSnapshot{EntryCount: 42} })

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL + "/debug/state")
	if err != nil {
		t.Fatalf("GET /debug/state: %v", err)
	}
	defer resp.Body.Close()

	var state struct {
		Tier   *TierSnapshot            `json:"tier"`
		Caches map[string]CacheSnapshot `json:"caches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Tier == nil || state.Tier.HotPages != 3 {
		t.Fatalf("tier = %+v, want HotPages=3", state.Tier)
	}
	if state.Caches["pattern"].EntryCount != 42 {
		t.Fatalf("caches = %+v", state.Caches)
	}
}

func TestConstLabelsAppearOnEverySeries(t *testing.T) {
	c, err := NewCollector(&Config{Enabled: true, Namespace: "posixfs", Path: "/metrics", Labels: map[string]string{"service": "posixfs"}})
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.RecordOperation(OpStat, time.Millisecond, 0, nil)
	body := scrape(t, c)
	if !strings.Contains(body, `service="posixfs"`) {
		t.Fatalf("scrape missing const label\n%s", body)
	}
}
