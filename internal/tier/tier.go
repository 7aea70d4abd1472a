// Package tier implements the hot/warm/cold page tier manager: an
// LRU-bounded hot store for warm pages, access-threshold promotion from
// cold, and safe copy-before-delete promotion with an in-flight guard
// and the promotion metrics counters.
package tier

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/posixfs/posixfs/internal/objectstore"
	"github.com/posixfs/posixfs/pkg/errno"
)

// Tier is a page's current placement.
type Tier string

const (
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Meta is a page's tier-management metadata.
type Meta struct {
	PageID       string
	BlobID       string
	PageIndex    int
	Tier         Tier
	AccessCount  int64
	LastAccessAt time.Time
}

// Metrics are the documented tier-manager counters.
type Metrics struct {
	TotalPromotionAttempts int64
	SuccessfulPromotions   int64
	FailedPromotions       int64
	BlockedByCapacity      int64
	EvictedForPromotion    int64
	AvgPromotionLatencyMs  float64
}

// PromoteResult reports the outcome of a PromotePage call.
type PromoteResult struct {
	Promoted bool
	Blocked  bool
}

// Options configures a Manager.
type Options struct {
	MaxHotPages     int
	AccessThreshold int64
	Enabled         bool
}

// Manager is the hot/warm/cold tier manager. It satisfies page.Accessor so
// a page.Store can drive it directly.
type Manager struct {
	cold objectstore.ObjectStoreClient

	maxHotPages     int
	accessThreshold int64
	enabled         bool

	mu        sync.Mutex
	hot       map[string][]byte
	meta      map[string]*Meta
	promoting map[string]bool
	latencies []time.Duration
	metrics   Metrics
}

// NewManager builds a Manager backed by cold.
func NewManager(cold objectstore.ObjectStoreClient, opts Options) *Manager {
	if opts.MaxHotPages <= 0 {
		opts.MaxHotPages = 1024
	}
	if opts.AccessThreshold <= 0 {
		opts.AccessThreshold = 3
	}
	return &Manager{
		cold:            cold,
		maxHotPages:     opts.MaxHotPages,
		accessThreshold: opts.AccessThreshold,
		enabled:         opts.Enabled,
		hot:             make(map[string][]byte),
		meta:            make(map[string]*Meta),
		promoting:       make(map[string]bool),
	}
}

func pageIDParts(pageID string) (blobID string, pageIndex int) {
	// pageID is "<blobID>:<index>"; blobID itself may contain ':',
	// so split on the last separator.
	for i := len(pageID) - 1; i >= 0; i-- {
		if pageID[i] == ':' {
			fmt.Sscanf(pageID[i+1:], "%d", &pageIndex)
			return pageID[:i], pageIndex
		}
	}
	return pageID, 0
}

// AccessPage implements page.Accessor. It increments
// access_count and last_access_at, reads from hot or cold per current
// tier, and best-effort promotes on a cold read once access_threshold is
// met and hot has free capacity.
func (m *Manager) AccessPage(ctx context.Context, pageID string) ([]byte, error) {
	m.mu.Lock()
	meta, ok := m.meta[pageID]
	if !ok {
		blobID, idx := pageIDParts(pageID)
		meta = &Meta{PageID: pageID, BlobID: blobID, PageIndex: idx, Tier: TierCold}
		m.meta[pageID] = meta
	}
	meta.AccessCount++
	meta.LastAccessAt = time.Now()
	tier := meta.Tier
	var hotData []byte
	if tier == TierWarm {
		hotData = m.hot[pageID]
	}
	eligible := m.enabled && tier == TierCold && meta.AccessCount >= m.accessThreshold
	hotFull := len(m.hot) >= m.maxHotPages
	shouldPromote := eligible && !hotFull
	if eligible && hotFull {
		// accessPage never evicts implicitly; an explicit PromotePage
		// call is the only path that frees hot capacity.
		m.metrics.BlockedByCapacity++
	}
	m.mu.Unlock()

	if tier == TierWarm {
		out := make([]byte, len(hotData))
		copy(out, hotData)
		return out, nil
	}

	data, err := m.cold.Get(ctx, pageID)
	if err != nil {
		return nil, errno.New(errno.ENOENT).WithSyscall("read").WithPath(pageID).WithCause(err)
	}

	if shouldPromote {
		// Best-effort: failures here must not invalidate the data
		// already read.
		_, _ = m.PromotePage(ctx, pageID)
	}
	return data, nil
}

// WritePage implements page.Accessor. A fresh write always lands in the
// hot tier as warm.
func (m *Manager) WritePage(ctx context.Context, pageID string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	meta, ok := m.meta[pageID]
	if !ok {
		blobID, idx := pageIDParts(pageID)
		meta = &Meta{PageID: pageID, BlobID: blobID, PageIndex: idx}
		m.meta[pageID] = meta
	}
	meta.Tier = TierWarm
	meta.LastAccessAt = time.Now()
	m.hot[pageID] = buf
	m.mu.Unlock()

	return nil
}

// DeletePage implements page.Accessor, removing the page from both tiers.
func (m *Manager) DeletePage(ctx context.Context, pageID string) error {
	m.mu.Lock()
	delete(m.hot, pageID)
	delete(m.meta, pageID)
	m.mu.Unlock()

	if err := m.cold.Delete(ctx, pageID); err != nil {
		return err
	}
	return nil
}

// GetPageMeta returns a copy of pageID's metadata, if known.
func (m *Manager) GetPageMeta(pageID string) (Meta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.meta[pageID]
	if !ok {
		return Meta{}, false
	}
	return *meta, true
}

// UpdatePageMeta overwrites pageID's metadata.
func (m *Manager) UpdatePageMeta(pageID string, meta Meta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := meta
	m.meta[pageID] = &cp
}

// GetMetrics returns a copy of the manager's counters.
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// PromotePage runs the safe copy-before-delete promotion algorithm.
// Promoting an already-warm page is a no-op
// returning {Promoted:false}. A disabled manager never promotes.
func (m *Manager) PromotePage(ctx context.Context, pageID string) (PromoteResult, error) {
	if !m.enabled {
		return PromoteResult{}, nil
	}

	m.mu.Lock()
	if m.promoting[pageID] {
		m.mu.Unlock()
		return PromoteResult{}, nil
	}
	meta, ok := m.meta[pageID]
	if ok && meta.Tier == TierWarm {
		m.mu.Unlock()
		return PromoteResult{Promoted: false}, nil
	}
	m.promoting[pageID] = true
	m.mu.Unlock()

	start := time.Now()
	defer func() {
		m.mu.Lock()
		delete(m.promoting, pageID)
		m.mu.Unlock()
	}()

	m.mu.Lock()
	m.metrics.TotalPromotionAttempts++
	needsEviction := len(m.hot) >= m.maxHotPages
	m.mu.Unlock()

	if needsEviction {
		if blocked := m.evictOneForPromotion(ctx); blocked {
			m.mu.Lock()
			m.metrics.BlockedByCapacity++
			m.mu.Unlock()
			return PromoteResult{Blocked: true}, nil
		}
	}

	data, err := m.cold.Get(ctx, pageID)
	if err != nil {
		m.mu.Lock()
		m.metrics.FailedPromotions++
		m.mu.Unlock()
		return PromoteResult{}, fmt.Errorf("tier: promote %s: read cold copy: %w", pageID, err)
	}

	m.mu.Lock()
	m.hot[pageID] = data
	m.mu.Unlock()

	m.mu.Lock()
	meta, ok = m.meta[pageID]
	if !ok {
		blobID, idx := pageIDParts(pageID)
		meta = &Meta{PageID: pageID, BlobID: blobID, PageIndex: idx}
		m.meta[pageID] = meta
	}
	meta.Tier = TierWarm
	meta.LastAccessAt = time.Now()
	m.mu.Unlock()

	m.mu.Lock()
	m.metrics.SuccessfulPromotions++
	m.latencies = append(m.latencies, time.Since(start))
	m.recomputeAvgLatencyLocked()
	m.mu.Unlock()

	return PromoteResult{Promoted: true}, nil
}

// evictOneForPromotion evicts the LRU warm page to free hot-tier capacity
// for an incoming promotion, returning true when no evictable page exists
// (blocked-by-capacity).
func (m *Manager) evictOneForPromotion(ctx context.Context) (blocked bool) {
	m.mu.Lock()
	var victimID string
	var oldest time.Time
	for id, meta := range m.meta {
		if meta.Tier != TierWarm {
			continue
		}
		if victimID == "" || meta.LastAccessAt.Before(oldest) {
			victimID = id
			oldest = meta.LastAccessAt
		}
	}
	if victimID == "" {
		m.mu.Unlock()
		return true
	}
	victimData := m.hot[victimID]
	m.mu.Unlock()

	blobID, idx := pageIDParts(victimID)
	metadata := map[string]string{
		"pageId":    victimID,
		"blobId":    blobID,
		"pageIndex": strconv.Itoa(idx),
	}
	if err := m.cold.Put(ctx, victimID, victimData, metadata); err != nil {
		return true
	}

	m.mu.Lock()
	delete(m.hot, victimID)
	if meta, ok := m.meta[victimID]; ok {
		meta.Tier = TierCold
	}
	m.metrics.EvictedForPromotion++
	m.mu.Unlock()

	return false
}

func (m *Manager) recomputeAvgLatencyLocked() {
	if len(m.latencies) == 0 {
		m.metrics.AvgPromotionLatencyMs = 0
		return
	}
	var total time.Duration
	for _, d := range m.latencies {
		total += d
	}
	m.metrics.AvgPromotionLatencyMs = float64(total.Milliseconds()) / float64(len(m.latencies))
}

// HotCount returns the current number of pages resident in the hot tier.
func (m *Manager) HotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hot)
}
