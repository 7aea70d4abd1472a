package metrics

import (
	"sync"
	"time"
)

// OperationType identifies a façade-level filesystem operation.
type OperationType string

const (
	OpRead    OperationType = "read"
	OpWrite   OperationType = "write"
	OpAppend  OperationType = "append"
	OpUnlink  OperationType = "unlink"
	OpRename  OperationType = "rename"
	OpCopy    OperationType = "copy"
	OpMkdir   OperationType = "mkdir"
	OpRmdir   OperationType = "rmdir"
	OpReaddir OperationType = "readdir"
	OpStat    OperationType = "stat"
	OpLstat   OperationType = "lstat"
	OpChmod   OperationType = "chmod"
	OpChown   OperationType = "chown"
	OpSymlink OperationType = "symlink"
	OpLink    OperationType = "link"
	OpOpen    OperationType = "open"
)

// TierSourceType records which tier served an operation's data.
// Backends without tiering (Capabilities().Tiering == false) always
// report TierNone.
type TierSourceType string

const (
	TierHot  TierSourceType = "hot"
	TierWarm TierSourceType = "warm"
	TierCold TierSourceType = "cold"
	TierCAS  TierSourceType = "cas"
	TierNone TierSourceType = "none"
)

// DetailedOperationMetrics tracks metrics for a specific operation type.
type DetailedOperationMetrics struct {
	Count             int64         `json:"count"`
	TotalLatency      time.Duration `json:"total_latency"`
	MinLatency        time.Duration `json:"min_latency"`
	MaxLatency        time.Duration `json:"max_latency"`
	AverageLatency    time.Duration `json:"average_latency"`
	ErrorCount        int64         `json:"error_count"`
	BytesProcessed    int64         `json:"bytes_processed"`
	AvgBytesPerOp     float64       `json:"avg_bytes_per_op"`
	ThroughputMBps    float64       `json:"throughput_mbps"`
	LastOperationTime time.Time     `json:"last_operation_time"`
}

// FileOperationMetrics tracks metrics for a specific path.
type FileOperationMetrics struct {
	Path          string                                       `json:"path"`
	Operations    map[OperationType]*DetailedOperationMetrics   `json:"operations"`
	TotalAccesses int64                                         `json:"total_accesses"`
	FirstAccess   time.Time                                     `json:"first_access"`
	LastAccess    time.Time                                     `json:"last_access"`
	BytesRead     int64                                         `json:"bytes_read"`
	BytesWritten  int64                                         `json:"bytes_written"`
	AvgLatency    time.Duration                                 `json:"avg_latency"`
	mu            sync.RWMutex                                  `json:"-"`
}

// TierBreakdownMetrics tracks which tier served an operation type's reads.
type TierBreakdownMetrics struct {
	OperationType OperationType                    `json:"operation_type"`
	HotHits       int64                            `json:"hot_hits"`
	WarmHits      int64                            `json:"warm_hits"`
	ColdHits      int64                            `json:"cold_hits"`
	CASHits       int64                            `json:"cas_hits"`
	TotalRequests int64                            `json:"total_requests"`
	HotHitRate    float64                          `json:"hot_hit_rate"`
	AvgLatency    map[TierSourceType]time.Duration `json:"avg_latency"`
}

// DetailedPerformanceMetrics aggregates per-operation, per-file and
// per-tier latency/error/byte statistics for a mounted façade: rolling
// latency averages, a bounded top-files ranking, and a per-tier
// read/write breakdown keyed by which tier served each operation.
type DetailedPerformanceMetrics struct {
	mu                  sync.RWMutex
	OperationMetrics    map[OperationType]*DetailedOperationMetrics `json:"operation_metrics"`
	FileMetrics         map[string]*FileOperationMetrics            `json:"-"`
	TierBreakdown       map[OperationType]*TierBreakdownMetrics     `json:"tier_breakdown"`
	StartTime           time.Time                                   `json:"start_time"`
	LastUpdateTime      time.Time                                   `json:"last_update_time"`
	TotalOperations     int64                                       `json:"total_operations"`
	TotalErrors         int64                                       `json:"total_errors"`
	TotalBytesProcessed int64                                       `json:"total_bytes_processed"`
	OverallHotHitRate   float64                                     `json:"overall_hot_hit_rate"`
	OverallErrorRate    float64                                     `json:"overall_error_rate"`
	TopFilesEnabled     bool                                        `json:"top_files_enabled"`
	MaxTrackedFiles     int                                         `json:"max_tracked_files"`
}

// NewDetailedPerformanceMetrics creates an empty metrics aggregator.
// maxTrackedFiles bounds the per-file breakdown's memory use; trackFiles
// disables it entirely when false.
func NewDetailedPerformanceMetrics(maxTrackedFiles int, trackFiles bool) *DetailedPerformanceMetrics {
	return &DetailedPerformanceMetrics{
		OperationMetrics: make(map[OperationType]*DetailedOperationMetrics),
		FileMetrics:      make(map[string]*FileOperationMetrics),
		TierBreakdown:    make(map[OperationType]*TierBreakdownMetrics),
		StartTime:        time.Now(),
		LastUpdateTime:   time.Now(),
		TopFilesEnabled:  trackFiles,
		MaxTrackedFiles:  maxTrackedFiles,
	}
}

// RecordOperation records one façade call's outcome.
func (dpm *DetailedPerformanceMetrics) RecordOperation(
	opType OperationType,
	path string,
	latency time.Duration,
	bytes int64,
	tierSource TierSourceType,
	err error,
) {
	dpm.mu.Lock()
	defer dpm.mu.Unlock()

	now := time.Now()
	dpm.LastUpdateTime = now
	dpm.TotalOperations++
	dpm.TotalBytesProcessed += bytes

	if dpm.OperationMetrics[opType] == nil {
		dpm.OperationMetrics[opType] = &DetailedOperationMetrics{MinLatency: latency}
	}

	om := dpm.OperationMetrics[opType]
	om.Count++
	om.TotalLatency += latency
	om.LastOperationTime = now
	om.BytesProcessed += bytes

	if latency < om.MinLatency || om.MinLatency == 0 {
		om.MinLatency = latency
	}
	if latency > om.MaxLatency {
		om.MaxLatency = latency
	}
	om.AverageLatency = time.Duration(int64(om.TotalLatency) / om.Count)

	if err != nil {
		om.ErrorCount++
		dpm.TotalErrors++
	}
	if om.Count > 0 {
		om.AvgBytesPerOp = float64(om.BytesProcessed) / float64(om.Count)
	}
	if om.TotalLatency > 0 {
		seconds := om.TotalLatency.Seconds()
		om.ThroughputMBps = (float64(om.BytesProcessed) / (1024 * 1024)) / seconds
	}

	if tierSource != "" && tierSource != TierNone {
		dpm.updateTierBreakdown(opType, tierSource, latency)
	}

	if dpm.TopFilesEnabled && path != "" {
		dpm.updateFileMetrics(path, opType, latency, bytes, err)
	}

	dpm.updateOverallMetrics()
}

// GetOperationMetrics returns a copy of opType's metrics, if any were
// recorded.
func (dpm *DetailedPerformanceMetrics) GetOperationMetrics(opType OperationType) *DetailedOperationMetrics {
	dpm.mu.RLock()
	defer dpm.mu.RUnlock()

	if om, exists := dpm.OperationMetrics[opType]; exists {
		omCopy := *om
		return &omCopy
	}
	return nil
}

// GetTopFiles returns up to n of the most-accessed tracked files, most
// accessed first.
func (dpm *DetailedPerformanceMetrics) GetTopFiles(n int) []*FileOperationMetrics {
	dpm.mu.RLock()
	defer dpm.mu.RUnlock()

	if !dpm.TopFilesEnabled {
		return nil
	}

	files := make([]*FileOperationMetrics, 0, len(dpm.FileMetrics))
	for _, fm := range dpm.FileMetrics {
		files = append(files, &FileOperationMetrics{
			Path:          fm.Path,
			TotalAccesses: fm.TotalAccesses,
			FirstAccess:   fm.FirstAccess,
			LastAccess:    fm.LastAccess,
			BytesRead:     fm.BytesRead,
			BytesWritten:  fm.BytesWritten,
			AvgLatency:    fm.AvgLatency,
		})
	}

	for i := 0; i < len(files)-1; i++ {
		for j := i + 1; j < len(files); j++ {
			if files[j].TotalAccesses > files[i].TotalAccesses {
				files[i], files[j] = files[j], files[i]
			}
		}
	}

	if n > len(files) {
		n = len(files)
	}
	return files[:n]
}

// GetSummary returns a snapshot of the aggregate counters, suitable for
// JSON encoding or direct printing.
func (dpm *DetailedPerformanceMetrics) GetSummary() map[string]interface{} {
	dpm.mu.RLock()
	defer dpm.mu.RUnlock()

	uptime := time.Since(dpm.StartTime)

	return map[string]interface{}{
		"uptime_seconds":        uptime.Seconds(),
		"total_operations":      dpm.TotalOperations,
		"total_errors":          dpm.TotalErrors,
		"total_bytes_processed": dpm.TotalBytesProcessed,
		"overall_hot_hit_rate":  dpm.OverallHotHitRate,
		"overall_error_rate":    dpm.OverallErrorRate,
		"operations_per_second": float64(dpm.TotalOperations) / uptime.Seconds(),
		"throughput_mbps":       (float64(dpm.TotalBytesProcessed) / (1024 * 1024)) / uptime.Seconds(),
		"tracked_files_count":   len(dpm.FileMetrics),
		"last_update":           dpm.LastUpdateTime.Format(time.RFC3339),
	}
}

// Reset clears all recorded metrics and restarts the uptime clock.
func (dpm *DetailedPerformanceMetrics) Reset() {
	dpm.mu.Lock()
	defer dpm.mu.Unlock()

	dpm.OperationMetrics = make(map[OperationType]*DetailedOperationMetrics)
	dpm.FileMetrics = make(map[string]*FileOperationMetrics)
	dpm.TierBreakdown = make(map[OperationType]*TierBreakdownMetrics)
	dpm.StartTime = time.Now()
	dpm.LastUpdateTime = time.Now()
	dpm.TotalOperations = 0
	dpm.TotalErrors = 0
	dpm.TotalBytesProcessed = 0
	dpm.OverallHotHitRate = 0
	dpm.OverallErrorRate = 0
}

func (dpm *DetailedPerformanceMetrics) updateTierBreakdown(
	opType OperationType,
	source TierSourceType,
	latency time.Duration,
) {
	if dpm.TierBreakdown[opType] == nil {
		dpm.TierBreakdown[opType] = &TierBreakdownMetrics{
			OperationType: opType,
			AvgLatency:    make(map[TierSourceType]time.Duration),
		}
	}

	tb := dpm.TierBreakdown[opType]
	tb.TotalRequests++

	switch source {
	case TierHot:
		tb.HotHits++
	case TierWarm:
		tb.WarmHits++
	case TierCold:
		tb.ColdHits++
	case TierCAS:
		tb.CASHits++
	}

	if tb.TotalRequests > 0 {
		tb.HotHitRate = float64(tb.HotHits) / float64(tb.TotalRequests)
	}

	if tb.AvgLatency[source] == 0 {
		tb.AvgLatency[source] = latency
	} else {
		// 90/10 rolling average.
		tb.AvgLatency[source] = time.Duration(
			(int64(tb.AvgLatency[source])*9 + int64(latency)) / 10,
		)
	}
}

func (dpm *DetailedPerformanceMetrics) updateFileMetrics(
	path string,
	opType OperationType,
	latency time.Duration,
	bytes int64,
	err error,
) {
	if len(dpm.FileMetrics) >= dpm.MaxTrackedFiles && dpm.FileMetrics[path] == nil {
		return
	}

	if dpm.FileMetrics[path] == nil {
		dpm.FileMetrics[path] = &FileOperationMetrics{
			Path:        path,
			Operations:  make(map[OperationType]*DetailedOperationMetrics),
			FirstAccess: time.Now(),
		}
	}

	fm := dpm.FileMetrics[path]
	fm.mu.Lock()
	defer fm.mu.Unlock()

	fm.TotalAccesses++
	fm.LastAccess = time.Now()

	if opType == OpRead {
		fm.BytesRead += bytes
	} else if opType == OpWrite || opType == OpAppend {
		fm.BytesWritten += bytes
	}

	if fm.Operations[opType] == nil {
		fm.Operations[opType] = &DetailedOperationMetrics{MinLatency: latency}
	}

	opMetrics := fm.Operations[opType]
	opMetrics.Count++
	opMetrics.TotalLatency += latency
	opMetrics.BytesProcessed += bytes

	if latency < opMetrics.MinLatency || opMetrics.MinLatency == 0 {
		opMetrics.MinLatency = latency
	}
	if latency > opMetrics.MaxLatency {
		opMetrics.MaxLatency = latency
	}
	opMetrics.AverageLatency = time.Duration(int64(opMetrics.TotalLatency) / opMetrics.Count)

	if err != nil {
		opMetrics.ErrorCount++
	}

	totalOps := int64(0)
	totalLatency := time.Duration(0)
	for _, om := range fm.Operations {
		totalOps += om.Count
		totalLatency += om.TotalLatency
	}
	if totalOps > 0 {
		fm.AvgLatency = time.Duration(int64(totalLatency) / totalOps)
	}
}

func (dpm *DetailedPerformanceMetrics) updateOverallMetrics() {
	var hotHits, totalTiered int64
	for _, tb := range dpm.TierBreakdown {
		hotHits += tb.HotHits
		totalTiered += tb.TotalRequests
	}
	if totalTiered > 0 {
		dpm.OverallHotHitRate = float64(hotHits) / float64(totalTiered)
	}
	if dpm.TotalOperations > 0 {
		dpm.OverallErrorRate = float64(dpm.TotalErrors) / float64(dpm.TotalOperations)
	}
}
