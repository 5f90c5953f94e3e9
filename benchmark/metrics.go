package benchmark

import (
	"runtime"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PerformanceMetrics captures the outcome of one scenario.
type PerformanceMetrics struct {
	// RunID identifies the run in saved results.
	RunID           string         `json:"run_id"`
	Scenario        Scenario       `json:"scenario"`
	Timestamp       time.Time      `json:"timestamp"`
	TotalDuration   time.Duration  `json:"total_duration"`
	FramesPerSecond float64        `json:"frames_per_second"`
	Inference       LatencyMetrics `json:"inference"`
	// Total covers input preparation, inference and post-processing of one frame.
	Total          LatencyMetrics `json:"total"`
	MemoryStats    MemoryMetrics  `json:"memory_stats"`
	NumCPU         int            `json:"num_cpu"`
	DetectionCount int            `json:"detection_count"`
	Errors         int            `json:"errors"`
	ErrorRate      float64        `json:"error_rate"`
}

// LatencyMetrics summarizes a set of per-frame durations.
type LatencyMetrics struct {
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`
	Min  time.Duration `json:"min"`
	Max  time.Duration `json:"max"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// summarize computes latency metrics. An empty sample yields zero metrics.
func summarize(samples []time.Duration) LatencyMetrics {
	if len(samples) == 0 {
		return LatencyMetrics{}
	}

	x := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = float64(s)
	}
	sort.Float64s(x)

	quantile := func(p float64) time.Duration {
		return time.Duration(stat.Quantile(p, stat.Empirical, x, nil))
	}
	return LatencyMetrics{
		Mean: time.Duration(stat.Mean(x, nil)),
		P50:  quantile(0.5),
		P95:  quantile(0.95),
		P99:  quantile(0.99),
		Min:  time.Duration(x[0]),
		Max:  time.Duration(x[len(x)-1]),
	}
}

// memoryDelta reports the allocations between start and end.
func memoryDelta(start, end runtime.MemStats) MemoryMetrics {
	return MemoryMetrics{
		AllocBytes:      end.Alloc,
		TotalAllocBytes: end.TotalAlloc - start.TotalAlloc,
		SysBytes:        end.Sys,
		NumGC:           end.NumGC - start.NumGC,
		HeapAllocBytes:  end.HeapAlloc,
		HeapSysBytes:    end.HeapSys,
	}
}
