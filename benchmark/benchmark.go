// Package benchmark - Measures detection throughput and latency over a corpus of frames.
package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Scenario defines one benchmark run.
type Scenario struct {
	Name string `json:"name" yaml:"name"`
	// Iterations is the number of measured detections. Frames are reused round robin.
	Iterations int `json:"iterations" yaml:"iterations"`
	// WarmupRuns are detections run before measuring.
	WarmupRuns int `json:"warmup_runs" yaml:"warmup_runs"`
	// Concurrency is the number of goroutines calling Detect. Detections are serialized by the
	// detector, so values above 1 measure contention.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// Suite runs scenarios against a Detector.
type Suite struct {
	detector *detector.Detector
	corpus   []image.Image
	logger   *zap.Logger

	mu      sync.RWMutex
	results []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - d: The detector to measure. Its active session decides the model.
//   - corpus: The frames to detect on. Must not be empty.
//   - logger: Receives a line per completed scenario.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(d *detector.Detector, corpus []image.Image, logger *zap.Logger) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suite{detector: d, corpus: corpus, logger: logger}
}

// LoadCorpus decodes up to limit frames of a directory in frame order. limit <= 0 loads all.
func LoadCorpus(dir string, limit int) ([]image.Image, error) {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	corpus := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := f.Load()
		if err != nil {
			return nil, err
		}
		corpus = append(corpus, img)
	}
	return corpus, nil
}

// Run executes one scenario and records its metrics.
//
// Detection errors are counted, not returned; only a cancelled context or an invalid
// scenario stops the run.
//
// Arguments:
//   - ctx: Cancels the run between detections.
//   - scenario: The scenario to run.
//
// Returns:
//   - *PerformanceMetrics: The metrics of the run.
//   - error: An error if the scenario is invalid, the corpus is empty or ctx is cancelled.
func (s *Suite) Run(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if len(s.corpus) == 0 {
		return nil, errors.New("empty benchmark corpus")
	}
	if scenario.Iterations <= 0 {
		return nil, errors.Errorf("scenario %s: iterations must be > 0, got %d", scenario.Name, scenario.Iterations)
	}
	if scenario.Concurrency <= 0 {
		scenario.Concurrency = 1
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, _ = s.detector.Detect(ctx, s.corpus[i%len(s.corpus)])
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	var (
		mu         sync.Mutex
		inference  = make([]time.Duration, 0, scenario.Iterations)
		total      = make([]time.Duration, 0, scenario.Iterations)
		detections int
		failures   int
		next       int
	)
	take := func() (int, bool) {
		mu.Lock()
		defer mu.Unlock()
		if next == scenario.Iterations {
			return 0, false
		}
		next++
		return next - 1, true
	}

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < scenario.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				i, ok := take()
				if !ok {
					return
				}

				result, err := s.detector.Detect(ctx, s.corpus[i%len(s.corpus)])

				mu.Lock()
				if err != nil {
					failures++
				} else {
					inference = append(inference, result.InferenceDuration)
					total = append(total, result.TotalDuration)
					detections += len(result.Recognitions)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	metrics := PerformanceMetrics{
		RunID:           uuid.New().String(),
		Scenario:        scenario,
		Timestamp:       start,
		TotalDuration:   elapsed,
		FramesPerSecond: float64(len(total)) / elapsed.Seconds(),
		Inference:       summarize(inference),
		Total:           summarize(total),
		MemoryStats:     memoryDelta(startMem, endMem),
		NumCPU:          runtime.NumCPU(),
		DetectionCount:  detections,
		Errors:          failures,
		ErrorRate:       float64(failures) / float64(scenario.Iterations),
	}

	s.mu.Lock()
	s.results = append(s.results, metrics)
	s.mu.Unlock()

	s.logger.Info("scenario completed",
		zap.String("run_id", metrics.RunID),
		zap.String("scenario", scenario.Name),
		zap.Float64("fps", metrics.FramesPerSecond),
		zap.Duration("inference_p50", metrics.Inference.P50),
		zap.Duration("inference_p95", metrics.Inference.P95),
		zap.Int("detections", detections),
		zap.Int("errors", failures),
	)
	return &metrics, nil
}

// RunAll executes scenarios in order, skipping failed ones.
func (s *Suite) RunAll(ctx context.Context, scenarios []Scenario) error {
	for _, scenario := range scenarios {
		if _, err := s.Run(ctx, scenario); err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.logger.Warn("scenario failed", zap.String("scenario", scenario.Name), zap.Error(err))
		}
	}
	return nil
}

// Results returns all benchmark results
func (s *Suite) Results() []PerformanceMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]PerformanceMetrics, len(s.results))
	copy(results, s.results)
	return results
}

// SaveResults writes results as JSON and a CSV summary into dir, named after now.
//
// Returns:
//   - string: The JSON file path.
//   - string: The CSV file path.
//   - error: An error if a file cannot be written.
func SaveResults(dir string, results []PerformanceMetrics, now time.Time) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", errors.Wrap(err, "create output directory")
	}

	timestamp := now.Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(dir, fmt.Sprintf("benchmark_results_%s.json", timestamp))
	summaryFile := filepath.Join(dir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "marshal results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", "", errors.Wrap(err, "write results")
	}

	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", "", errors.Wrap(err, "write summary")
	}
	return resultsFile, summaryFile, nil
}

func saveSummaryCSV(path string, results []PerformanceMetrics) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	ms := func(d time.Duration) string {
		return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 2, 64)
	}

	w := csv.NewWriter(file)
	_ = w.Write([]string{
		"scenario", "iterations", "fps", "inference_mean_ms", "inference_p95_ms",
		"total_mean_ms", "total_p95_ms", "alloc_mb", "detections", "error_rate",
	})
	for _, r := range results {
		_ = w.Write([]string{
			r.Scenario.Name,
			strconv.Itoa(r.Scenario.Iterations),
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			ms(r.Inference.Mean),
			ms(r.Inference.P95),
			ms(r.Total.Mean),
			ms(r.Total.P95),
			strconv.FormatFloat(float64(r.MemoryStats.TotalAllocBytes)/(1024*1024), 'f', 2, 64),
			strconv.Itoa(r.DetectionCount),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		})
	}
	w.Flush()
	return w.Error()
}
