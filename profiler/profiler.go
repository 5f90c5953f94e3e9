// Package profiler - Frame rate and inference latency statistics for a detection loop.
package profiler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults for Options.
const (
	DefaultFPSWindow        = 2 * time.Second
	DefaultInferenceSamples = 200
)

// Options configures Stats.
type Options struct {
	// FPSWindow is the length of the window frame rate is measured over (default: 2s).
	FPSWindow time.Duration `json:"fps_window" yaml:"fps_window"`
	// InferenceSamples is the number of inference times averaged per block (default: 200).
	InferenceSamples int `json:"inference_samples" yaml:"inference_samples"`
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	// FPS of the last completed window. 0 until a window completes.
	FPS float64 `json:"fps"`
	// MeanInference of the last completed block of samples. 0 until a block completes.
	MeanInference time.Duration `json:"mean_inference"`
	// BlockProgress is the number of samples collected towards the next block.
	BlockProgress int `json:"block_progress"`
	// BlockSize is the number of samples per block.
	BlockSize int `json:"block_size"`
	// LastInference and LastTotal are the timings of the most recent frame.
	LastInference time.Duration `json:"last_inference"`
	LastTotal     time.Duration `json:"last_total"`
	// MinInference and MaxInference cover every frame since the last Reset.
	MinInference time.Duration `json:"min_inference"`
	MaxInference time.Duration `json:"max_inference"`
	// Frames, Dropped and Failed count frames since the last Reset.
	Frames  int64 `json:"frames"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// Fields returns the snapshot as zap fields.
func (s Snapshot) Fields() []zap.Field {
	return []zap.Field{
		zap.Float64("fps", s.FPS),
		zap.Duration("mean_inference", s.MeanInference),
		zap.Int("block_progress", s.BlockProgress),
		zap.Int("block_size", s.BlockSize),
		zap.Duration("last_inference", s.LastInference),
		zap.Duration("last_total", s.LastTotal),
		zap.Duration("min_inference", s.MinInference),
		zap.Duration("max_inference", s.MaxInference),
		zap.Int64("frames", s.Frames),
		zap.Int64("dropped", s.Dropped),
		zap.Int64("failed", s.Failed),
	}
}

// Stats tracks frame rate and inference latency. It is safe for concurrent use.
type Stats struct {
	mu  sync.Mutex
	now func() time.Time

	window      time.Duration
	windowStart time.Time
	windowCount int
	fps         float64

	blockSize int
	blockSum  time.Duration
	blockN    int
	blockMean time.Duration

	lastInference time.Duration
	lastTotal     time.Duration
	minInference  time.Duration
	maxInference  time.Duration

	frames  int64
	dropped int64
	failed  int64
}

// NewStats creates Stats with the given options; zero values take the defaults.
func NewStats(opts Options) *Stats {
	return newStats(opts, time.Now)
}

func newStats(opts Options, now func() time.Time) *Stats {
	if opts.FPSWindow <= 0 {
		opts.FPSWindow = DefaultFPSWindow
	}
	if opts.InferenceSamples <= 0 {
		opts.InferenceSamples = DefaultInferenceSamples
	}
	return &Stats{
		now:         now,
		window:      opts.FPSWindow,
		windowStart: now(),
		blockSize:   opts.InferenceSamples,
	}
}

// RecordFrame records one processed frame.
//
// Arguments:
//   - inference: The time spent in the inference engine.
//   - total: The time of the whole detection call.
func (s *Stats) RecordFrame(inference, total time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	s.lastInference = inference
	s.lastTotal = total
	if s.frames == 1 || inference < s.minInference {
		s.minInference = inference
	}
	if inference > s.maxInference {
		s.maxInference = inference
	}

	s.blockSum += inference
	s.blockN++
	if s.blockN >= s.blockSize {
		s.blockMean = s.blockSum / time.Duration(s.blockN)
		s.blockSum = 0
		s.blockN = 0
	}

	s.windowCount++
	now := s.now()
	if elapsed := now.Sub(s.windowStart); elapsed >= s.window {
		s.fps = float64(s.windowCount) / elapsed.Seconds()
		s.windowStart = now
		s.windowCount = 0
	}
}

// RecordDropped records a frame skipped because a detection was in flight.
func (s *Stats) RecordDropped() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

// RecordFailure records a frame whose detection failed.
func (s *Stats) RecordFailure() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

// Reset clears all statistics and starts a new FPS window.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.windowStart = s.now()
	s.windowCount = 0
	s.fps = 0
	s.blockSum, s.blockN, s.blockMean = 0, 0, 0
	s.lastInference, s.lastTotal = 0, 0
	s.minInference, s.maxInference = 0, 0
	s.frames, s.dropped, s.failed = 0, 0, 0
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		FPS:           s.fps,
		MeanInference: s.blockMean,
		BlockProgress: s.blockN,
		BlockSize:     s.blockSize,
		LastInference: s.lastInference,
		LastTotal:     s.lastTotal,
		MinInference:  s.minInference,
		MaxInference:  s.maxInference,
		Frames:        s.frames,
		Dropped:       s.dropped,
		Failed:        s.failed,
	}
}

// Report logs a snapshot of s every interval until ctx is done. It blocks; run it in its own
// goroutine.
func (s *Stats) Report(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("detection stats", s.Snapshot().Fields()...)
		}
	}
}
