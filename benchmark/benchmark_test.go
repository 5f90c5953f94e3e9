package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorgonia.org/tensor"
)

// mockEngine reports one detection per run and fails every failEvery-th run.
type mockEngine struct {
	mu        sync.Mutex
	runs      int
	failEvery int
}

func (e *mockEngine) Run(_ context.Context, _ tensor.Tensor) (tensor.Tensor, error) {
	e.mu.Lock()
	e.runs++
	runs := e.runs
	e.mu.Unlock()

	if e.failEvery > 0 && runs%e.failEvery == 0 {
		return nil, errors.New("mock failure")
	}

	backing := make([]float32, 8*10)
	for a, v := range []float32{0.5, 0.5, 0.2, 0.2, 0.9, 1, 0, 0} {
		backing[a*10] = v
	}
	return tensor.New(tensor.WithShape(1, 8, 10), tensor.WithBacking(backing)), nil
}

func (e *mockEngine) Layout() inference.Layout { return inference.LayoutNHWC }

func (e *mockEngine) Close() error { return nil }

func newSuite(t *testing.T, engine *mockEngine, logger *zap.Logger) *Suite {
	t.Helper()
	d, err := model.NewDescriptor(model.NewDescriptorArgs{
		Name:   "mock",
		Input:  images.Size{Width: 16, Height: 16},
		Output: []int{1, 8, 10},
		Labels: []string{"heart", "star", "moon"},
	})
	require.NoError(t, err)

	session, err := detector.NewSession(d, engine, postprocess.DefaultNMSConfig())
	require.NoError(t, err)

	corpus := []image.Image{
		image.NewRGBA(image.Rect(0, 0, 64, 48)),
		image.NewRGBA(image.Rect(0, 0, 32, 32)),
	}
	return NewSuite(detector.New(session), corpus, logger)
}

func TestSuite_Run(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	engine := &mockEngine{}
	suite := newSuite(t, engine, zap.New(core))

	metrics, err := suite.Run(context.Background(), Scenario{Name: "basic", Iterations: 20, WarmupRuns: 3})
	require.NoError(t, err)

	assert.Equal(t, 23, engine.runs)
	assert.Equal(t, 20, metrics.DetectionCount)
	assert.Zero(t, metrics.Errors)
	assert.Zero(t, metrics.ErrorRate)
	assert.Greater(t, metrics.FramesPerSecond, 0.0)
	assert.LessOrEqual(t, metrics.Inference.Min, metrics.Inference.P50)
	assert.LessOrEqual(t, metrics.Inference.P50, metrics.Inference.Max)
	assert.GreaterOrEqual(t, metrics.Total.Max, metrics.Inference.Max)
	assert.Len(t, metrics.RunID, 36)
	assert.Len(t, suite.Results(), 1)
	assert.Equal(t, 1, logs.FilterMessage("scenario completed").Len())
}

func TestSuite_RunCountsErrors(t *testing.T) {
	engine := &mockEngine{failEvery: 4}
	suite := newSuite(t, engine, nil)

	metrics, err := suite.Run(context.Background(), Scenario{Name: "flaky", Iterations: 20, Concurrency: 4})
	require.NoError(t, err)

	assert.Equal(t, 5, metrics.Errors)
	assert.Equal(t, 15, metrics.DetectionCount)
	assert.InDelta(t, 0.25, metrics.ErrorRate, 1e-9)
	assert.Equal(t, 4, metrics.Scenario.Concurrency)
}

func TestSuite_RunInvalid(t *testing.T) {
	suite := newSuite(t, &mockEngine{}, nil)

	_, err := suite.Run(context.Background(), Scenario{Name: "none"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = suite.Run(ctx, Scenario{Name: "cancelled", Iterations: 5, WarmupRuns: 1})
	assert.ErrorIs(t, err, context.Canceled)

	empty := NewSuite(nil, nil, nil)
	_, err = empty.Run(context.Background(), Scenario{Name: "empty", Iterations: 1})
	assert.Error(t, err)
}

func TestSuite_RunAllSkipsFailed(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	suite := newSuite(t, &mockEngine{}, zap.New(core))

	err := suite.RunAll(context.Background(), []Scenario{
		{Name: "broken"},
		{Name: "ok", Iterations: 2},
	})
	require.NoError(t, err)

	results := suite.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Scenario.Name)
	assert.Equal(t, 1, logs.FilterMessage("scenario failed").Len())
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, LatencyMetrics{}, summarize(nil))

	samples := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}
	m := summarize(samples)
	assert.Equal(t, time.Millisecond, m.Min)
	assert.Equal(t, 100*time.Millisecond, m.Max)
	assert.Equal(t, 50*time.Millisecond, m.P50)
	assert.Equal(t, 95*time.Millisecond, m.P95)
	assert.Equal(t, 99*time.Millisecond, m.P99)
	assert.Equal(t, 50500*time.Microsecond, m.Mean)
}

func TestSaveResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	results := []PerformanceMetrics{{
		Scenario:        Scenario{Name: "basic", Iterations: 10},
		FramesPerSecond: 12.5,
		Inference:       LatencyMetrics{Mean: 40 * time.Millisecond, P95: 55 * time.Millisecond},
		DetectionCount:  7,
	}}

	jsonPath, csvPath, err := SaveResults(dir, results, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "benchmark_results_2024-03-01_12-00-00.json"), jsonPath)

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded []PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, results, decoded)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"basic", "10", "12.50", "40.00", "55.00", "0.00", "0.00", "0.00", "7", "0.0000"}, rows[1])
}

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame-2.png", "frame-1.png", "frame-3.png"} {
		img := imaging.New(8, 4, image.Black.C)
		require.NoError(t, imaging.Save(img, filepath.Join(dir, name)))
	}

	corpus, err := LoadCorpus(dir, 2)
	require.NoError(t, err)
	assert.Len(t, corpus, 2)

	corpus, err = LoadCorpus(dir, 0)
	require.NoError(t, err)
	assert.Len(t, corpus, 3)
}
