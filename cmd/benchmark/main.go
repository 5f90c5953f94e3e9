// Command benchmark measures detection throughput and latency of the configured model over a
// directory of images, writing JSON and CSV results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvr-ai/go-detect/benchmark"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to the YAML configuration file")
		modelName   = flag.String("model", "", "Model name, overrides model.name")
		modelPath   = flag.String("model-path", "", "Model file, overrides model.path")
		imagesDir   = flag.String("images", "", "Directory of benchmark images (required)")
		limit       = flag.Int("limit", 0, "Maximum number of images to load, 0 for all")
		iterations  = flag.Int("iterations", 200, "Measured detections per scenario")
		warmup      = flag.Int("warmup", 10, "Warmup detections per scenario")
		concurrency = flag.Int("concurrency", 1, "Goroutines calling Detect")
		outputDir   = flag.String("output", "./benchmark_results", "Output directory for results")
		timeout     = flag.Duration("timeout", 30*time.Minute, "Benchmark timeout")
	)
	flag.Parse()

	if *imagesDir == "" {
		fmt.Fprintln(os.Stderr, "benchmark images are required (-images)")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *modelName != "" {
		cfg.Model.Name = model.Name(*modelName)
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	scenario := benchmark.Scenario{
		Name:        fmt.Sprintf("%s-c%d", cfg.Model.Name, *concurrency),
		Iterations:  *iterations,
		WarmupRuns:  *warmup,
		Concurrency: *concurrency,
	}
	if err := run(ctx, cfg, scenario, *imagesDir, *limit, *outputDir, log); err != nil {
		log.Error("benchmark failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, scenario benchmark.Scenario, imagesDir string, limit int,
	outputDir string, log *zap.Logger,
) error {
	corpus, err := benchmark.LoadCorpus(imagesDir, limit)
	if err != nil {
		return err
	}
	log.Info("benchmark corpus loaded", zap.String("dir", imagesDir), zap.Int("frames", len(corpus)))

	descriptor, err := cfg.Descriptor()
	if err != nil {
		return errors.Wrap(err, "model descriptor")
	}
	engine, err := inference.NewEngine(cfg.EngineConfig(), descriptor, log)
	if err != nil {
		return errors.Wrap(err, "open engine")
	}
	session, err := detector.NewSession(descriptor, engine, cfg.NMSConfig())
	if err != nil {
		_ = engine.Close()
		return err
	}

	d := detector.New(session, detector.WithLogger(log))
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn("close detector", zap.Error(err))
		}
	}()

	suite := benchmark.NewSuite(d, corpus, log)
	if _, err := suite.Run(ctx, scenario); err != nil {
		return err
	}

	jsonPath, csvPath, err := benchmark.SaveResults(outputDir, suite.Results(), time.Now())
	if err != nil {
		return err
	}
	log.Info("results saved", zap.String("results", jsonPath), zap.String("summary", csvPath))
	return nil
}
