// Command detect runs an object detection model on a camera, a video file or a directory of
// images, logging the recognitions and optionally drawing them in a window.
//
// TFLite models need a build with -tags tflite.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to the YAML configuration file")
		modelName  = flag.String("model", "", "Model name, overrides model.name")
		modelPath  = flag.String("model-path", "", "Model file, overrides model.path")
		videoPath  = flag.String("video", "", "Video file to read frames from")
		imagesDir  = flag.String("images", "", "Directory of images to read frames from")
		deviceID   = flag.Int("device", -1, "Camera device, overrides source.device")
		loop       = flag.Bool("loop", false, "Restart the video or image sequence when it ends")
		showWindow = flag.Bool("window", false, "Show frames with their recognitions")
		logLevel   = flag.String("log-level", "", "Log level, overrides log.level")
	)
	flag.Parse()

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
	if *videoPath != "" {
		cfg.Source.Video = *videoPath
	}
	if *imagesDir != "" {
		cfg.Source.Images = *imagesDir
	}
	if *deviceID >= 0 {
		cfg.Source.Device = *deviceID
	}
	cfg.Source.Loop = cfg.Source.Loop || *loop
	cfg.Source.Window = cfg.Source.Window || *showWindow
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
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

	if err := run(ctx, cfg, log); err != nil {
		log.Error("detect failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
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

	stats := profiler.NewStats(cfg.StatsOptions())
	d := detector.New(nil, detector.WithLogger(log), detector.WithStats(stats))
	d.Swap(session)
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn("close detector", zap.Error(err))
		}
	}()

	if cfg.Stats.ReportInterval > 0 {
		go stats.Report(ctx, cfg.Stats.ReportInterval, log)
	}

	source, err := openSource(cfg.Source, log)
	if err != nil {
		return err
	}
	defer source.Close()

	loop := &frameLoop{
		detector:        d,
		stats:           stats,
		log:             log,
		renderThreshold: cfg.Detection.RenderThreshold,
		// A live camera keeps producing frames while a detection runs, so frames arriving
		// meanwhile are dropped. Files are processed frame by frame.
		realtime: cfg.Source.Video == "" && cfg.Source.Images == "",
	}
	if cfg.Source.Window {
		loop.window = gocv.NewWindow("Detection")
		defer loop.window.Close()
	}

	return loop.run(ctx, source)
}

// frameLoop feeds frames from a Source to a Detector.
type frameLoop struct {
	detector        *detector.Detector
	stats           *profiler.Stats
	log             *zap.Logger
	window          *gocv.Window
	renderThreshold float32
	realtime        bool

	mu      sync.Mutex
	visible []postprocess.Recognition
}

func (l *frameLoop) run(ctx context.Context, source Source) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for index := 0; ; index++ {
		frame, err := source.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			l.log.Info("end of input", zap.Int("frames", index))
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			l.stats.RecordFailure()
			l.log.Warn("read frame", zap.Int("frame", index), zap.Error(err))
			continue
		}

		if l.realtime {
			wg.Add(1)
			go func(img image.Image, index int) {
				defer wg.Done()
				l.detect(ctx, img, index, l.detector.TryDetect)
			}(frame.Image, index)
		} else {
			l.detect(ctx, frame.Image, index, l.detector.Detect)
		}

		quit := l.show(frame)
		frame.Close()
		if quit {
			return nil
		}
	}
}

type detectFunc func(context.Context, image.Image) (*detector.Result, error)

// detect runs one detection and publishes its visible recognitions. On failure the previous
// recognitions stay on screen.
func (l *frameLoop) detect(ctx context.Context, img image.Image, index int, fn detectFunc) {
	result, err := fn(ctx, img)
	if err != nil {
		return
	}

	visible := result.Visible(l.renderThreshold)
	l.mu.Lock()
	l.visible = visible
	l.mu.Unlock()

	for _, r := range visible {
		l.log.Info("recognition",
			zap.Int("frame", index),
			zap.String("class", r.ClassName),
			zap.Float32("objectness", r.Objectness),
			zap.Float32("score", r.ClassScore),
			zap.Stringer("box", r.Box),
		)
	}
}

// show draws the latest recognitions over frame. It reports whether the user asked to quit.
func (l *frameLoop) show(frame *Frame) bool {
	if l.window == nil || frame.Mat.Empty() {
		return false
	}

	l.mu.Lock()
	visible := l.visible
	l.mu.Unlock()

	draw(&frame.Mat, visible, l.stats.Snapshot())
	l.window.IMShow(frame.Mat)

	switch l.window.WaitKey(1) {
	case 27, 'q':
		return true
	default:
		return false
	}
}
