// Package detector - Runs a detection model on images and post-processes its output.
package detector

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrBusy is returned by TryDetect while another detection is in flight.
	ErrBusy = errors.New("detection in progress")
	// ErrNoSession is returned when no Session has been installed.
	ErrNoSession = errors.New("no model session")
)

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithStats records every detection into stats.
func WithStats(stats *profiler.Stats) Option {
	return func(d *Detector) {
		d.stats = stats
	}
}

// Detector runs the active Session on images. At most one detection runs at a time; Swap
// waits for it to finish before installing a new Session, so a detection always sees one
// consistent Session.
type Detector struct {
	busy    sync.Mutex
	session *Session

	logger *zap.Logger
	stats  *profiler.Stats
}

// New creates a Detector. session may be nil and installed later with Swap.
func New(session *Session, opts ...Option) *Detector {
	d := &Detector{
		session: session,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs the active Session on img, waiting for any detection in flight.
//
// Arguments:
//   - ctx: The context passed to the inference engine.
//   - img: The image to detect objects in.
//
// Returns:
//   - *Result: The surviving, named recognitions and timings.
//   - error: ErrNoSession, an engine error, or a post-processing error (ErrShapeMismatch,
//     ErrConfigInconsistency, ErrClassOutOfRange).
func (d *Detector) Detect(ctx context.Context, img image.Image) (*Result, error) {
	d.busy.Lock()
	defer d.busy.Unlock()

	return d.detect(ctx, img)
}

// TryDetect is Detect without waiting: it returns ErrBusy immediately if a detection is in
// flight, so a capture loop can drop the frame.
func (d *Detector) TryDetect(ctx context.Context, img image.Image) (*Result, error) {
	if !d.busy.TryLock() {
		if d.stats != nil {
			d.stats.RecordDropped()
		}
		d.logger.Debug("frame dropped, detection in progress")
		return nil, ErrBusy
	}
	defer d.busy.Unlock()

	return d.detect(ctx, img)
}

// Swap installs next as the active Session after any detection in flight finishes, and
// returns the previous Session for the caller to close. Statistics are reset.
func (d *Detector) Swap(next *Session) *Session {
	d.busy.Lock()
	defer d.busy.Unlock()

	prev := d.session
	d.session = next
	if d.stats != nil {
		d.stats.Reset()
	}

	if next != nil {
		desc := next.Descriptor()
		d.logger.Info("model session installed",
			zap.String("model", string(desc.Name())),
			zap.Ints("output", desc.OutputShape()),
			zap.String("precision", string(desc.Precision())),
			zap.Int("classes", desc.NumClasses()),
		)
	} else {
		d.logger.Info("model session removed")
	}
	return prev
}

// Session returns the active Session, or nil.
func (d *Detector) Session() *Session {
	d.busy.Lock()
	defer d.busy.Unlock()
	return d.session
}

// Close closes the active Session and removes it.
func (d *Detector) Close() error {
	prev := d.Swap(nil)
	if prev == nil {
		return nil
	}
	return prev.Close()
}

// detect must be called with busy held.
func (d *Detector) detect(ctx context.Context, img image.Image) (*Result, error) {
	start := time.Now()

	result, err := d.run(ctx, img, start)
	if err != nil {
		if d.stats != nil {
			d.stats.RecordFailure()
		}
		d.logger.Warn("detection failed", zap.Error(err))
		return nil, err
	}

	if d.stats != nil {
		d.stats.RecordFrame(result.InferenceDuration, result.TotalDuration)
	}
	d.logger.Debug("detection complete",
		zap.Int("recognitions", len(result.Recognitions)),
		zap.Duration("inference", result.InferenceDuration),
		zap.Duration("total", result.TotalDuration),
	)
	return result, nil
}

func (d *Detector) run(ctx context.Context, img image.Image, start time.Time) (*Result, error) {
	s := d.session
	if s == nil {
		return nil, ErrNoSession
	}

	input, err := inference.PrepareInput(img, s.descriptor, s.engine.Layout())
	if err != nil {
		return nil, errors.Wrap(err, "prepare input")
	}

	inferenceStart := time.Now()
	output, err := s.engine.Run(ctx, input)
	inferenceDuration := time.Since(inferenceStart)
	if err != nil {
		return nil, errors.Wrap(err, "run inference")
	}

	size := images.SizeOf(img)
	recognitions, err := postprocess.PostProcess(output, s.descriptor, size, s.config)
	if err != nil {
		return nil, err
	}

	return &Result{
		Model:             s.descriptor.Name(),
		ImageSize:         size,
		Recognitions:      recognitions,
		InferenceDuration: inferenceDuration,
		TotalDuration:     time.Since(start),
	}, nil
}
