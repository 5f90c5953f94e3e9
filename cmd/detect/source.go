package main

import (
	"context"
	"image"
	"io"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Frame is one captured image. Mat is kept for drawing when the source produced one.
type Frame struct {
	Image image.Image
	Mat   gocv.Mat
}

// Close releases the Mat.
func (f *Frame) Close() {
	if !f.Mat.Empty() {
		f.Mat.Close()
	}
}

// Source produces frames until io.EOF.
type Source interface {
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

// openSource opens the source cfg selects.
func openSource(cfg config.SourceConfig, logger *zap.Logger) (Source, error) {
	switch {
	case cfg.Images != "":
		files, err := util.LoadDirectoryImageFiles(cfg.Images)
		if err != nil {
			return nil, err
		}
		logger.Info("processing image sequence", zap.String("dir", cfg.Images), zap.Int("frames", len(files)))
		return &imageSource{files: files, loop: cfg.Loop}, nil
	case cfg.Video != "":
		capture, err := gocv.OpenVideoCapture(cfg.Video)
		if err != nil {
			return nil, errors.Wrapf(err, "open video %s", cfg.Video)
		}
		logger.Info("processing video", zap.String("path", cfg.Video), zap.Bool("loop", cfg.Loop))
		return &captureSource{capture: capture, loop: cfg.Loop, logger: logger}, nil
	default:
		capture, err := gocv.OpenVideoCapture(cfg.Device)
		if err != nil {
			return nil, errors.Wrapf(err, "open capture device %d", cfg.Device)
		}
		logger.Info("reading camera device", zap.Int("device", cfg.Device))
		return &captureSource{capture: capture, logger: logger}, nil
	}
}

// captureSource reads a camera or video file through OpenCV.
type captureSource struct {
	capture *gocv.VideoCapture
	loop    bool
	logger  *zap.Logger
}

func (s *captureSource) Next(ctx context.Context) (*Frame, error) {
	mat := gocv.NewMat()
	for rewound := false; ; {
		if err := ctx.Err(); err != nil {
			mat.Close()
			return nil, err
		}

		if ok := s.capture.Read(&mat); !ok {
			if !s.loop || rewound {
				mat.Close()
				return nil, io.EOF
			}
			s.logger.Debug("end of video, rewinding")
			s.capture.Set(gocv.VideoCapturePosFrames, 0)
			rewound = true
			continue
		}
		if mat.Empty() {
			continue
		}

		img, err := mat.ToImage()
		if err != nil {
			mat.Close()
			return nil, errors.Wrap(err, "convert frame")
		}
		return &Frame{Image: img, Mat: mat}, nil
	}
}

func (s *captureSource) Close() error {
	return s.capture.Close()
}

// imageSource decodes still images from a directory in frame order.
type imageSource struct {
	files []util.ImageFile
	next  int
	loop  bool
}

func (s *imageSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next == len(s.files) {
		if !s.loop {
			return nil, io.EOF
		}
		s.next = 0
	}

	file := s.files[s.next]
	s.next++

	img, err := file.Load()
	if err != nil {
		return nil, err
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.Wrapf(err, "convert frame %s", file.Path)
	}
	return &Frame{Image: img, Mat: mat}, nil
}

func (s *imageSource) Close() error { return nil }
