//go:build !tflite

package inference

import (
	"context"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrTFLiteUnavailable is returned for TFLite models by binaries built without the tflite tag.
var ErrTFLiteUnavailable = errors.New("TFLite support not built in, rebuild with -tags tflite")

// TFLiteEngine is unavailable in this build.
type TFLiteEngine struct{}

// NewTFLiteEngine always fails with ErrTFLiteUnavailable.
func NewTFLiteEngine(cfg Config, _ *model.Descriptor) (*TFLiteEngine, error) {
	return nil, errors.Wrapf(ErrTFLiteUnavailable, "open %s", cfg.Path)
}

func (e *TFLiteEngine) Layout() Layout { return LayoutNHWC }

func (e *TFLiteEngine) Run(context.Context, tensor.Tensor) (tensor.Tensor, error) {
	return nil, ErrTFLiteUnavailable
}

func (e *TFLiteEngine) OutputQuantization() (model.Quantization, bool) {
	return model.Quantization{}, false
}

func (e *TFLiteEngine) Close() error { return nil }
