// Package inference - Inference engines that run a prepared input tensor through a model.
package inference

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Engine runs one forward pass of a detection model.
//
// Implementations are not required to support concurrent Run calls; callers serialize them.
type Engine interface {
	// Run feeds input (as built by PrepareInput) through the model and returns a copy of the
	// raw output tensor.
	Run(ctx context.Context, input tensor.Tensor) (tensor.Tensor, error)
	// Layout is the pixel layout the engine expects its input in.
	Layout() Layout
	// Close releases the native resources of the engine.
	Close() error
}

// EngineType is the type of the engine.
type EngineType string

const (
	// EngineONNX is the ONNX engine that uses the onnxruntime library.
	EngineONNX EngineType = "onnx"
	// EngineTFLite is the TensorFlow Lite engine that uses the tflite C library.
	EngineTFLite EngineType = "tflite"
)

// Engines is a list of all supported engines.
var Engines = []EngineType{EngineONNX, EngineTFLite}

// EngineTypeFromPath infers the engine type from a model file extension.
//
// Arguments:
//   - path: The model file path.
//
// Returns:
//   - EngineType: EngineONNX for ".onnx", EngineTFLite for ".tflite".
//   - error: An error for any other extension.
func EngineTypeFromPath(path string) (EngineType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".onnx":
		return EngineONNX, nil
	case ".tflite":
		return EngineTFLite, nil
	default:
		return "", errors.Errorf("cannot infer engine for model file %q", path)
	}
}

// Config selects and configures an engine.
type Config struct {
	// Type of the engine. Inferred from Path when empty.
	Type EngineType `json:"type" yaml:"type"`
	// Path to the model file.
	Path string `json:"path" yaml:"path"`
	// Threads used by the TFLite interpreter. 0 uses the library default.
	Threads int `json:"threads" yaml:"threads"`
	// InputName and OutputName are the ONNX graph tensor names.
	InputName  string `json:"input_name"  yaml:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name"`
	// ONNX Runtime session settings.
	Providers providers.Config `json:"providers" yaml:"providers"`
}

// NewEngine opens the model at cfg.Path with the engine cfg selects.
//
// Arguments:
//   - cfg: The engine configuration.
//   - d: The descriptor of the model at cfg.Path.
//   - logger: The logger for engine lifecycle events.
//
// Returns:
//   - Engine: The opened engine.
//   - error: An error if the engine type is unknown or the model could not be loaded.
func NewEngine(cfg Config, d *model.Descriptor, logger *zap.Logger) (Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	engineType := cfg.Type
	if engineType == "" {
		t, err := EngineTypeFromPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		engineType = t
	}

	var engine Engine
	switch engineType {
	case EngineONNX:
		e, err := NewONNXEngine(cfg, d, logger)
		if err != nil {
			return nil, err
		}
		engine = e
	case EngineTFLite:
		e, err := NewTFLiteEngine(cfg, d)
		if err != nil {
			return nil, err
		}
		checkQuantization(e, d, logger)
		engine = e
	default:
		return nil, errors.Errorf("unsupported engine %q", engineType)
	}

	logger.Info("engine ready",
		zap.String("engine", string(engineType)),
		zap.String("model", string(d.Name())),
		zap.String("path", cfg.Path),
		zap.Ints("output", d.OutputShape()),
	)
	return engine, nil
}

// checkQuantization warns when the output parameters stored in a TFLite model differ from the
// descriptor's. Decoding always uses the descriptor's.
func checkQuantization(e *TFLiteEngine, d *model.Descriptor, logger *zap.Logger) {
	stored, ok := e.OutputQuantization()
	declared, quantized := d.OutputQuant()
	if !ok || !quantized || stored == declared {
		return
	}
	logger.Warn("model output quantization differs from descriptor",
		zap.String("model", string(d.Name())),
		zap.Float32("stored_scale", stored.Scale),
		zap.Int32("stored_zero_point", stored.ZeroPoint),
		zap.Float32("declared_scale", declared.Scale),
		zap.Int32("declared_zero_point", declared.ZeroPoint),
	)
}

// checkContext returns ctx's error if it is already done.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// cloneTensor copies backing data into a new tensor with the given shape so callers may keep
// the result after the engine reuses its buffers.
func cloneTensor[T float32 | uint8 | int8](data []T, shape []int) tensor.Tensor {
	backing := make([]T, len(data))
	copy(backing, data)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
}
