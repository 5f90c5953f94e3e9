package inference

import (
	"context"
	"os"
	"sync"

	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Default ONNX graph tensor names of YOLO exports.
const (
	DefaultONNXInputName  = "images"
	DefaultONNXOutputName = "output0"
)

var ortMu sync.Mutex

// initializeRuntime loads the ONNX Runtime shared library once per process.
func initializeRuntime() error {
	ortMu.Lock()
	defer ortMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	libPath := providers.GetSharedLibPath()
	if libPath == "" {
		return errors.New("no ONNX Runtime library for this platform")
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s (set %s)", libPath, providers.SharedLibEnv)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initialize ONNX Runtime environment")
	}
	return nil
}

// ONNXEngine runs float32 ONNX exports through ONNX Runtime. Input and output tensors are
// allocated once and reused by every Run.
type ONNXEngine struct {
	mu          sync.Mutex
	session     *ort.AdvancedSession
	input       *ort.Tensor[float32]
	output      *ort.Tensor[float32]
	outputShape []int
}

// NewONNXEngine creates an ONNX Runtime session for the model at cfg.Path.
//
// Arguments:
//   - cfg: The engine configuration. InputName and OutputName default to "images" and
//     "output0".
//   - d: The descriptor of the model. Quantized descriptors are rejected.
//   - logger: Receives execution provider fallbacks.
//
// Returns:
//   - *ONNXEngine: The engine.
//   - error: An error if the runtime, tensors or session could not be created.
func NewONNXEngine(cfg Config, d *model.Descriptor, logger *zap.Logger) (*ONNXEngine, error) {
	if d.IsQuantized() {
		return nil, errors.Wrapf(model.ErrConfigInconsistency,
			"model %s: ONNX engine supports float models only", d.Name())
	}
	if err := initializeRuntime(); err != nil {
		return nil, err
	}

	inputName, outputName := cfg.InputName, cfg.OutputName
	if inputName == "" {
		inputName = DefaultONNXInputName
	}
	if outputName == "" {
		outputName = DefaultONNXOutputName
	}

	size := d.InputSize()
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size.Height), int64(size.Width)))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}

	outputShape := d.OutputShape()
	dims := make([]int64, len(outputShape))
	for i, v := range outputShape {
		dims[i] = int64(v)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(dims...))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	options, err := providers.NewSessionOptions(cfg.Providers, logger)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		cfg.Path,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "create ONNX session for %s", cfg.Path)
	}

	return &ONNXEngine{
		session:     session,
		input:       input,
		output:      output,
		outputShape: outputShape,
	}, nil
}

// Layout returns LayoutNCHW.
func (e *ONNXEngine) Layout() Layout { return LayoutNCHW }

// Run copies input into the session's input tensor, runs the session and returns a copy of
// the output.
func (e *ONNXEngine) Run(ctx context.Context, input tensor.Tensor) (tensor.Tensor, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	data, ok := input.Data().([]float32)
	if !ok {
		return nil, errors.Wrapf(model.ErrConfigInconsistency, "ONNX input must be float32, got %s", input.Dtype())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, errors.New("engine closed")
	}

	dst := e.input.GetData()
	if len(data) != len(dst) {
		return nil, errors.Wrapf(model.ErrShapeMismatch, "input has %d values, session expects %d", len(data), len(dst))
	}
	copy(dst, data)

	if err := e.session.Run(); err != nil {
		return nil, errors.Wrap(err, "run ONNX session")
	}
	return cloneTensor(e.output.GetData(), e.outputShape), nil
}

// Close destroys the session and its tensors.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.input != nil {
		e.input.Destroy()
		e.input = nil
	}
	if e.output != nil {
		e.output.Destroy()
		e.output = nil
	}
	return errors.Wrap(err, "destroy ONNX session")
}
