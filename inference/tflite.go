//go:build tflite

package inference

import (
	"context"
	"sync"

	"github.com/mattn/go-tflite"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// TFLiteEngine runs TensorFlow Lite models, float or uint8-quantized.
type TFLiteEngine struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	outputShape []int
}

// NewTFLiteEngine loads the model at cfg.Path and allocates its tensors.
//
// The interpreter's output tensor must agree with d: the same shape, and an integer type
// exactly when d is quantized.
//
// Arguments:
//   - cfg: The engine configuration.
//   - d: The descriptor of the model.
//
// Returns:
//   - *TFLiteEngine: The engine.
//   - error: An error if the model cannot be loaded, or ErrShapeMismatch /
//     ErrConfigInconsistency when the model disagrees with d.
func NewTFLiteEngine(cfg Config, d *model.Descriptor) (*TFLiteEngine, error) {
	m := tflite.NewModelFromFile(cfg.Path)
	if m == nil {
		return nil, errors.Errorf("cannot load TFLite model %s", cfg.Path)
	}

	options := tflite.NewInterpreterOptions()
	if cfg.Threads > 0 {
		options.SetNumThread(cfg.Threads)
	}

	e := &TFLiteEngine{model: m, options: options}

	e.interpreter = tflite.NewInterpreter(m, options)
	if e.interpreter == nil {
		e.Close()
		return nil, errors.Errorf("cannot create TFLite interpreter for %s", cfg.Path)
	}
	if status := e.interpreter.AllocateTensors(); status != tflite.OK {
		e.Close()
		return nil, errors.Errorf("allocate TFLite tensors: status %v", status)
	}

	if err := e.checkOutput(d); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *TFLiteEngine) checkOutput(d *model.Descriptor) error {
	out := e.interpreter.GetOutputTensor(0)
	if out == nil {
		return errors.Wrap(model.ErrShapeMismatch, "model has no output tensor")
	}

	shape := make([]int, out.NumDims())
	for i := range shape {
		shape[i] = out.Dim(i)
	}
	want := d.OutputShape()
	if len(shape) != len(want) {
		return errors.Wrapf(model.ErrShapeMismatch, "output shape %v, model %s declares %v", shape, d.Name(), want)
	}
	for i := range want {
		if shape[i] != want[i] {
			return errors.Wrapf(model.ErrShapeMismatch, "output shape %v, model %s declares %v", shape, d.Name(), want)
		}
	}
	e.outputShape = shape

	integer := out.Type() == tflite.UInt8 || out.Type() == tflite.Int8
	if integer != d.IsQuantized() {
		return errors.Wrapf(model.ErrConfigInconsistency, "model %s is %s but output tensor is %v",
			d.Name(), d.Precision(), out.Type())
	}
	return nil
}

// Layout returns LayoutNHWC.
func (e *TFLiteEngine) Layout() Layout { return LayoutNHWC }

// Run copies input into the interpreter's input tensor, invokes it and returns a copy of the
// first output tensor.
func (e *TFLiteEngine) Run(ctx context.Context, input tensor.Tensor) (tensor.Tensor, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.interpreter == nil {
		return nil, errors.New("engine closed")
	}

	in := e.interpreter.GetInputTensor(0)
	if status := in.CopyFromBuffer(input.Data()); status != tflite.OK {
		return nil, errors.Wrapf(model.ErrShapeMismatch, "copy %s input of shape %v: status %v",
			input.Dtype(), input.Shape(), status)
	}

	if status := e.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Errorf("invoke TFLite interpreter: status %v", status)
	}

	out := e.interpreter.GetOutputTensor(0)
	switch out.Type() {
	case tflite.Float32:
		return cloneTensor(out.Float32s(), e.outputShape), nil
	case tflite.UInt8:
		return cloneTensor(out.UInt8s(), e.outputShape), nil
	case tflite.Int8:
		return cloneTensor(out.Int8s(), e.outputShape), nil
	default:
		return nil, errors.Wrapf(model.ErrConfigInconsistency, "unsupported output tensor type %v", out.Type())
	}
}

// OutputQuantization returns the quantization parameters stored in the model for its output.
// ok is false for float models and closed engines.
func (e *TFLiteEngine) OutputQuantization() (q model.Quantization, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.interpreter == nil {
		return model.Quantization{}, false
	}
	p := e.interpreter.GetOutputTensor(0).QuantizationParams()
	if p.Scale == 0 {
		return model.Quantization{}, false
	}
	return model.Quantization{Scale: float32(p.Scale), ZeroPoint: int32(p.ZeroPoint)}, true
}

// Close releases the interpreter, its options and the model.
func (e *TFLiteEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.interpreter != nil {
		e.interpreter.Delete()
		e.interpreter = nil
	}
	if e.options != nil {
		e.options.Delete()
		e.options = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
	return nil
}
