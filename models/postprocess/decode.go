package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Grid is a decoded output indexed [attribute][detection].
type Grid [][]float32

// NewGrid allocates an attributes x detections grid backed by one contiguous slice.
func NewGrid(attributes, detections int) Grid {
	backing := make([]float32, attributes*detections)
	g := make(Grid, attributes)
	for i := range g {
		g[i] = backing[i*detections : (i+1)*detections : (i+1)*detections]
	}
	return g
}

// Attributes returns the number of attribute rows.
func (g Grid) Attributes() int { return len(g) }

// Detections returns the number of detection columns.
func (g Grid) Detections() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Flatten writes the grid back into a flat buffer using the same layout rule Decode reads:
// detection-major when transposed, attribute-major otherwise.
func (g Grid) Flatten(transposed bool) []float32 {
	a, n := g.Attributes(), g.Detections()
	out := make([]float32, 0, a*n)
	if transposed {
		for i := 0; i < n; i++ {
			for j := 0; j < a; j++ {
				out = append(out, g[j][i])
			}
		}
		return out
	}
	for i := 0; i < a; i++ {
		out = append(out, g[i]...)
	}
	return out
}

// Dequantize maps a stored integer to its real value: (q - zeroPoint) * scale.
func Dequantize(q int32, p model.Quantization) float32 {
	return float32(q-p.ZeroPoint) * p.Scale
}

// Quantize maps a real value to the nearest stored integer: round(x / scale) + zeroPoint. The
// result is not clamped to the storage type's range.
func Quantize(x float32, p model.Quantization) int32 {
	return int32(math32.Round(x/p.Scale)) + p.ZeroPoint
}

// Decode converts one raw output tensor into a Grid of shape
// [d.AttributeCount()][d.DetectionCount()].
//
// The tensor's backing data is read once, left to right. For a transposed (detection-major)
// descriptor the attribute groups of each detection slot are contiguous; otherwise each
// attribute row is contiguous. Integer tensors of a quantized descriptor are dequantized with
// the descriptor's output parameters.
//
// Arguments:
//   - output: The raw output of the inference engine. Float32 for float models, Uint8 or
//     Int8 for quantized models.
//   - d: The descriptor of the model that produced output.
//
// Returns:
//   - Grid: The decoded values.
//   - error: ErrShapeMismatch when the element count or shape disagrees with d,
//     ErrConfigInconsistency when the dtype disagrees with d's precision.
func Decode(output tensor.Tensor, d *model.Descriptor) (Grid, error) {
	if output == nil {
		return nil, errors.Wrap(model.ErrShapeMismatch, "nil output tensor")
	}

	// A flat buffer is checked by element count only. Any other rank must end in the
	// declared [A, B].
	want := d.OutputShape()
	if shape := output.Shape(); len(shape) >= 2 {
		trailing := shape[len(shape)-2:]
		if trailing[0] != want[1] || trailing[1] != want[2] {
			return nil, errors.Wrapf(model.ErrShapeMismatch, "output shape %v, model %s declares %v",
				shape, d.Name(), want)
		}
	}

	values, err := floatValues(output.Data(), d)
	if err != nil {
		return nil, err
	}
	return layout(values, d)
}

// floatValues returns the tensor data as float32, dequantizing integer data.
func floatValues(data interface{}, d *model.Descriptor) ([]float32, error) {
	q, quantized := d.OutputQuant()

	switch v := data.(type) {
	case []float32:
		if quantized {
			return nil, errors.Wrapf(model.ErrConfigInconsistency, "model %s is %s but output is float32",
				d.Name(), d.Precision())
		}
		return v, nil
	case []uint8:
		if !quantized {
			return nil, errors.Wrapf(model.ErrConfigInconsistency, "model %s is %s but output is uint8",
				d.Name(), d.Precision())
		}
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = Dequantize(int32(x), q)
		}
		return out, nil
	case []int8:
		if !quantized {
			return nil, errors.Wrapf(model.ErrConfigInconsistency, "model %s is %s but output is int8",
				d.Name(), d.Precision())
		}
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = Dequantize(int32(x), q)
		}
		return out, nil
	default:
		return nil, errors.Wrapf(model.ErrConfigInconsistency, "unsupported output data %T", data)
	}
}

func layout(values []float32, d *model.Descriptor) (Grid, error) {
	attributes, detections := d.AttributeCount(), d.DetectionCount()
	if len(values) != attributes*detections {
		return nil, errors.Wrapf(model.ErrShapeMismatch, "output has %d values, model %s declares %d x %d",
			len(values), d.Name(), attributes, detections)
	}

	grid := NewGrid(attributes, detections)
	index := 0
	if d.IsTransposed() {
		for i := 0; i < detections; i++ {
			for j := 0; j < attributes; j++ {
				grid[j][i] = values[index]
				index++
			}
		}
		return grid, nil
	}

	for i := 0; i < attributes; i++ {
		copy(grid[i], values[index:index+detections])
		index += detections
	}
	return grid, nil
}
