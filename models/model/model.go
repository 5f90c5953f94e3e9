// Package model - Static description of a detection model's tensors and labels.
package model

import (
	"fmt"

	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
)

// Name is the unique identifier of a model.
type Name string

// Errors reported by descriptor validation and by the post-processing pipeline. Call sites
// wrap them with context; match with errors.Is.
var (
	// ErrConfigInconsistency reports a descriptor that cannot describe a usable model.
	ErrConfigInconsistency = errors.New("model config inconsistency")
	// ErrShapeMismatch reports an output buffer that does not match the declared shape.
	ErrShapeMismatch = errors.New("output shape mismatch")
	// ErrClassOutOfRange reports a class id with no entry in the label list.
	ErrClassOutOfRange = errors.New("class id out of range")
)

const (
	// BoxAttributes is the number of leading box attributes: center-x, center-y, w, h.
	BoxAttributes = 4
	// ObjectnessAttribute is the attribute index of the objectness score.
	ObjectnessAttribute = 4
	// ClassOffset is the attribute index of the first class score.
	ClassOffset = 5
	// MinAttributes is four box params, objectness and at least one class score.
	MinAttributes = ClassOffset + 1
)

// Quantization holds the affine parameters of an integer tensor: real = (q - ZeroPoint) * Scale.
type Quantization struct {
	Scale     float32 `json:"scale" yaml:"scale"`
	ZeroPoint int32   `json:"zero_point" yaml:"zero_point"`
}

// NewDescriptorArgs is the arguments for creating a new Descriptor.
type NewDescriptorArgs struct {
	Name Name `json:"name" yaml:"name"`
	// Input is the (width, height) the inference engine expects.
	Input images.Size `json:"input" yaml:"input"`
	// Output is the output tensor shape as reported by the engine: [1, A, B].
	Output []int `json:"output" yaml:"output"`
	// Axis declares which of A or B holds attributes. AxisAuto picks the smaller one.
	Axis        AttributeAxis `json:"axis" yaml:"axis"`
	Precision   Precision     `json:"precision" yaml:"precision"`
	InputQuant  *Quantization `json:"input_quant,omitempty" yaml:"input_quant,omitempty"`
	OutputQuant *Quantization `json:"output_quant,omitempty" yaml:"output_quant,omitempty"`
	Labels      []string      `json:"labels" yaml:"labels"`
}

// Descriptor is the immutable metadata of one model: tensor shapes, quantization parameters
// and class labels. A new Descriptor is built when the active model changes; it is never
// modified after NewDescriptor returns and may be shared between goroutines.
type Descriptor struct {
	name        Name
	input       images.Size
	output      [3]int
	axis        AttributeAxis
	precision   Precision
	inputQuant  Quantization
	outputQuant Quantization
	labels      []string
}

// NewDescriptor validates args and builds a Descriptor.
//
// Validation rules:
//   - Output must be [1, A, B] with A, B > 0 and A != B (the attribute axis would be ambiguous).
//   - The attribute dimension must hold at least MinAttributes values.
//   - Quantization parameters must be present if and only if Precision is INT8.
//   - At least one label.
//
// Arguments:
//   - args: The model metadata.
//
// Returns:
//   - *Descriptor: The validated descriptor.
//   - error: ErrConfigInconsistency (wrapped) describing the first violated rule.
func NewDescriptor(args NewDescriptorArgs) (*Descriptor, error) {
	if args.Input.Empty() {
		return nil, errors.Wrapf(ErrConfigInconsistency, "model %s: input size %dx%d",
			args.Name, args.Input.Width, args.Input.Height)
	}
	if len(args.Output) != 3 || args.Output[0] != 1 || args.Output[1] <= 0 || args.Output[2] <= 0 {
		return nil, errors.Wrapf(ErrConfigInconsistency, "model %s: output shape %v is not [1, A, B]",
			args.Name, args.Output)
	}
	if args.Output[1] == args.Output[2] {
		return nil, errors.Wrapf(ErrConfigInconsistency,
			"model %s: output shape %v has equal dimensions, attribute axis is ambiguous", args.Name, args.Output)
	}

	axis := args.Axis
	if axis == AxisAuto {
		axis = AxisFirst
		if args.Output[2] < args.Output[1] {
			axis = AxisSecond
		}
	}
	if axis != AxisFirst && axis != AxisSecond {
		return nil, errors.Wrapf(ErrConfigInconsistency, "model %s: invalid attribute axis %d", args.Name, axis)
	}

	precision := args.Precision
	if precision == "" {
		precision = PrecisionFP32
	}
	if _, err := ParsePrecision(string(precision)); err != nil {
		return nil, errors.Wrapf(ErrConfigInconsistency, "model %s: %v", args.Name, err)
	}

	d := &Descriptor{
		name:      args.Name,
		input:     args.Input,
		output:    [3]int{args.Output[0], args.Output[1], args.Output[2]},
		axis:      axis,
		precision: precision,
		labels:    append([]string(nil), args.Labels...),
	}

	if d.AttributeCount() < MinAttributes {
		return nil, errors.Wrapf(ErrConfigInconsistency, "model %s: %d attributes, need at least %d",
			args.Name, d.AttributeCount(), MinAttributes)
	}

	hasQuant := args.InputQuant != nil || args.OutputQuant != nil
	switch {
	case precision.Quantized() && (args.InputQuant == nil || args.OutputQuant == nil):
		return nil, errors.Wrapf(ErrConfigInconsistency,
			"model %s: %s requires input and output quantization parameters", args.Name, precision)
	case !precision.Quantized() && hasQuant:
		return nil, errors.Wrapf(ErrConfigInconsistency,
			"model %s: quantization parameters given for %s model", args.Name, precision)
	case precision.Quantized():
		if args.InputQuant.Scale <= 0 || args.OutputQuant.Scale <= 0 {
			return nil, errors.Wrapf(ErrConfigInconsistency, "model %s: quantization scale must be > 0", args.Name)
		}
		d.inputQuant = *args.InputQuant
		d.outputQuant = *args.OutputQuant
	}

	if len(d.labels) == 0 {
		return nil, errors.Wrapf(ErrConfigInconsistency, "model %s: no labels", args.Name)
	}

	return d, nil
}

// Name returns the model name.
func (d *Descriptor) Name() Name { return d.name }

// InputSize returns the (width, height) the engine expects.
func (d *Descriptor) InputSize() images.Size { return d.input }

// OutputShape returns a copy of the declared output shape.
func (d *Descriptor) OutputShape() []int { return []int{d.output[0], d.output[1], d.output[2]} }

// Axis returns the resolved attribute axis (never AxisAuto).
func (d *Descriptor) Axis() AttributeAxis { return d.axis }

// Precision returns the model precision.
func (d *Descriptor) Precision() Precision { return d.precision }

// IsQuantized reports whether input and output tensors are scaled integers.
func (d *Descriptor) IsQuantized() bool { return d.precision.Quantized() }

// InputQuant returns the input quantization parameters; ok is false for float models.
func (d *Descriptor) InputQuant() (q Quantization, ok bool) {
	return d.inputQuant, d.IsQuantized()
}

// OutputQuant returns the output quantization parameters; ok is false for float models.
func (d *Descriptor) OutputQuant() (q Quantization, ok bool) {
	return d.outputQuant, d.IsQuantized()
}

// AttributeCount is the number of values per detection slot.
func (d *Descriptor) AttributeCount() int {
	if d.axis == AxisSecond {
		return d.output[2]
	}
	return d.output[1]
}

// DetectionCount is the number of detection slots in one output.
func (d *Descriptor) DetectionCount() int {
	if d.axis == AxisSecond {
		return d.output[1]
	}
	return d.output[2]
}

// NumClasses is the number of class scores per detection slot.
func (d *Descriptor) NumClasses() int {
	return d.AttributeCount() - ClassOffset
}

// IsTransposed reports whether the detection axis is index 1 of the output shape, i.e. the
// flat buffer is detection-major.
func (d *Descriptor) IsTransposed() bool {
	return d.DetectionCount() == d.output[1]
}

// Labels returns a copy of the class labels.
func (d *Descriptor) Labels() []string {
	return append([]string(nil), d.labels...)
}

// LabelCount returns the number of class labels.
func (d *Descriptor) LabelCount() int { return len(d.labels) }

// Label resolves a class id to its name.
//
// Returns:
//   - string: The label.
//   - error: ErrClassOutOfRange (wrapped) when id has no label.
func (d *Descriptor) Label(id int) (string, error) {
	if id < 0 || id >= len(d.labels) {
		return "", errors.Wrapf(ErrClassOutOfRange, "model %s: class %d, %d labels", d.name, id, len(d.labels))
	}
	return d.labels[id], nil
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s %dx%d %v %s (%d attributes x %d detections)",
		d.name, d.input.Width, d.input.Height, d.output, d.precision, d.AttributeCount(), d.DetectionCount())
}
