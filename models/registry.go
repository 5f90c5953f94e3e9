// Package models - registry of the detection models shipped with the application.
package models

import (
	"sort"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
)

// Built-in model names.
const (
	ModelNameYOLOv5      model.Name = "yolo_v5"
	ModelNameTrain37FP16 model.Name = "train_37_fp16"
	ModelNameTrain37FP32 model.Name = "train_37_fp32"
	ModelNameTrain38FP16 model.Name = "train_38_fp16"
	ModelNameTrain38FP32 model.Name = "train_38_fp32"
	ModelNameTrain38INT8 model.Name = "train_38_int8"
)

const defaultHeartLabelFile = "heart_label.txt"

// Entry describes a built-in model: where its files live and the tensor metadata the
// descriptor is built from.
type Entry struct {
	Name        model.Name
	File        string
	LabelsFile  string
	Input       images.Size
	Output      []int
	Precision   model.Precision
	InputQuant  *model.Quantization
	OutputQuant *model.Quantization
	// Labels is used when the caller supplies none. Nil means the labels file is required.
	Labels []string
}

var registry = map[model.Name]Entry{
	ModelNameYOLOv5: {
		Name:       ModelNameYOLOv5,
		File:       "yolov5s-fp16.tflite",
		LabelsFile: "coco_label.txt",
		Input:      images.Size{Width: 320, Height: 320},
		Output:     []int{1, 6300, 85},
		Precision:  model.PrecisionFP16,
		Labels:     COCOLabels,
	},
	ModelNameTrain37FP16: {
		Name:       ModelNameTrain37FP16,
		File:       "train_37_fp16.tflite",
		LabelsFile: defaultHeartLabelFile,
		Input:      images.Size{Width: 640, Height: 640},
		Output:     []int{1, 8, 8400},
		Precision:  model.PrecisionFP16,
	},
	ModelNameTrain37FP32: {
		Name:       ModelNameTrain37FP32,
		File:       "train_37_fp32.tflite",
		LabelsFile: defaultHeartLabelFile,
		Input:      images.Size{Width: 640, Height: 640},
		Output:     []int{1, 8, 8400},
		Precision:  model.PrecisionFP32,
	},
	ModelNameTrain38FP16: {
		Name:       ModelNameTrain38FP16,
		File:       "train_38_fp16.tflite",
		LabelsFile: defaultHeartLabelFile,
		Input:      images.Size{Width: 256, Height: 256},
		Output:     []int{1, 8, 1344},
		Precision:  model.PrecisionFP16,
	},
	ModelNameTrain38FP32: {
		Name:       ModelNameTrain38FP32,
		File:       "train_38_fp32.tflite",
		LabelsFile: defaultHeartLabelFile,
		Input:      images.Size{Width: 256, Height: 256},
		Output:     []int{1, 8, 1344},
		Precision:  model.PrecisionFP32,
	},
	ModelNameTrain38INT8: {
		Name:        ModelNameTrain38INT8,
		File:        "train_38_fp8.tflite",
		LabelsFile:  defaultHeartLabelFile,
		Input:       images.Size{Width: 256, Height: 256},
		Output:      []int{1, 8, 1344},
		Precision:   model.PrecisionINT8,
		InputQuant:  &model.Quantization{Scale: 0.003921568859368563, ZeroPoint: 128},
		OutputQuant: &model.Quantization{Scale: 0.006008731201291084, ZeroPoint: 123},
	},
}

// Lookup returns the built-in entry for name.
func Lookup(name model.Name) (Entry, bool) {
	e, ok := registry[name]
	return e, ok
}

// Names returns the built-in model names in sorted order.
func Names() []model.Name {
	names := make([]model.Name, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// NewDescriptor builds the descriptor of a built-in model.
//
// Arguments:
//   - name: The built-in model name.
//   - labels: Class labels, usually read from the entry's LabelsFile. When empty the entry's
//     default labels are used.
//
// Returns:
//   - *model.Descriptor: The validated descriptor.
//   - error: An error if the name is unknown, no labels are available, or validation fails.
//
// Example:
//
// ```go
//
//	labels, _ := models.LoadLabelsFile("assets/heart_label.txt")
//	d, err := models.NewDescriptor(models.ModelNameTrain38INT8, labels)
//
// ```
func NewDescriptor(name model.Name, labels []string) (*model.Descriptor, error) {
	e, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unsupported model name: %s", name)
	}
	return e.Descriptor(labels)
}

// Descriptor builds a descriptor from the entry, preferring labels over e.Labels.
func (e Entry) Descriptor(labels []string) (*model.Descriptor, error) {
	if len(labels) == 0 {
		labels = e.Labels
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("model %s requires labels from %s", e.Name, e.LabelsFile)
	}
	return model.NewDescriptor(model.NewDescriptorArgs{
		Name:        e.Name,
		Input:       e.Input,
		Output:      e.Output,
		Precision:   e.Precision,
		InputQuant:  e.InputQuant,
		OutputQuant: e.OutputQuant,
		Labels:      labels,
	})
}
