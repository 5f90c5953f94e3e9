package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func uniformImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func descriptor(t *testing.T, quantized bool) *model.Descriptor {
	t.Helper()
	args := model.NewDescriptorArgs{
		Name:   "prep",
		Input:  images.Size{Width: 4, Height: 2},
		Output: []int{1, 8, 10},
		Labels: []string{"a", "b", "c"},
	}
	if quantized {
		args.Precision = model.PrecisionINT8
		args.InputQuant = &model.Quantization{Scale: 1.0 / 255, ZeroPoint: 0}
		args.OutputQuant = &model.Quantization{Scale: 0.1, ZeroPoint: 0}
	}
	d, err := model.NewDescriptor(args)
	require.NoError(t, err)
	return d
}

func TestPrepareInput_Float(t *testing.T) {
	d := descriptor(t, false)
	img := uniformImage(40, 20, color.RGBA{R: 255, G: 51, B: 0, A: 255})

	tests := []struct {
		layout Layout
		shape  tensor.Shape
		pixel  func([]float32) []float32
	}{
		{
			layout: LayoutNHWC,
			shape:  tensor.Shape{1, 2, 4, 3},
			pixel:  func(v []float32) []float32 { return v[:3] },
		},
		{
			layout: LayoutNCHW,
			shape:  tensor.Shape{1, 3, 2, 4},
			pixel:  func(v []float32) []float32 { return []float32{v[0], v[8], v[16]} },
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.layout), func(t *testing.T) {
			input, err := PrepareInput(img, d, tt.layout)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, input.Shape())
			assert.Equal(t, tensor.Float32, input.Dtype())

			values := input.Data().([]float32)
			require.Len(t, values, 24)
			px := tt.pixel(values)
			assert.InDelta(t, 1.0, px[0], 1e-6)
			assert.InDelta(t, 0.2, px[1], 1e-6)
			assert.InDelta(t, 0.0, px[2], 1e-6)
			for _, v := range values {
				assert.GreaterOrEqual(t, v, float32(0))
				assert.LessOrEqual(t, v, float32(1))
			}
		})
	}
}

func TestPrepareInput_Quantized(t *testing.T) {
	d := descriptor(t, true)
	img := uniformImage(8, 4, color.RGBA{R: 255, G: 51, B: 0, A: 255})

	input, err := PrepareInput(img, d, LayoutNHWC)
	require.NoError(t, err)
	assert.Equal(t, tensor.Uint8, input.Dtype())

	values := input.Data().([]uint8)
	assert.Equal(t, []uint8{255, 51, 0}, values[:3])
}

func TestPrepareInput_Saturates(t *testing.T) {
	d, err := model.NewDescriptor(model.NewDescriptorArgs{
		Name:        "offset",
		Input:       images.Size{Width: 2, Height: 2},
		Output:      []int{1, 8, 10},
		Precision:   model.PrecisionINT8,
		InputQuant:  &model.Quantization{Scale: 0.003921568859368563, ZeroPoint: 128},
		OutputQuant: &model.Quantization{Scale: 0.006008731201291084, ZeroPoint: 123},
		Labels:      []string{"a", "b", "c"},
	})
	require.NoError(t, err)

	input, err := PrepareInput(uniformImage(2, 2, color.RGBA{R: 255, G: 0, B: 64, A: 255}), d, LayoutNHWC)
	require.NoError(t, err)

	values := input.Data().([]uint8)
	assert.Equal(t, []uint8{255, 128, 192}, values[:3])
}

func TestPrepareInput_Errors(t *testing.T) {
	d := descriptor(t, false)

	_, err := PrepareInput(nil, d, LayoutNHWC)
	assert.Error(t, err)

	_, err = PrepareInput(image.NewRGBA(image.Rect(0, 0, 0, 0)), d, LayoutNHWC)
	assert.Error(t, err)

	_, err = PrepareInput(uniformImage(2, 2, color.RGBA{A: 255}), d, Layout("hwc"))
	assert.Error(t, err)
}

func TestEngineTypeFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    EngineType
		wantErr bool
	}{
		{path: "models/yolov8n.onnx", want: EngineONNX},
		{path: "assets/train_38_int8.TFLITE", want: EngineTFLite},
		{path: "model.pt", wantErr: true},
		{path: "model", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := EngineTypeFromPath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewEngine_UnknownType(t *testing.T) {
	d := descriptor(t, false)
	_, err := NewEngine(Config{Type: "tensorrt", Path: "model.engine"}, d, nil)
	assert.Error(t, err)

	_, err = NewEngine(Config{Path: "model.bin"}, d, nil)
	assert.Error(t, err)
}
