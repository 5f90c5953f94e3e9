package postprocess

import (
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

var testLabels = []string{"class-0", "class-1", "class-2"}

var int8Quant = model.Quantization{Scale: 0.006008731201291084, ZeroPoint: 123}

func newDescriptor(t *testing.T, output []int) *model.Descriptor {
	t.Helper()
	d, err := model.NewDescriptor(model.NewDescriptorArgs{
		Name:   "test",
		Input:  images.Size{Width: 256, Height: 256},
		Output: output,
		Labels: testLabels,
	})
	require.NoError(t, err)
	return d
}

func newQuantizedDescriptor(t *testing.T, output []int) *model.Descriptor {
	t.Helper()
	d, err := model.NewDescriptor(model.NewDescriptorArgs{
		Name:        "test-int8",
		Input:       images.Size{Width: 256, Height: 256},
		Output:      output,
		Precision:   model.PrecisionINT8,
		InputQuant:  &model.Quantization{Scale: 0.003921568859368563, ZeroPoint: 128},
		OutputQuant: &int8Quant,
		Labels:      testLabels,
	})
	require.NoError(t, err)
	return d
}

func randomBuffer(rng *rand.Rand, n int) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = rng.Float32()
	}
	return buf
}

func TestDecode_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	tests := []struct {
		name   string
		output []int
	}{
		{name: "attribute-major", output: []int{1, 8, 1344}},
		{name: "detection-major", output: []int{1, 6300, 85}},
		{name: "small attribute-major", output: []int{1, 6, 7}},
		{name: "small detection-major", output: []int{1, 7, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDescriptor(t, tt.output)
			buf := randomBuffer(rng, tt.output[1]*tt.output[2])
			original := append([]float32(nil), buf...)

			grid, err := Decode(tensor.New(tensor.WithShape(tt.output...), tensor.WithBacking(buf)), d)
			require.NoError(t, err)
			assert.Equal(t, d.AttributeCount(), grid.Attributes())
			assert.Equal(t, d.DetectionCount(), grid.Detections())

			assert.Equal(t, original, grid.Flatten(d.IsTransposed()))
			assert.Equal(t, original, buf, "decode must not modify the raw output")
		})
	}
}

func TestDecode_Layout(t *testing.T) {
	t.Run("attribute-major shape [1, 8, 1344]", func(t *testing.T) {
		d := newDescriptor(t, []int{1, 8, 1344})
		require.False(t, d.IsTransposed())

		buf := make([]float32, 8*1344)
		for i := range buf {
			buf[i] = float32(i)
		}
		grid, err := Decode(tensor.New(tensor.WithShape(1, 8, 1344), tensor.WithBacking(buf)), d)
		require.NoError(t, err)

		require.Len(t, grid, 8)
		for _, row := range grid {
			require.Len(t, row, 1344)
		}
		assert.Equal(t, float32(0), grid[0][0])
		assert.Equal(t, float32(1343), grid[0][1343])
		assert.Equal(t, float32(1344), grid[1][0])
		assert.Equal(t, float32(7*1344+5), grid[7][5])
	})

	t.Run("detection-major shape [1, 7, 6]", func(t *testing.T) {
		d := newDescriptor(t, []int{1, 7, 6})
		require.True(t, d.IsTransposed())

		buf := make([]float32, 42)
		for i := range buf {
			buf[i] = float32(i)
		}
		grid, err := Decode(tensor.New(tensor.WithShape(1, 7, 6), tensor.WithBacking(buf)), d)
		require.NoError(t, err)

		require.Len(t, grid, 6)
		assert.Equal(t, []float32{0, 6, 12, 18, 24, 30, 36}, grid[0])
		assert.Equal(t, []float32{5, 11, 17, 23, 29, 35, 41}, grid[5])
	})
}

func TestDecode_ShapeMismatch(t *testing.T) {
	d := newDescriptor(t, []int{1, 8, 1344})

	tests := []struct {
		name   string
		output tensor.Tensor
	}{
		{name: "short flat buffer", output: tensor.New(tensor.WithBacking(make([]float32, 8*1344-1)))},
		{name: "long flat buffer", output: tensor.New(tensor.WithBacking(make([]float32, 8*1344+8)))},
		{name: "declared shape differs", output: tensor.New(tensor.WithShape(1, 8, 100), tensor.WithBacking(make([]float32, 800)))},
		{name: "swapped axes", output: tensor.New(tensor.WithShape(1, 1344, 8), tensor.WithBacking(make([]float32, 8*1344)))},
		{name: "rank 2 swapped axes", output: tensor.New(tensor.WithShape(1344, 8), tensor.WithBacking(make([]float32, 8*1344)))},
		{name: "nil tensor", output: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.output, d)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrShapeMismatch), "got %v", err)
		})
	}
}

func TestDecode_FlatBufferAccepted(t *testing.T) {
	d := newDescriptor(t, []int{1, 8, 10})
	grid, err := Decode(tensor.New(tensor.WithBacking(make([]float32, 80))), d)
	require.NoError(t, err)
	assert.Equal(t, 10, grid.Detections())

	grid, err = Decode(tensor.New(tensor.WithShape(8, 10), tensor.WithBacking(make([]float32, 80))), d)
	require.NoError(t, err)
	assert.Equal(t, 8, grid.Attributes())
}

func TestDecode_Quantized(t *testing.T) {
	d := newQuantizedDescriptor(t, []int{1, 8, 10})

	raw := make([]uint8, 80)
	for i := range raw {
		raw[i] = uint8(100 + i)
	}
	grid, err := Decode(tensor.New(tensor.WithShape(1, 8, 10), tensor.WithBacking(raw)), d)
	require.NoError(t, err)

	for a := 0; a < 8; a++ {
		for n := 0; n < 10; n++ {
			want := float32(int32(raw[a*10+n])-123) * int8Quant.Scale
			assert.InDelta(t, want, grid[a][n], 1e-6)
		}
	}
	assert.Equal(t, float32(0), grid[2][3], "zero point 123 decodes to 0")
}

func TestDecode_Int8(t *testing.T) {
	d := newQuantizedDescriptor(t, []int{1, 8, 10})
	raw := make([]int8, 80)
	raw[0] = -5

	grid, err := Decode(tensor.New(tensor.WithShape(1, 8, 10), tensor.WithBacking(raw)), d)
	require.NoError(t, err)
	assert.InDelta(t, float32(-128)*int8Quant.Scale, grid[0][0], 1e-6)
}

func TestDecode_DtypeMismatch(t *testing.T) {
	float := newDescriptor(t, []int{1, 8, 10})
	quant := newQuantizedDescriptor(t, []int{1, 8, 10})

	_, err := Decode(tensor.New(tensor.WithShape(1, 8, 10), tensor.WithBacking(make([]uint8, 80))), float)
	assert.True(t, errors.Is(err, model.ErrConfigInconsistency), "got %v", err)

	_, err = Decode(tensor.New(tensor.WithShape(1, 8, 10), tensor.WithBacking(make([]float32, 80))), quant)
	assert.True(t, errors.Is(err, model.ErrConfigInconsistency), "got %v", err)

	_, err = Decode(tensor.New(tensor.WithShape(1, 8, 10), tensor.WithBacking(make([]float64, 80))), float)
	assert.True(t, errors.Is(err, model.ErrConfigInconsistency), "got %v", err)
}

func TestQuantizeDequantize(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, q := range []model.Quantization{
		int8Quant,
		{Scale: 0.003921568859368563, ZeroPoint: 128},
		{Scale: 0.5, ZeroPoint: -3},
	} {
		for i := 0; i < 500; i++ {
			x := (rng.Float32()*2 - 1) * 100 * q.Scale
			got := Dequantize(Quantize(x, q), q)
			assert.InDelta(t, x, got, float64(q.Scale), "scale %v x %v", q.Scale, x)
		}
	}
}
