package postprocess

import (
	"testing"

	"github.com/nvr-ai/go-detect/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridOf builds an [8][n] grid from per-detection attribute columns.
func gridOf(columns ...[]float32) Grid {
	g := NewGrid(8, len(columns))
	for i, col := range columns {
		for a, v := range col {
			g[a][i] = v
		}
	}
	return g
}

func TestExtract(t *testing.T) {
	d := newDescriptor(t, []int{1, 8, 10})
	size := images.Size{Width: 640, Height: 480}

	tests := []struct {
		name      string
		column    []float32
		threshold float32
		want      *Recognition
	}{
		{
			name:      "objectness equal to threshold is dropped",
			column:    []float32{0.5, 0.5, 0.1, 0.1, 0.25, 0.9, 0, 0},
			threshold: 0.25,
		},
		{
			name:      "objectness below threshold is dropped",
			column:    []float32{0.5, 0.5, 0.1, 0.1, 0.1, 0.9, 0, 0},
			threshold: 0.25,
		},
		{
			name:      "center is converted to corners",
			column:    []float32{0.5, 0.5, 0.25, 0.5, 0.75, 0.1, 0.6, 0.3},
			threshold: 0.25,
			want: &Recognition{
				ClassID:    1,
				ClassScore: 0.6,
				Objectness: 0.75,
				Box:        images.Rect{X1: 240, Y1: 120, X2: 400, Y2: 360},
			},
		},
		{
			name:      "box is clamped to the image",
			column:    []float32{0, 1, 0.5, 0.5, 0.9, 0, 0, 1},
			threshold: 0.25,
			want: &Recognition{
				ClassID:    2,
				ClassScore: 1,
				Objectness: 0.9,
				Box:        images.Rect{X1: 0, Y1: 360, X2: 160, Y2: 480},
			},
		},
		{
			name:      "tied class scores resolve to the lowest index",
			column:    []float32{0.5, 0.5, 0.25, 0.5, 0.5, 0.2, 0.4, 0.4},
			threshold: 0.25,
			want: &Recognition{
				ClassID:    1,
				ClassScore: 0.4,
				Objectness: 0.5,
				Box:        images.Rect{X1: 240, Y1: 120, X2: 400, Y2: 360},
			},
		},
		{
			name:      "zero threshold keeps any positive objectness",
			column:    []float32{0.5, 0.5, 0.25, 0.5, 0.01, 0.3, 0, 0},
			threshold: 0,
			want: &Recognition{
				ClassID:    0,
				ClassScore: 0.3,
				Objectness: 0.01,
				Box:        images.Rect{X1: 240, Y1: 120, X2: 400, Y2: 360},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recognitions := Extract(gridOf(tt.column), d, size, tt.threshold)
			if tt.want == nil {
				assert.Empty(t, recognitions)
				return
			}
			require.Len(t, recognitions, 1)
			got := recognitions[0]
			assert.Equal(t, tt.want.ClassID, got.ClassID)
			assert.Equal(t, tt.want.ClassScore, got.ClassScore)
			assert.Equal(t, tt.want.Objectness, got.Objectness)
			assert.Empty(t, got.ClassName)
			assert.InDelta(t, tt.want.Box.X1, got.Box.X1, 1e-3)
			assert.InDelta(t, tt.want.Box.Y1, got.Box.Y1, 1e-3)
			assert.InDelta(t, tt.want.Box.X2, got.Box.X2, 1e-3)
			assert.InDelta(t, tt.want.Box.Y2, got.Box.Y2, 1e-3)
		})
	}
}

func TestExtract_KeepsDetectionOrder(t *testing.T) {
	d := newDescriptor(t, []int{1, 8, 10})
	grid := gridOf(
		[]float32{0.1, 0.1, 0.1, 0.1, 0.3, 1, 0, 0},
		[]float32{0.2, 0.2, 0.1, 0.1, 0.2, 1, 0, 0},
		[]float32{0.3, 0.3, 0.1, 0.1, 0.9, 1, 0, 0},
		[]float32{0.4, 0.4, 0.1, 0.1, 0.5, 1, 0, 0},
	)

	recognitions := Extract(grid, d, images.Size{Width: 100, Height: 100}, DefaultConfidenceThreshold)
	require.Len(t, recognitions, 3)
	assert.Equal(t, []float32{0.3, 0.9, 0.5}, []float32{
		recognitions[0].Objectness, recognitions[1].Objectness, recognitions[2].Objectness,
	})
	for _, r := range recognitions {
		assert.GreaterOrEqual(t, r.Box.X1, float32(0))
		assert.LessOrEqual(t, r.Box.X2, float32(100))
		assert.LessOrEqual(t, r.Box.X1, r.Box.X2)
		assert.LessOrEqual(t, r.Box.Y1, r.Box.Y2)
	}
}
