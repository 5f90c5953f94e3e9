package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var heartLabels = []string{"la", "lv", "ra"}

func TestNewDescriptor_BuiltIns(t *testing.T) {
	tests := []struct {
		model      string
		labels     []string
		attributes int
		detections int
		transposed bool
		quantized  bool
	}{
		{model: "yolo_v5", attributes: 85, detections: 6300, transposed: true},
		{model: "train_37_fp16", labels: heartLabels, attributes: 8, detections: 8400},
		{model: "train_37_fp32", labels: heartLabels, attributes: 8, detections: 8400},
		{model: "train_38_fp16", labels: heartLabels, attributes: 8, detections: 1344},
		{model: "train_38_fp32", labels: heartLabels, attributes: 8, detections: 1344},
		{model: "train_38_int8", labels: heartLabels, attributes: 8, detections: 1344, quantized: true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			e, ok := Lookup(model.Name(tt.model))
			require.True(t, ok)

			d, err := e.Descriptor(tt.labels)
			require.NoError(t, err)
			assert.Equal(t, tt.attributes, d.AttributeCount())
			assert.Equal(t, tt.detections, d.DetectionCount())
			assert.Equal(t, tt.transposed, d.IsTransposed())
			assert.Equal(t, tt.quantized, d.IsQuantized())
		})
	}
}

func TestNewDescriptor_RequiresLabels(t *testing.T) {
	_, err := NewDescriptor(ModelNameTrain38FP32, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heart_label.txt")

	d, err := NewDescriptor(ModelNameYOLOv5, nil)
	require.NoError(t, err)
	label, err := d.Label(0)
	require.NoError(t, err)
	assert.Equal(t, "person", label)
}

func TestNewDescriptor_Unknown(t *testing.T) {
	_, err := NewDescriptor("resnet", heartLabels)
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Len(t, names, 6)
	assert.Equal(t, ModelNameTrain37FP16, names[0])
}

func TestLoadLabels(t *testing.T) {
	labels, err := LoadLabels(strings.NewReader("la\n\n  lv \r\nra\n"))
	require.NoError(t, err)
	assert.Equal(t, heartLabels, labels)

	_, err = LoadLabels(strings.NewReader("\n \n"))
	assert.Error(t, err)
}

func TestLoadLabelsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("la\nlv\nra\n"), 0o644))

	labels, err := LoadLabelsFile(path)
	require.NoError(t, err)
	assert.Equal(t, heartLabels, labels)

	_, err = LoadLabelsFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestCOCOLabels(t *testing.T) {
	assert.Len(t, COCOLabels, 80)
}
