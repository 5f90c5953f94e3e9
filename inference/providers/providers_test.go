package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{in: "", want: BackendCPU},
		{in: "cpu", want: BackendCPU},
		{in: " CoreML ", want: BackendCoreML},
		{in: "openvino", want: BackendOpenVINO},
		{in: "CUDA", want: BackendCUDA},
		{in: "tensorrt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSharedLibPath(t *testing.T) {
	assert.Equal(t, "./third_party/onnxruntime.so", sharedLibPath("linux", "amd64"))
	assert.Equal(t, "./third_party/onnxruntime_arm64.so", sharedLibPath("linux", "arm64"))
	assert.Equal(t, "./third_party/libonnxruntime.1.23.0.dylib", sharedLibPath("darwin", "arm64"))
	assert.Equal(t, "./third_party/onnxruntime.dll", sharedLibPath("windows", "amd64"))
	assert.Empty(t, sharedLibPath("plan9", "386"))
}

func TestGetSharedLibPath_EnvOverride(t *testing.T) {
	t.Setenv(SharedLibEnv, "/opt/ort/libonnxruntime.so")
	assert.Equal(t, "/opt/ort/libonnxruntime.so", GetSharedLibPath())
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.Len(t, c.Providers, 1)
	assert.Equal(t, BackendCPU, c.Providers[0].Backend)
}
