// Package providers - ONNX Runtime execution providers and session options.
package providers

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Backend represents an ONNX Runtime execution provider.
type Backend string

const (
	// BackendCPU uses the default CPU kernels. It needs no registration.
	BackendCPU Backend = "cpu"
	// BackendCoreML uses Apple CoreML for macOS/iOS acceleration.
	BackendCoreML Backend = "coreml"
	// BackendOpenVINO uses Intel OpenVINO for inference optimization.
	BackendOpenVINO Backend = "openvino"
	// BackendCUDA uses NVIDIA CUDA for GPU acceleration.
	BackendCUDA Backend = "cuda"
)

// ParseBackend parses a backend name, case-insensitively. An empty name is BackendCPU.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendCPU, nil
	case BackendCPU, BackendCoreML, BackendOpenVINO, BackendCUDA:
		return b, nil
	default:
		return "", errors.Errorf("unsupported execution provider %q", s)
	}
}

// Provider configures one execution provider.
type Provider struct {
	// Backend selects the provider.
	Backend Backend `json:"backend" yaml:"backend"`
	// Options are passed to the provider as-is. CoreML reads "flags"; OpenVINO and CUDA
	// take their documented provider option keys (e.g. "device_type", "device_id").
	Options map[string]string `json:"options" yaml:"options"`
	// Required fails session creation when the provider cannot be registered. Otherwise the
	// failure is logged and the session falls back to the next provider.
	Required bool `json:"required" yaml:"required"`
}

// Config contains the ONNX Runtime session settings.
type Config struct {
	// IntraOpThreads parallelizes execution within graph nodes. 0 uses the runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelizes execution across graph nodes. 0 uses the runtime default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// Providers are registered in order; ONNX Runtime prefers earlier ones.
	Providers []Provider `json:"providers" yaml:"providers"`
}

// DefaultConfig returns a CPU-only configuration with runtime-default threading.
func DefaultConfig() Config {
	return Config{Providers: []Provider{{Backend: BackendCPU}}}
}

// NewSessionOptions builds ONNX Runtime session options from c.
//
// Arguments:
//   - c: The session settings.
//   - logger: Receives warnings for optional providers that could not be registered.
//
// Returns:
//   - *ort.SessionOptions: The options. The caller must Destroy them.
//   - error: An error if the options or a required provider could not be set up.
func NewSessionOptions(c Config, logger *zap.Logger) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}

	if err := configure(options, c, logger); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func configure(options *ort.SessionOptions, c Config, logger *zap.Logger) error {
	if err := options.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
		return errors.Wrap(err, "set intra-op threads")
	}
	if err := options.SetInterOpNumThreads(c.InterOpThreads); err != nil {
		return errors.Wrap(err, "set inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "set graph optimization level")
	}

	for _, p := range c.Providers {
		err := appendProvider(options, p)
		if err == nil {
			continue
		}
		if p.Required {
			return errors.Wrapf(err, "enable %s provider", p.Backend)
		}
		logger.Warn("execution provider unavailable, falling back",
			zap.String("provider", string(p.Backend)), zap.Error(err))
	}
	return nil
}

func appendProvider(options *ort.SessionOptions, p Provider) error {
	switch p.Backend {
	case BackendCPU, "":
		return nil
	case BackendCoreML:
		flags := uint32(0)
		if v, ok := p.Options["flags"]; ok {
			parsed, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return errors.Wrapf(err, "coreml flags %q", v)
			}
			flags = uint32(parsed)
		}
		return options.AppendExecutionProviderCoreML(flags)
	case BackendOpenVINO:
		return options.AppendExecutionProviderOpenVINO(p.Options)
	case BackendCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		if len(p.Options) > 0 {
			if err := cuda.Update(p.Options); err != nil {
				return err
			}
		}
		return options.AppendExecutionProviderCUDA(cuda)
	default:
		return errors.Errorf("unsupported execution provider %q", p.Backend)
	}
}
