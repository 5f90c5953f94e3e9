// Package config - YAML configuration of the detection command.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load for fields left empty.
const (
	DefaultModel           = models.ModelNameTrain38INT8
	DefaultModelsDir       = "models"
	DefaultAssetsDir       = "assets"
	DefaultRenderThreshold = 0.4
	DefaultReportInterval  = 10 * time.Second
)

// Config represents the application configuration.
type Config struct {
	Log       logger.Config   `yaml:"log"`
	Detection DetectionConfig `yaml:"detection"`
	Stats     StatsConfig     `yaml:"stats"`
	Model     ModelConfig     `yaml:"model"`
	Source    SourceConfig    `yaml:"source"`
	// Models declares models beyond the built-in catalog. A custom model shadows a built-in
	// one of the same name.
	Models []CustomModel `yaml:"models"`
}

// DetectionConfig contains the post-processing thresholds.
type DetectionConfig struct {
	postprocess.NMSConfig `yaml:",inline"`
	// RenderThreshold hides recognitions at or below this objectness when drawing.
	RenderThreshold float32 `yaml:"render_threshold"`
}

// StatsConfig contains frame statistics configuration.
type StatsConfig struct {
	profiler.Options `yaml:",inline"`
	// ReportInterval is how often stats are logged. 0 uses the default, negative disables.
	ReportInterval time.Duration `yaml:"report_interval"`
}

// ModelConfig selects the active model.
type ModelConfig struct {
	// Name of a built-in or custom model.
	Name model.Name `yaml:"name"`
	// Path to the model file. Defaults to the catalog file under ModelsDir.
	Path string `yaml:"path"`
	// Labels is a label file, one class per line. Defaults to the catalog labels.
	Labels    string `yaml:"labels"`
	ModelsDir string `yaml:"models_dir"`
	AssetsDir string `yaml:"assets_dir"`
	// Engine settings. Engine.Path is ignored in favor of Path.
	Engine inference.Config `yaml:"engine"`
}

// SourceConfig selects where frames come from. At most one of Video and Images may be set;
// with neither the camera Device is opened.
type SourceConfig struct {
	Device int    `yaml:"device"`
	Video  string `yaml:"video"`
	Images string `yaml:"images"`
	// Loop restarts a video or image sequence when it ends.
	Loop bool `yaml:"loop"`
	// Window shows frames with their recognitions.
	Window bool `yaml:"window"`
}

// CustomModel describes a model that is not in the built-in catalog.
type CustomModel struct {
	Name          model.Name          `yaml:"name"`
	Path          string              `yaml:"path"`
	Labels        []string            `yaml:"labels"`
	LabelsFile    string              `yaml:"labels_file"`
	Input         images.Size         `yaml:"input"`
	Output        []int               `yaml:"output"`
	AttributeAxis model.AttributeAxis `yaml:"attribute_axis"`
	Precision     string              `yaml:"precision"`
	InputQuant    *model.Quantization `yaml:"input_quant"`
	OutputQuant   *model.Quantization `yaml:"output_quant"`
}

// Default returns the configuration Load produces for an empty file.
func Default() *Config {
	cfg := newConfig()
	cfg.setDefaults()
	return &cfg
}

// newConfig returns a Config holding the defaults for fields where 0 is a valid value. YAML
// is decoded over it, so only keys present in the file replace them.
func newConfig() Config {
	return Config{
		Detection: DetectionConfig{
			NMSConfig:       postprocess.DefaultNMSConfig(),
			RenderThreshold: DefaultRenderThreshold,
		},
	}
}

// Load reads and parses the configuration file and fills in defaults. It does not validate;
// call Validate before use.
//
// Arguments:
//   - path: The YAML file. An empty path returns Default().
//
// Returns:
//   - *Config: The configuration.
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read configuration file")
	}

	return Parse(data)
}

// Parse parses YAML configuration and fills in defaults.
func Parse(data []byte) (*Config, error) {
	cfg := newConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse configuration")
	}

	cfg.setDefaults()
	return &cfg, nil
}

// setDefaults sets default values for fields left empty.
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Stats.FPSWindow == 0 {
		c.Stats.FPSWindow = profiler.DefaultFPSWindow
	}
	if c.Stats.InferenceSamples == 0 {
		c.Stats.InferenceSamples = profiler.DefaultInferenceSamples
	}
	if c.Stats.ReportInterval == 0 {
		c.Stats.ReportInterval = DefaultReportInterval
	}

	if c.Model.Name == "" {
		c.Model.Name = DefaultModel
	}
	if c.Model.ModelsDir == "" {
		c.Model.ModelsDir = DefaultModelsDir
	}
	if c.Model.AssetsDir == "" {
		c.Model.AssetsDir = DefaultAssetsDir
	}
	if len(c.Model.Engine.Providers.Providers) == 0 {
		c.Model.Engine.Providers.Providers = providers.DefaultConfig().Providers
	}
}

// custom returns the custom model named name.
func (c *Config) custom(name model.Name) (CustomModel, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return CustomModel{}, false
}

// ModelPath returns the file of the active model.
func (c *Config) ModelPath() string {
	if c.Model.Path != "" {
		return c.Model.Path
	}
	if m, ok := c.custom(c.Model.Name); ok {
		return m.Path
	}
	if e, ok := models.Lookup(c.Model.Name); ok {
		return filepath.Join(c.Model.ModelsDir, e.File)
	}
	return ""
}

// EngineConfig returns the engine settings for the active model.
func (c *Config) EngineConfig() inference.Config {
	cfg := c.Model.Engine
	cfg.Path = c.ModelPath()
	return cfg
}

// NMSConfig returns the post-processing thresholds.
func (c *Config) NMSConfig() postprocess.NMSConfig {
	return c.Detection.NMSConfig
}

// StatsOptions returns the frame statistics options.
func (c *Config) StatsOptions() profiler.Options {
	return c.Stats.Options
}

// Descriptor builds the descriptor of the active model, reading its labels file if one is
// configured.
//
// Returns:
//   - *model.Descriptor: The validated descriptor.
//   - error: An error if the model is unknown, the labels cannot be read, or the descriptor
//     is inconsistent (model.ErrConfigInconsistency).
func (c *Config) Descriptor() (*model.Descriptor, error) {
	labels, err := c.labels()
	if err != nil {
		return nil, err
	}

	if m, ok := c.custom(c.Model.Name); ok {
		return m.Descriptor(labels)
	}

	e, ok := models.Lookup(c.Model.Name)
	if !ok {
		return nil, errors.Errorf("unknown model %q", c.Model.Name)
	}
	if len(labels) == 0 && len(e.Labels) == 0 {
		labels, err = models.LoadLabelsFile(filepath.Join(c.Model.AssetsDir, e.LabelsFile))
		if err != nil {
			return nil, err
		}
	}
	return e.Descriptor(labels)
}

// labels reads the explicitly configured labels file, if any.
func (c *Config) labels() ([]string, error) {
	path := c.Model.Labels
	if path == "" {
		if m, ok := c.custom(c.Model.Name); ok {
			path = m.LabelsFile
		}
	}
	if path == "" {
		return nil, nil
	}
	return models.LoadLabelsFile(path)
}

// Descriptor builds the model descriptor. labels, when not empty, replace m.Labels.
func (m CustomModel) Descriptor(labels []string) (*model.Descriptor, error) {
	precision, err := model.ParsePrecision(m.Precision)
	if err != nil {
		return nil, errors.Wrapf(model.ErrConfigInconsistency, "model %s: %v", m.Name, err)
	}
	if len(labels) == 0 {
		labels = m.Labels
	}
	return model.NewDescriptor(model.NewDescriptorArgs{
		Name:        m.Name,
		Input:       m.Input,
		Output:      m.Output,
		Axis:        m.AttributeAxis,
		Precision:   precision,
		InputQuant:  m.InputQuant,
		OutputQuant: m.OutputQuant,
		Labels:      labels,
	})
}
