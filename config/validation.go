package config

import (
	"fmt"
	"strings"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
)

// Validate validates the configuration, reporting every problem at once.
//
// Custom models are checked with the same rules as model.NewDescriptor, using placeholder
// labels when theirs come from a file. Label files are not read here.
func (c *Config) Validate() error {
	var problems []string

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		problems = append(problems, fmt.Sprintf("invalid log.level: %s (must be: debug, info, warn, error)", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("invalid log.format: %s (must be: text or json)", c.Log.Format))
	}

	for name, v := range map[string]float32{
		"detection.confidence_threshold":      c.Detection.ConfidenceThreshold,
		"detection.iou_threshold":             c.Detection.IoUThreshold,
		"detection.class_duplicate_threshold": c.Detection.ClassDuplicateThreshold,
		"detection.render_threshold":          c.Detection.RenderThreshold,
	} {
		if v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("%s must be between 0 and 1, got: %.2f", name, v))
		}
	}

	if c.Stats.FPSWindow < 0 {
		problems = append(problems, fmt.Sprintf("stats.fps_window must be >= 0, got: %v", c.Stats.FPSWindow))
	}
	if c.Stats.InferenceSamples < 0 {
		problems = append(problems, fmt.Sprintf("stats.inference_samples must be >= 0, got: %d", c.Stats.InferenceSamples))
	}

	problems = append(problems, c.validateModel()...)

	if c.Source.Video != "" && c.Source.Images != "" {
		problems = append(problems, "source.video and source.images are mutually exclusive")
	}
	if c.Source.Device < 0 {
		problems = append(problems, fmt.Sprintf("source.device must be >= 0, got: %d", c.Source.Device))
	}

	if len(problems) > 0 {
		return errors.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func (c *Config) validateModel() []string {
	var problems []string

	seen := make(map[model.Name]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Name == "" {
			problems = append(problems, fmt.Sprintf("models[%d].name is required", i))
			continue
		}
		if seen[m.Name] {
			problems = append(problems, fmt.Sprintf("models[%d]: duplicate name %s", i, m.Name))
		}
		seen[m.Name] = true

		labels := m.Labels
		if len(labels) == 0 && m.LabelsFile == "" {
			problems = append(problems, fmt.Sprintf("models[%d] %s: labels or labels_file is required", i, m.Name))
			continue
		}
		if len(labels) == 0 {
			labels = []string{"placeholder"}
		}
		if _, err := m.Descriptor(labels); err != nil {
			problems = append(problems, fmt.Sprintf("models[%d]: %v", i, err))
		}
	}

	_, custom := c.custom(c.Model.Name)
	if _, builtin := models.Lookup(c.Model.Name); !custom && !builtin {
		problems = append(problems, fmt.Sprintf("unknown model.name: %s (built-in: %v)", c.Model.Name, models.Names()))
	}
	if custom && c.ModelPath() == "" {
		problems = append(problems, fmt.Sprintf("model %s: path is required", c.Model.Name))
	}

	engine := c.EngineConfig()
	if engine.Type != "" && engine.Type != inference.EngineONNX && engine.Type != inference.EngineTFLite {
		problems = append(problems, fmt.Sprintf("invalid model.engine.type: %s (must be one of %v)", engine.Type, inference.Engines))
	} else if engine.Type == "" && engine.Path != "" {
		if _, err := inference.EngineTypeFromPath(engine.Path); err != nil {
			problems = append(problems, fmt.Sprintf("model.engine.type: %v", err))
		}
	}
	if engine.Threads < 0 {
		problems = append(problems, fmt.Sprintf("model.engine.threads must be >= 0, got: %d", engine.Threads))
	}
	for i, p := range engine.Providers.Providers {
		if _, err := providers.ParseBackend(string(p.Backend)); err != nil {
			problems = append(problems, fmt.Sprintf("model.engine.providers.providers[%d]: %v", i, err))
		}
	}

	return problems
}
