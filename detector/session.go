package detector

import (
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/pkg/errors"
)

// Session pairs a model descriptor with the engine running that model and the thresholds
// used to post-process its output. A Session is immutable; changing the active model means
// building a new Session and installing it with Detector.Swap.
type Session struct {
	descriptor *model.Descriptor
	engine     inference.Engine
	config     postprocess.NMSConfig
}

// NewSession creates a new Session.
//
// Arguments:
//   - d: The descriptor of the model engine runs.
//   - engine: The inference engine. The Session owns it from now on.
//   - config: The post-processing thresholds, each in [0, 1].
//
// Returns:
//   - *Session: The session.
//   - error: ErrConfigInconsistency (wrapped) if an argument is missing or a threshold is out
//     of range.
func NewSession(d *model.Descriptor, engine inference.Engine, config postprocess.NMSConfig) (*Session, error) {
	if d == nil {
		return nil, errors.Wrap(model.ErrConfigInconsistency, "session without descriptor")
	}
	if engine == nil {
		return nil, errors.Wrapf(model.ErrConfigInconsistency, "session for %s without engine", d.Name())
	}

	for name, v := range map[string]float32{
		"confidence_threshold":      config.ConfidenceThreshold,
		"iou_threshold":             config.IoUThreshold,
		"class_duplicate_threshold": config.ClassDuplicateThreshold,
	} {
		if v < 0 || v > 1 {
			return nil, errors.Wrapf(model.ErrConfigInconsistency, "%s %v outside [0, 1]", name, v)
		}
	}

	return &Session{descriptor: d, engine: engine, config: config}, nil
}

// Descriptor returns the model descriptor.
func (s *Session) Descriptor() *model.Descriptor { return s.descriptor }

// Config returns the post-processing thresholds.
func (s *Session) Config() postprocess.NMSConfig { return s.config }

// Close closes the engine.
func (s *Session) Close() error {
	return s.engine.Close()
}
