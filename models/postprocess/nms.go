// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Default thresholds.
const (
	DefaultConfidenceThreshold     float32 = 0.25
	DefaultIoUThreshold            float32 = 0.45
	DefaultClassDuplicateThreshold float32 = 0.7
)

// NMSConfig defines parameters for extraction and two-stage Non-Maximum Suppression.
type NMSConfig struct {
	// Objectness must be strictly greater than this to become a recognition.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// Same-class overlap at or above this suppresses the lower-objectness box.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// Any-class overlap at or above this suppresses the lower-objectness box.
	ClassDuplicateThreshold float32 `json:"class_duplicate_threshold" yaml:"class_duplicate_threshold"`
}

// DefaultNMSConfig returns T=0.25, IoU=0.45 and cross-class IoU=0.7.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{
		ConfidenceThreshold:     DefaultConfidenceThreshold,
		IoUThreshold:            DefaultIoUThreshold,
		ClassDuplicateThreshold: DefaultClassDuplicateThreshold,
	}
}

// ApplyClassNMS is the first suppression stage: greedy NMS within each class.
//
// For every class id in [0, numClasses) the recognitions of that class whose objectness
// exceeds the confidence threshold form a pool. The pool's highest-objectness member is
// kept, every remaining member overlapping it with IoU >= IoUThreshold is discarded, and the
// selection repeats on what is left until the pool is empty.
//
// Arguments:
//   - recognitions: Candidates from Extract. Not modified.
//   - numClasses: The number of class ids with a score and a label.
//   - config: Thresholds.
//
// Returns:
//   - []Recognition: Survivors grouped by class id, in selection order within each class.
//   - error: ErrClassOutOfRange if a recognition's class id is outside [0, numClasses).
func ApplyClassNMS(recognitions []Recognition, numClasses int, config NMSConfig) ([]Recognition, error) {
	for _, r := range recognitions {
		if r.ClassID < 0 || r.ClassID >= numClasses {
			return nil, errors.Wrapf(model.ErrClassOutOfRange, "class %d, model has %d classes", r.ClassID, numClasses)
		}
	}

	kept := make([]Recognition, 0, len(recognitions))
	for c := 0; c < numClasses; c++ {
		var pool []Recognition
		for _, r := range recognitions {
			if r.ClassID == c && r.Objectness > config.ConfidenceThreshold {
				pool = append(pool, r)
			}
		}
		kept = append(kept, suppress(pool, config.IoUThreshold)...)
	}
	return kept, nil
}

// ApplyCrossClassNMS is the second suppression stage. It runs the same greedy selection as
// ApplyClassNMS over all recognitions regardless of class, with ClassDuplicateThreshold, to
// collapse one object that was classified twice.
//
// Returns:
//   - []Recognition: Survivors in selection order (highest objectness first).
func ApplyCrossClassNMS(recognitions []Recognition, config NMSConfig) []Recognition {
	pool := make([]Recognition, 0, len(recognitions))
	for _, r := range recognitions {
		if r.Objectness > config.ConfidenceThreshold {
			pool = append(pool, r)
		}
	}
	return suppress(pool, config.ClassDuplicateThreshold)
}

// suppress repeatedly selects the highest-objectness member of pool and drops the members
// overlapping it by at least threshold. Ties go to the earliest member. pool is consumed.
func suppress(pool []Recognition, threshold float32) []Recognition {
	kept := make([]Recognition, 0, len(pool))
	for len(pool) > 0 {
		best := 0
		for i := 1; i < len(pool); i++ {
			if pool[i].Objectness > pool[best].Objectness {
				best = i
			}
		}
		winner := pool[best]
		kept = append(kept, winner)

		remaining := pool[:0]
		for i, r := range pool {
			if i == best {
				continue
			}
			if images.CalculateIoU(winner.Box, r.Box) < threshold {
				remaining = append(remaining, r)
			}
		}
		pool = remaining
	}
	return kept
}

// ResolveLabels assigns ClassName from d's labels to every recognition in place.
//
// Returns:
//   - error: ErrClassOutOfRange if a class id has no label. No names are assigned then.
func ResolveLabels(recognitions []Recognition, d *model.Descriptor) error {
	names := make([]string, len(recognitions))
	for i, r := range recognitions {
		name, err := d.Label(r.ClassID)
		if err != nil {
			return err
		}
		names[i] = name
	}
	for i := range recognitions {
		recognitions[i].ClassName = names[i]
	}
	return nil
}

// PostProcess runs the whole pipeline on one output: Decode, Extract, ApplyClassNMS,
// ApplyCrossClassNMS and ResolveLabels.
//
// Arguments:
//   - output: The raw output tensor of one frame.
//   - d: The descriptor of the model that produced output.
//   - imageSize: The size of the original image.
//   - config: Thresholds.
//
// Returns:
//   - []Recognition: Named survivors in selection order.
//   - error: ErrShapeMismatch, ErrConfigInconsistency or ErrClassOutOfRange (wrapped).
func PostProcess(output tensor.Tensor, d *model.Descriptor, imageSize images.Size, config NMSConfig) ([]Recognition, error) {
	grid, err := Decode(output, d)
	if err != nil {
		return nil, err
	}

	candidates := Extract(grid, d, imageSize, config.ConfidenceThreshold)

	perClass, err := ApplyClassNMS(candidates, min(d.NumClasses(), d.LabelCount()), config)
	if err != nil {
		return nil, err
	}

	final := ApplyCrossClassNMS(perClass, config)
	if err := ResolveLabels(final, d); err != nil {
		return nil, err
	}
	return final, nil
}
