// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-detect/images"
)

// Recognition is one detected object proposal.
type Recognition struct {
	// The predicted class index, an index into the model's labels.
	ClassID int
	// The label of ClassID. Empty until the recognition survives both suppression stages.
	ClassName string
	// The score of the winning class.
	ClassScore float32
	// The class-agnostic objectness ("confidence") of the detection slot.
	Objectness float32
	// The bounding box in original image pixels, clamped to the image.
	Box images.Rect
}

func (r Recognition) String() string {
	name := r.ClassName
	if name == "" {
		name = fmt.Sprintf("#%d", r.ClassID)
	}
	return fmt.Sprintf("Object %s (confidence %f, score %f): %s", name, r.Objectness, r.ClassScore, r.Box)
}
