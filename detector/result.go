package detector

import (
	"time"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Result is the outcome of one detection.
type Result struct {
	// Model is the name of the model that produced the result.
	Model model.Name `json:"model"`
	// ImageSize is the size of the image the boxes refer to.
	ImageSize images.Size `json:"image_size"`
	// Recognitions survived both suppression stages, highest objectness first.
	Recognitions []postprocess.Recognition `json:"recognitions"`
	// InferenceDuration is the time spent in the inference engine.
	InferenceDuration time.Duration `json:"inference_duration"`
	// TotalDuration covers input preparation, inference and post-processing.
	TotalDuration time.Duration `json:"total_duration"`
}

// Visible returns the recognitions whose objectness is strictly greater than threshold, for
// display.
func (r *Result) Visible(threshold float32) []postprocess.Recognition {
	var visible []postprocess.Recognition
	for _, rec := range r.Recognitions {
		if rec.Objectness > threshold {
			visible = append(visible, rec)
		}
	}
	return visible
}
