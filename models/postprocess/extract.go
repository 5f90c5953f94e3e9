package postprocess

import (
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
)

// Extract turns the columns of a decoded grid into recognitions.
//
// A detection slot is kept only when its objectness is strictly greater than threshold. Box
// attributes are (center-x, center-y, width, height) normalized to the model input; they are
// scaled to imageSize, converted to corners and clamped to the image. The class is the arg
// max over the class scores, the lowest index winning ties.
//
// Arguments:
//   - grid: The decoded output, [attribute][detection].
//   - d: The descriptor of the model that produced the output.
//   - imageSize: The size of the original image the boxes are scaled to.
//   - threshold: The objectness threshold T.
//
// Returns:
//   - []Recognition: Unnamed recognitions in detection index order.
func Extract(grid Grid, d *model.Descriptor, imageSize images.Size, threshold float32) []Recognition {
	numClasses := d.NumClasses()
	width, height := float32(imageSize.Width), float32(imageSize.Height)

	var recognitions []Recognition
	for i := 0; i < grid.Detections(); i++ {
		objectness := grid[model.ObjectnessAttribute][i]
		if objectness <= threshold {
			continue
		}

		box := images.FromCenter(
			grid[0][i]*width,
			grid[1][i]*height,
			grid[2][i]*width,
			grid[3][i]*height,
			imageSize,
		)

		classID := 0
		classScore := grid[model.ClassOffset][i]
		for c := 1; c < numClasses; c++ {
			if score := grid[model.ClassOffset+c][i]; score > classScore {
				classScore = score
				classID = c
			}
		}

		recognitions = append(recognitions, Recognition{
			ClassID:    classID,
			ClassScore: classScore,
			Objectness: objectness,
			Box:        box,
		})
	}
	return recognitions
}
