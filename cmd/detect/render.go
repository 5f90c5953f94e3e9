package main

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
	"gocv.io/x/gocv"
)

var (
	boxColor    = color.RGBA{0, 255, 0, 0}
	statusColor = color.RGBA{255, 255, 255, 0}
)

// draw overlays recognitions and the current stats on mat.
func draw(mat *gocv.Mat, recognitions []postprocess.Recognition, snap profiler.Snapshot) {
	for _, r := range recognitions {
		box := r.Box.Rectangle()
		gocv.Rectangle(mat, box, boxColor, 2)

		label := fmt.Sprintf("%s %.2f", r.ClassName, r.Objectness)
		origin := image.Pt(box.Min.X, max(box.Min.Y-4, 12))
		gocv.PutText(mat, label, origin, gocv.FontHersheyPlain, 1.0, boxColor, 2)
	}

	gocv.PutText(mat, fmt.Sprintf("FPS: %.1f", snap.FPS), image.Pt(10, 30),
		gocv.FontHersheyPlain, 1.2, statusColor, 2)
	gocv.PutText(mat, fmt.Sprintf("Inference: %v (%d/%d)", snap.MeanInference, snap.BlockProgress, snap.BlockSize),
		image.Pt(10, 60), gocv.FontHersheyPlain, 1.2, statusColor, 2)
	gocv.PutText(mat, fmt.Sprintf("Last: %v / %v", snap.LastInference, snap.LastTotal),
		image.Pt(10, 90), gocv.FontHersheyPlain, 1.2, statusColor, 2)
}
