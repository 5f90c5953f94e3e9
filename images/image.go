// Package images - Image dimensions used across the detection pipeline.
package images

import "image"

// Size is a width/height pair in pixels.
type Size struct {
	// The width in pixels.
	Width int `json:"width" yaml:"width"`
	// The height in pixels.
	Height int `json:"height" yaml:"height"`
}

// SizeOf returns the dimensions of img's bounds.
func SizeOf(img image.Image) Size {
	b := img.Bounds()
	return Size{Width: b.Dx(), Height: b.Dy()}
}

// Empty reports whether either dimension is not positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}
