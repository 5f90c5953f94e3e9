package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Layout is the order of the input tensor's dimensions.
type Layout string

const (
	// LayoutNHWC is [1, height, width, 3], as TFLite models expect.
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW is [1, 3, height, width], as ONNX exports expect.
	LayoutNCHW Layout = "nchw"
)

// PrepareInput builds the input tensor for one image.
//
// The image is resized to the model's input size with bilinear interpolation and every
// channel is normalized to [0, 1]. For quantized models the normalized values are quantized
// with the input parameters and stored as uint8.
//
// Arguments:
//   - img: The image to prepare.
//   - d: The descriptor of the model the input is for.
//   - layout: The dimension order of the resulting tensor.
//
// Returns:
//   - tensor.Tensor: A Float32 tensor, or a Uint8 tensor for quantized models.
//   - error: An error if the image is empty or the layout is unknown.
func PrepareInput(img image.Image, d *model.Descriptor, layout Layout) (tensor.Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("empty image")
	}

	size := d.InputSize()
	w, h := size.Width, size.Height

	var shape []int
	switch layout {
	case LayoutNHWC:
		shape = []int{1, h, w, 3}
	case LayoutNCHW:
		shape = []int{1, 3, h, w}
	default:
		return nil, errors.Errorf("unsupported input layout %q", layout)
	}

	resized := resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	values := normalized(resized, layout)

	q, quantized := d.InputQuant()
	if !quantized {
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(values)), nil
	}

	data := make([]uint8, len(values))
	for i, v := range values {
		data[i] = saturate(postprocess.Quantize(v, q))
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
}

// normalized returns the RGB channels of img scaled to [0, 1] in the given layout.
func normalized(img image.Image, layout Layout) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, plane*3)

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			red := float32(r>>8) / 255.0
			green := float32(g>>8) / 255.0
			blue := float32(bl>>8) / 255.0

			if layout == LayoutNCHW {
				out[i] = red
				out[plane+i] = green
				out[2*plane+i] = blue
			} else {
				out[3*i] = red
				out[3*i+1] = green
				out[3*i+2] = blue
			}
			i++
		}
	}
	return out
}

func saturate(v int32) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}
