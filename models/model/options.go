// Package model - Model options.
package model

import (
	"strings"

	"github.com/pkg/errors"
)

// Precision represents the numeric precision a model was exported with.
type Precision string

const (
	// PrecisionFP32 represents 32-bit floating point precision.
	PrecisionFP32 Precision = "FP32"
	// PrecisionFP16 represents 16-bit floating point precision. The runtime still exchanges
	// float32 tensors with the caller.
	PrecisionFP16 Precision = "FP16"
	// PrecisionINT8 represents 8-bit integer precision with (scale, zero point) quantization.
	PrecisionINT8 Precision = "INT8"
)

// Quantized reports whether tensors of this precision are stored as scaled integers.
func (p Precision) Quantized() bool {
	return p == PrecisionINT8
}

// ParsePrecision parses a case-insensitive precision name. An empty string is FP32.
func ParsePrecision(s string) (Precision, error) {
	switch Precision(strings.ToUpper(s)) {
	case "", PrecisionFP32:
		return PrecisionFP32, nil
	case PrecisionFP16:
		return PrecisionFP16, nil
	case PrecisionINT8:
		return PrecisionINT8, nil
	default:
		return "", errors.Errorf("unknown precision %q (must be FP32, FP16 or INT8)", s)
	}
}

// AttributeAxis identifies which of the two non-batch output dimensions holds the per
// detection attributes (box, objectness, class scores).
type AttributeAxis int

const (
	// AxisAuto derives the axis from the output shape: the smaller dimension is attributes.
	AxisAuto AttributeAxis = iota
	// AxisFirst means the output is [1, attributes, detections].
	AxisFirst
	// AxisSecond means the output is [1, detections, attributes].
	AxisSecond
)

// ParseAttributeAxis parses "first", "second" or "" (auto).
func ParseAttributeAxis(s string) (AttributeAxis, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return AxisAuto, nil
	case "first":
		return AxisFirst, nil
	case "second":
		return AxisSecond, nil
	default:
		return AxisAuto, errors.Errorf("unknown attribute axis %q (must be first or second)", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so the axis can be set from YAML/JSON.
func (a *AttributeAxis) UnmarshalText(text []byte) error {
	axis, err := ParseAttributeAxis(string(text))
	if err != nil {
		return err
	}
	*a = axis
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a AttributeAxis) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a AttributeAxis) String() string {
	switch a {
	case AxisFirst:
		return "first"
	case AxisSecond:
		return "second"
	default:
		return "auto"
	}
}
