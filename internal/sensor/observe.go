// Package sensor turns image sources into ML-agents observations.
package sensor

import (
	"errors"
	"fmt"
	"image"

	"github.com/koios/sensor-bridge/pkg/models"
)

var (
	// ErrInvalidDimension is returned when a source image has a non-positive width or height.
	ErrInvalidDimension = errors.New("invalid dimension")
	// ErrShortBuffer is returned when a destination buffer cannot hold an observation.
	ErrShortBuffer = errors.New("observation buffer too small")
	// ErrUnsupportedCompression is returned when a payload is requested for an unknown compression type.
	ErrUnsupportedCompression = errors.New("unsupported compression type")
)

// Observe describes the observation src produces: the requested compression type,
// unchanged, and the shape [height, width, channels] with one channel for
// grayscale and three otherwise. src is only read for its bounds.
func Observe(src image.Image, grayscale bool, compression models.CompressionType) (*models.ObservationDescriptor, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source image", ErrInvalidDimension)
	}

	b := src.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimension, width, height)
	}

	channels := 3
	if grayscale {
		channels = 1
	}

	return &models.ObservationDescriptor{
		CompressionType: compression,
		Shape:           models.Shape{height, width, channels},
	}, nil
}
