// Package pixels converts between encoded images and float observation tensors.
//
// Pixel values are normalized to [0,1]. Color tensors are [height, width, 3] in
// RGB order; grayscale tensors are [height, width, 1] holding the mean of the
// three color channels. Alpha is dropped.
package pixels

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	// Registered decoders for ProcessPixels
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxDimension is the largest width or height Decode accepts.
const MaxDimension = 8192

// ErrImageTooLarge is returned when an image header declares a side above MaxDimension.
var ErrImageTooLarge = errors.New("image too large")

// DecodeConfig reads the dimensions and format name from an image header without
// decoding pixels.
func DecodeConfig(data []byte) (width, height int, format string, err error) {
	if len(data) == 0 {
		return 0, 0, "", fmt.Errorf("empty image payload")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// Decode decodes an image in any registered format and returns the format name.
// The header is checked against MaxDimension before any pixels are allocated.
func Decode(data []byte) (image.Image, string, error) {
	width, height, _, err := DecodeConfig(data)
	if err != nil {
		return nil, "", err
	}
	if width > MaxDimension || height > MaxDimension {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels per side", ErrImageTooLarge, width, height, MaxDimension)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// ProcessPixels decodes compressed image bytes into an observation tensor.
func ProcessPixels(data []byte, grayscale bool) (*Tensor, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return FromImage(img, grayscale), nil
}

// FromImage converts an in-memory image into an observation tensor.
func FromImage(img image.Image, grayscale bool) *Tensor {
	b := img.Bounds()
	channels := 3
	if grayscale {
		channels = 1
	}
	t := NewTensor(b.Dy(), b.Dx(), channels)
	WriteHWC(img, grayscale, t.Data)
	return t
}

// WriteHWC writes the pixels of img into dst in row-major height, width, channel
// order and returns the number of values written. dst must hold at least
// height*width*channels values.
func WriteHWC(img image.Image, grayscale bool, dst []float32) int {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			r := float32(c.R) / 255
			g := float32(c.G) / 255
			bl := float32(c.B) / 255
			if grayscale {
				dst[i] = (r + g + bl) / 3
				i++
				continue
			}
			dst[i] = r
			dst[i+1] = g
			dst[i+2] = bl
			i += 3
		}
	}
	return i
}

// EncodePNG encodes img as an opaque RGB PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	b := img.Bounds()
	opaque := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			opaque.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, opaque); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// Resize resamples img to width x height with bilinear interpolation.
func Resize(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	if b := img.Bounds(); b.Dx() == width && b.Dy() == height {
		return img, nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}
