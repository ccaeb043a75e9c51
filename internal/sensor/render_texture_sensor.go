package sensor

import (
	"fmt"
	"image"

	"github.com/koios/sensor-bridge/internal/pixels"
	"github.com/koios/sensor-bridge/pkg/models"
)

// RenderTextureSensor observes the current contents of a render texture.
// It is not safe for concurrent use.
type RenderTextureSensor struct {
	texture     image.Image
	grayscale   bool
	name        string
	compression models.CompressionType
}

// NewRenderTextureSensor creates a sensor over texture
func NewRenderTextureSensor(texture image.Image, grayscale bool, name string, compression models.CompressionType) *RenderTextureSensor {
	return &RenderTextureSensor{
		texture:     texture,
		grayscale:   grayscale,
		name:        name,
		compression: compression,
	}
}

func (s *RenderTextureSensor) Name() string {
	return s.name
}

func (s *RenderTextureSensor) CompressionType() models.CompressionType {
	return s.compression
}

// SetTexture swaps the observed texture, e.g. when a new frame was rendered
func (s *RenderTextureSensor) SetTexture(texture image.Image) {
	s.texture = texture
}

// Descriptor returns the compression type and shape of the next observation
func (s *RenderTextureSensor) Descriptor() (*models.ObservationDescriptor, error) {
	return Observe(s.texture, s.grayscale, s.compression)
}

// ObservationShape returns the observation shape, or nil when the texture has
// invalid dimensions
func (s *RenderTextureSensor) ObservationShape() models.Shape {
	desc, err := s.Descriptor()
	if err != nil {
		return nil
	}
	return desc.Shape
}

// Write fills dst with the texture as normalized height, width, channel floats
// and returns the number of values written
func (s *RenderTextureSensor) Write(dst []float32) (int, error) {
	desc, err := s.Descriptor()
	if err != nil {
		return 0, err
	}

	need := desc.Shape.Size()
	if len(dst) < need {
		return 0, fmt.Errorf("%w: need %d values, have %d", ErrShortBuffer, need, len(dst))
	}

	return pixels.WriteHWC(s.texture, s.grayscale, dst[:need]), nil
}

// CompressedObservation returns the PNG encoded texture. Grayscale sensors still
// send the color image; the receiving side averages the channels. It returns nil
// for uncompressed sensors.
func (s *RenderTextureSensor) CompressedObservation() ([]byte, error) {
	if _, err := s.Descriptor(); err != nil {
		return nil, err
	}

	switch s.compression {
	case models.CompressionNone:
		return nil, nil
	case models.CompressionPNG:
		return pixels.EncodePNG(s.texture)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, s.compression)
}

// Observation builds the full observation: descriptor plus payload
func (s *RenderTextureSensor) Observation() (*models.Observation, error) {
	desc, err := s.Descriptor()
	if err != nil {
		return nil, err
	}

	obs := &models.Observation{
		Shape:           desc.Shape,
		CompressionType: desc.CompressionType,
	}

	switch desc.CompressionType {
	case models.CompressionNone:
		obs.FloatData = make([]float32, desc.Shape.Size())
		if _, err := s.Write(obs.FloatData); err != nil {
			return nil, err
		}
	default:
		data, err := s.CompressedObservation()
		if err != nil {
			return nil, err
		}
		obs.CompressedData = data
	}

	return obs, nil
}
