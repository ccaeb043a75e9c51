package models

import (
	"fmt"
	"strconv"
	"strings"
)

// CompressionType selects how observation pixels are encoded before they are sent
// to a trainer. Values match the CompressionTypeProto wire numbering.
type CompressionType int32

const (
	CompressionNone CompressionType = 0
	CompressionPNG  CompressionType = 1
)

// CompressionTypes is the closed set of supported compression types.
var CompressionTypes = []CompressionType{CompressionNone, CompressionPNG}

// ParseCompressionType parses a case-insensitive compression name ("none", "png").
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return CompressionNone, nil
	case "png":
		return CompressionPNG, nil
	}
	return 0, fmt.Errorf("unknown compression type: %q", s)
}

// Valid reports whether c is a member of CompressionTypes.
func (c CompressionType) Valid() bool {
	for _, t := range CompressionTypes {
		if t == c {
			return true
		}
	}
	return false
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionPNG:
		return "png"
	}
	return "CompressionType(" + strconv.Itoa(int(c)) + ")"
}

// MarshalText encodes the compression type by name for JSON and YAML.
func (c CompressionType) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown compression type: %d", int32(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a compression type name.
func (c *CompressionType) UnmarshalText(text []byte) error {
	parsed, err := ParseCompressionType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Shape is the dimension list of an observation. Visual observations are
// [height, width, channels], vector observations are [size].
type Shape []int

// Equal reports whether both shapes have the same dimensions in the same order.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Size returns the number of elements described by the shape.
func (s Shape) Size() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// IsVisual reports whether the shape is an image shape.
func (s Shape) IsVisual() bool {
	return len(s) == 3
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ObservationDescriptor is the metadata of one observation: the compression type
// that was applied and the resulting shape.
type ObservationDescriptor struct {
	CompressionType CompressionType `json:"compression_type"`
	Shape           Shape           `json:"shape"`
}

// Observation is a descriptor plus its payload. CompressedData is set for PNG
// observations, FloatData for uncompressed ones.
type Observation struct {
	Shape           Shape
	CompressionType CompressionType
	CompressedData  []byte
	FloatData       []float32
}

// Descriptor returns the observation metadata.
func (o *Observation) Descriptor() ObservationDescriptor {
	return ObservationDescriptor{
		CompressionType: o.CompressionType,
		Shape:           append(Shape(nil), o.Shape...),
	}
}
