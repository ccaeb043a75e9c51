package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/koios/sensor-bridge/pkg/models"
)

// ObservationProto fields
const (
	observationShapeField           protowire.Number = 1
	observationCompressionTypeField protowire.Number = 2
	observationCompressedDataField  protowire.Number = 3
	observationFloatDataField       protowire.Number = 4

	floatDataDataField protowire.Number = 1
)

// MarshalObservation encodes an observation as an ObservationProto.
func MarshalObservation(o *models.Observation) []byte {
	return AppendObservation(nil, o)
}

// AppendObservation appends the ObservationProto encoding of o to b.
func AppendObservation(b []byte, o *models.Observation) []byte {
	shape := make([]int32, len(o.Shape))
	for i, d := range o.Shape {
		shape[i] = int32(d)
	}
	b = appendPackedInt32s(b, observationShapeField, shape)
	b = appendVarintField(b, observationCompressionTypeField, uint64(int64(o.CompressionType)))

	// observation_data is a oneof; compressed data wins when both are set
	switch {
	case o.CompressedData != nil:
		b = protowire.AppendTag(b, observationCompressedDataField, protowire.BytesType)
		b = protowire.AppendBytes(b, o.CompressedData)
	case o.FloatData != nil:
		inner := appendPackedFloats(nil, floatDataDataField, o.FloatData)
		b = protowire.AppendTag(b, observationFloatDataField, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	return b
}

// UnmarshalObservation decodes an ObservationProto.
func UnmarshalObservation(b []byte) (*models.Observation, error) {
	o := &models.Observation{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case observationShapeField:
			return consumeVarints(num, typ, b, func(v uint64) {
				o.Shape = append(o.Shape, int(int32(v)))
			})
		case observationCompressionTypeField:
			return consumeVarints(num, typ, b, func(v uint64) {
				o.CompressionType = models.CompressionType(int32(v))
			})
		case observationCompressedDataField:
			v, n, err := consumeBytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			o.CompressedData = append([]byte{}, v...)
			o.FloatData = nil
			return n, nil
		case observationFloatDataField:
			v, n, err := consumeBytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			data := []float32{}
			err = walk(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if num != floatDataDataField {
					return skipField(num, typ, b)
				}
				return consumeFloats(num, typ, b, func(f float32) {
					data = append(data, f)
				})
			})
			if err != nil {
				return 0, err
			}
			o.FloatData = data
			o.CompressedData = nil
			return n, nil
		}
		return skipField(num, typ, b)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}
