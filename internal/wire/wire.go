// Package wire encodes and decodes the ML-agents communicator messages that carry
// observations: ObservationProto, AgentInfoProto and BrainParametersProto.
//
// Field numbers follow the communicator .proto definitions. Decoders skip unknown
// fields and accept both packed and unpacked repeated scalars.
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when a message cannot be parsed.
var ErrMalformed = errors.New("malformed message")

func malformed(msg string, num protowire.Number, n int) error {
	return fmt.Errorf("%w: %s field %d: %v", ErrMalformed, msg, num, protowire.ParseError(n))
}

func appendPackedInt32s(b []byte, num protowire.Number, vs []int32) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendPackedFloats(b []byte, num protowire.Number, vs []float32) []byte {
	if len(vs) == 0 {
		return b
	}
	packed := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendPackedBools(b []byte, num protowire.Number, vs []bool) []byte {
	if len(vs) == 0 {
		return b
	}
	packed := make([]byte, 0, len(vs))
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, protowire.EncodeBool(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFloatField(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 && !math.Signbit(float64(v)) {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// consumeVarints reads one varint or a packed run of varints, depending on typ.
func consumeVarints(num protowire.Number, typ protowire.Type, b []byte, fn func(uint64)) (int, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, malformed("varint", num, n)
		}
		fn(v)
		return n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, malformed("packed", num, n)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return 0, malformed("packed varint", num, m)
			}
			fn(v)
			packed = packed[m:]
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: field %d has wire type %d, want varint", ErrMalformed, num, typ)
}

// consumeFloats reads one fixed32 float or a packed run of them, depending on typ.
func consumeFloats(num protowire.Number, typ protowire.Type, b []byte, fn func(float32)) (int, error) {
	switch typ {
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return 0, malformed("fixed32", num, n)
		}
		fn(math.Float32frombits(v))
		return n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, malformed("packed", num, n)
		}
		if len(packed)%4 != 0 {
			return 0, fmt.Errorf("%w: packed float field %d has %d bytes", ErrMalformed, num, len(packed))
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeFixed32(packed)
			if m < 0 {
				return 0, malformed("packed fixed32", num, m)
			}
			fn(math.Float32frombits(v))
			packed = packed[m:]
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: field %d has wire type %d, want fixed32", ErrMalformed, num, typ)
}

func consumeBytesField(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: field %d has wire type %d, want bytes", ErrMalformed, num, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, malformed("bytes", num, n)
	}
	return v, n, nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, malformed("unknown", num, n)
	}
	return n, nil
}

// walk iterates the fields of a message, handing each one to fn. fn returns the
// number of bytes it consumed from the field value.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed("tag", 0, n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}
