package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/koios/sensor-bridge/pkg/models"
)

// AgentInfoProto fields; 1-6 and 12 are reserved
const (
	agentRewardField         protowire.Number = 7
	agentDoneField           protowire.Number = 8
	agentMaxStepReachedField protowire.Number = 9
	agentIDField             protowire.Number = 10
	agentActionMaskField     protowire.Number = 11
	agentObservationsField   protowire.Number = 13
)

// BrainParametersProto fields
const (
	brainVectorActionSizeField         protowire.Number = 3
	brainVectorActionDescriptionsField protowire.Number = 5
	brainVectorActionSpaceTypeField    protowire.Number = 6
	brainNameField                     protowire.Number = 7
	brainIsTrainingField               protowire.Number = 8
)

// MarshalAgentInfo encodes an AgentInfoProto.
func MarshalAgentInfo(a *models.AgentInfo) []byte {
	var b []byte
	b = appendFloatField(b, agentRewardField, a.Reward)
	b = appendVarintField(b, agentDoneField, protowire.EncodeBool(a.Done))
	b = appendVarintField(b, agentMaxStepReachedField, protowire.EncodeBool(a.MaxStepReached))
	b = appendVarintField(b, agentIDField, uint64(int64(a.ID)))
	b = appendPackedBools(b, agentActionMaskField, a.ActionMask)
	for i := range a.Observations {
		b = protowire.AppendTag(b, agentObservationsField, protowire.BytesType)
		b = protowire.AppendBytes(b, MarshalObservation(&a.Observations[i]))
	}
	return b
}

// UnmarshalAgentInfo decodes an AgentInfoProto.
func UnmarshalAgentInfo(b []byte) (*models.AgentInfo, error) {
	a := &models.AgentInfo{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case agentRewardField:
			return consumeFloats(num, typ, b, func(v float32) { a.Reward = v })
		case agentDoneField:
			return consumeVarints(num, typ, b, func(v uint64) { a.Done = protowire.DecodeBool(v) })
		case agentMaxStepReachedField:
			return consumeVarints(num, typ, b, func(v uint64) { a.MaxStepReached = protowire.DecodeBool(v) })
		case agentIDField:
			return consumeVarints(num, typ, b, func(v uint64) { a.ID = int32(v) })
		case agentActionMaskField:
			return consumeVarints(num, typ, b, func(v uint64) {
				a.ActionMask = append(a.ActionMask, protowire.DecodeBool(v))
			})
		case agentObservationsField:
			v, n, err := consumeBytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			obs, err := UnmarshalObservation(v)
			if err != nil {
				return 0, err
			}
			a.Observations = append(a.Observations, *obs)
			return n, nil
		}
		return skipField(num, typ, b)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// MarshalBrainParameters encodes a BrainParametersProto.
func MarshalBrainParameters(p *models.BrainParameters) []byte {
	var b []byte
	b = appendPackedInt32s(b, brainVectorActionSizeField, p.VectorActionSize)
	for _, d := range p.VectorActionDescriptions {
		b = protowire.AppendTag(b, brainVectorActionDescriptionsField, protowire.BytesType)
		b = protowire.AppendString(b, d)
	}
	b = appendVarintField(b, brainVectorActionSpaceTypeField, uint64(int64(p.VectorActionSpaceType)))
	b = appendStringField(b, brainNameField, p.BrainName)
	b = appendVarintField(b, brainIsTrainingField, protowire.EncodeBool(p.IsTraining))
	return b
}

// UnmarshalBrainParameters decodes a BrainParametersProto.
func UnmarshalBrainParameters(b []byte) (*models.BrainParameters, error) {
	p := &models.BrainParameters{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case brainVectorActionSizeField:
			return consumeVarints(num, typ, b, func(v uint64) {
				p.VectorActionSize = append(p.VectorActionSize, int32(v))
			})
		case brainVectorActionDescriptionsField:
			v, n, err := consumeBytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			p.VectorActionDescriptions = append(p.VectorActionDescriptions, string(v))
			return n, nil
		case brainVectorActionSpaceTypeField:
			return consumeVarints(num, typ, b, func(v uint64) { p.VectorActionSpaceType = int32(v) })
		case brainNameField:
			v, n, err := consumeBytesField(num, typ, b)
			if err != nil {
				return 0, err
			}
			p.BrainName = string(v)
			return n, nil
		case brainIsTrainingField:
			return consumeVarints(num, typ, b, func(v uint64) { p.IsTraining = protowire.DecodeBool(v) })
		}
		return skipField(num, typ, b)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
