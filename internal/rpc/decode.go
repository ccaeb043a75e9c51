package rpc

import (
	"fmt"

	"github.com/koios/sensor-bridge/internal/wire"
	"github.com/koios/sensor-bridge/pkg/models"
)

// DecodedStep is one decoded and batched step of an agent group.
type DecodedStep struct {
	Brain  *models.BrainParameters
	Spec   models.AgentGroupSpec
	Result *BatchedStepResult
}

// DecodeStep decodes an encoded BrainParametersProto and one AgentInfoProto per
// agent and batches them. The group spec is derived from the first agent; an
// empty step needs no agent and yields an empty result.
func DecodeStep(params []byte, infos [][]byte) (*DecodedStep, error) {
	bp, err := wire.UnmarshalBrainParameters(params)
	if err != nil {
		return nil, fmt.Errorf("brain parameters: %w", err)
	}

	decoded := make([]*models.AgentInfo, 0, len(infos))
	for i, b := range infos {
		info, err := wire.UnmarshalAgentInfo(b)
		if err != nil {
			return nil, fmt.Errorf("agent info %d: %w", i, err)
		}
		decoded = append(decoded, info)
	}

	first := &models.AgentInfo{}
	if len(decoded) > 0 {
		first = decoded[0]
	}
	spec, err := AgentGroupSpecFromProto(bp, first)
	if err != nil {
		return nil, err
	}

	step := &DecodedStep{Brain: bp, Spec: spec}
	if len(decoded) == 0 {
		step.Result = EmptyBatchedStepResult(spec)
		return step, nil
	}

	if step.Result, err = BatchedStepResultFromProto(decoded, spec); err != nil {
		return nil, err
	}
	return step, nil
}
