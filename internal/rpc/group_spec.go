package rpc

import (
	"errors"
	"fmt"

	"github.com/koios/sensor-bridge/pkg/models"
)

// ErrActionSpec is returned when brain parameters describe an unusable action space.
var ErrActionSpec = errors.New("invalid action space")

// MaxActionBranchSize bounds the size of one discrete action branch.
const MaxActionBranchSize = 1 << 16

// AgentGroupSpecFromProto derives a group spec from brain parameters and one
// agent's observations.
func AgentGroupSpecFromProto(params *models.BrainParameters, info *models.AgentInfo) (models.AgentGroupSpec, error) {
	spec := models.AgentGroupSpec{}
	for _, obs := range info.Observations {
		spec.ObservationShapes = append(spec.ObservationShapes, append(models.Shape(nil), obs.Shape...))
	}

	if params.VectorActionSpaceType == models.SpaceTypeDiscrete {
		spec.ActionType = models.ActionTypeDiscrete
		for _, size := range params.VectorActionSize {
			if size <= 0 || size > MaxActionBranchSize {
				return spec, fmt.Errorf("%w: discrete brain %q declares branch size %d outside [1, %d]",
					ErrActionSpec, params.BrainName, size, MaxActionBranchSize)
			}
			spec.ActionShape = append(spec.ActionShape, int(size))
		}
		return spec, nil
	}

	spec.ActionType = models.ActionTypeContinuous
	if len(params.VectorActionSize) == 0 {
		return spec, fmt.Errorf("%w: continuous brain %q declares no action size", ErrActionSpec, params.BrainName)
	}
	if params.VectorActionSize[0] < 0 {
		return spec, fmt.Errorf("%w: continuous brain %q declares negative action size %d", ErrActionSpec, params.BrainName, params.VectorActionSize[0])
	}
	spec.ActionShape = []int{int(params.VectorActionSize[0])}
	return spec, nil
}
