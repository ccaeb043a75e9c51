package rpc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/koios/sensor-bridge/internal/pixels"
	"github.com/koios/sensor-bridge/pkg/models"
)

// ObservationBatch holds one observation slot for every agent in a step.
// Exactly one of Visual ([n, h, w, c]) and Vector (n x size) is set.
type ObservationBatch struct {
	Visual *pixels.Tensor
	Vector *mat.Dense
}

// BatchedStepResult is the state of every agent of a group after a step.
type BatchedStepResult struct {
	Obs     []ObservationBatch
	Reward  []float32
	Done    []bool
	MaxStep []bool
	AgentID []int32

	// ActionMask has one [n_agents][branch_size] matrix per discrete branch,
	// true where the action is masked. Nil for continuous groups.
	ActionMask [][][]bool

	idToIndex map[int32]int
}

// StepResult is the state of a single agent after a step.
type StepResult struct {
	Obs        []AgentObservation
	Reward     float32
	Done       bool
	MaxStep    bool
	AgentID    int32
	ActionMask [][]bool
}

// AgentObservation is one observation of a single agent.
type AgentObservation struct {
	Visual *pixels.Tensor
	Vector []float64
}

// NAgents is the number of agents in the step.
func (r *BatchedStepResult) NAgents() int {
	return len(r.AgentID)
}

// AgentIDToIndex maps agent ids to their row in the batch.
func (r *BatchedStepResult) AgentIDToIndex() map[int32]int {
	if r.idToIndex == nil {
		r.idToIndex = make(map[int32]int, len(r.AgentID))
		for i, id := range r.AgentID {
			r.idToIndex[id] = i
		}
	}
	return r.idToIndex
}

// Contains reports whether the agent is part of the step.
func (r *BatchedStepResult) Contains(agentID int32) bool {
	_, ok := r.AgentIDToIndex()[agentID]
	return ok
}

// AgentStep extracts the step of a single agent. Observation tensors share
// storage with the batch.
func (r *BatchedStepResult) AgentStep(agentID int32) (*StepResult, error) {
	idx, ok := r.AgentIDToIndex()[agentID]
	if !ok {
		return nil, fmt.Errorf("agent %d is not part of this step", agentID)
	}

	step := &StepResult{
		Reward:  r.Reward[idx],
		Done:    r.Done[idx],
		MaxStep: r.MaxStep[idx],
		AgentID: agentID,
	}
	for _, batch := range r.Obs {
		var obs AgentObservation
		if batch.Visual != nil {
			obs.Visual = batch.Visual.Index(idx)
		} else if batch.Vector != nil {
			obs.Vector = mat.Row(nil, idx, batch.Vector)
		}
		step.Obs = append(step.Obs, obs)
	}
	if r.ActionMask != nil {
		step.ActionMask = make([][]bool, len(r.ActionMask))
		for b, branch := range r.ActionMask {
			step.ActionMask[b] = branch[idx]
		}
	}
	return step, nil
}

// EmptyBatchedStepResult returns a step with no agents shaped after spec.
func EmptyBatchedStepResult(spec models.AgentGroupSpec) *BatchedStepResult {
	r := &BatchedStepResult{
		Reward:  []float32{},
		Done:    []bool{},
		MaxStep: []bool{},
		AgentID: []int32{},
	}
	for _, shape := range spec.ObservationShapes {
		if shape.IsVisual() {
			r.Obs = append(r.Obs, ObservationBatch{Visual: pixels.NewTensor(append([]int{0}, shape...)...)})
		} else {
			r.Obs = append(r.Obs, ObservationBatch{Vector: &mat.Dense{}})
		}
	}
	return r
}

// BatchedStepResultFromProto batches the agent infos of one group according to spec.
func BatchedStepResultFromProto(infos []*models.AgentInfo, spec models.AgentGroupSpec) (*BatchedStepResult, error) {
	r := &BatchedStepResult{}

	for i, shape := range spec.ObservationShapes {
		if shape.IsVisual() {
			visual, err := ProcessVisualObservation(i, shape, infos)
			if err != nil {
				return nil, err
			}
			r.Obs = append(r.Obs, ObservationBatch{Visual: visual})
			continue
		}
		vector, err := ProcessVectorObservation(i, shape, infos)
		if err != nil {
			return nil, err
		}
		r.Obs = append(r.Obs, ObservationBatch{Vector: vector})
	}

	n := len(infos)
	r.Reward = make([]float32, n)
	r.Done = make([]bool, n)
	r.MaxStep = make([]bool, n)
	r.AgentID = make([]int32, n)
	rewards := make([]float64, n)
	for i, info := range infos {
		r.Reward[i] = info.Reward
		r.Done[i] = info.Done
		r.MaxStep[i] = info.MaxStepReached
		r.AgentID[i] = info.ID
		rewards[i] = float64(info.Reward)
	}
	if err := raiseOnNaNAndInf(rewards, "rewards"); err != nil {
		return nil, err
	}

	if spec.IsActionDiscrete() {
		masks, err := actionMasks(infos, spec.DiscreteActionBranches())
		if err != nil {
			return nil, err
		}
		r.ActionMask = masks
	}
	return r, nil
}

// actionMasks builds one mask matrix per branch. Agents whose mask does not cover
// every branch get no masked actions.
func actionMasks(infos []*models.AgentInfo, branches []int) ([][][]bool, error) {
	total := 0
	for _, b := range branches {
		total += b
	}
	if total > 0 && len(infos) > MaxBatchSize/total {
		return nil, fmt.Errorf("%w: %d agents with %d discrete actions exceed %d mask entries",
			ErrActionSpec, len(infos), total, MaxBatchSize)
	}

	masks := make([][][]bool, len(branches))
	for b, size := range branches {
		masks[b] = make([][]bool, len(infos))
		for i := range infos {
			masks[b][i] = make([]bool, size)
		}
	}

	for i, info := range infos {
		if len(info.ActionMask) != total {
			continue
		}
		offset := 0
		for b, size := range branches {
			copy(masks[b][i], info.ActionMask[offset:offset+size])
			offset += size
		}
	}
	return masks, nil
}

// AgentInfosFromBatchedStepResult turns a batched step back into one AgentInfo per
// agent. Visual observations are emitted uncompressed.
func AgentInfosFromBatchedStepResult(r *BatchedStepResult) []*models.AgentInfo {
	infos := make([]*models.AgentInfo, 0, r.NAgents())
	for idx, id := range r.AgentID {
		info := &models.AgentInfo{
			Reward:         r.Reward[idx],
			Done:           r.Done[idx],
			MaxStepReached: r.MaxStep[idx],
			ID:             id,
		}

		for _, batch := range r.Obs {
			switch {
			case batch.Visual != nil:
				t := batch.Visual.Index(idx)
				info.Observations = append(info.Observations, models.Observation{
					Shape:           models.Shape(append([]int(nil), t.Shape...)),
					CompressionType: models.CompressionNone,
					FloatData:       append([]float32(nil), t.Data...),
				})
			case batch.Vector != nil:
				row := mat.Row(nil, idx, batch.Vector)
				data := make([]float32, len(row))
				for i, v := range row {
					data[i] = float32(v)
				}
				info.Observations = append(info.Observations, models.Observation{
					Shape:           models.Shape{len(row)},
					CompressionType: models.CompressionNone,
					FloatData:       data,
				})
			}
		}

		if r.ActionMask != nil {
			info.ActionMask = []bool{}
			for _, branch := range r.ActionMask {
				info.ActionMask = append(info.ActionMask, branch[idx]...)
			}
		}
		infos = append(infos, info)
	}
	return infos
}
