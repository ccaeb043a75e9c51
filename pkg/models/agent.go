package models

// AgentInfo is one agent's step as reported by the environment.
type AgentInfo struct {
	Reward         float32
	Done           bool
	MaxStepReached bool
	ID             int32
	ActionMask     []bool
	Observations   []Observation
}

// Vector action space types as sent in BrainParameters.
const (
	SpaceTypeDiscrete   int32 = 0
	SpaceTypeContinuous int32 = 1
)

// BrainParameters describes the action space of a group of agents.
type BrainParameters struct {
	VectorActionSize         []int32
	VectorActionDescriptions []string
	VectorActionSpaceType    int32
	BrainName                string
	IsTraining               bool
}

// ActionType is the kind of action space an agent group uses.
type ActionType int

const (
	ActionTypeDiscrete ActionType = iota
	ActionTypeContinuous
)

func (a ActionType) String() string {
	if a == ActionTypeDiscrete {
		return "discrete"
	}
	return "continuous"
}

// AgentGroupSpec describes the observations and actions of a group of agents.
// For discrete groups ActionShape holds one size per branch, for continuous
// groups it holds the single action vector size.
type AgentGroupSpec struct {
	ObservationShapes []Shape
	ActionType        ActionType
	ActionShape       []int
}

func (s AgentGroupSpec) IsActionDiscrete() bool {
	return s.ActionType == ActionTypeDiscrete
}

func (s AgentGroupSpec) IsActionContinuous() bool {
	return s.ActionType == ActionTypeContinuous
}

// ActionSize is the number of branches for discrete groups and the vector size
// for continuous ones.
func (s AgentGroupSpec) ActionSize() int {
	if s.IsActionDiscrete() {
		return len(s.ActionShape)
	}
	if len(s.ActionShape) == 0 {
		return 0
	}
	return s.ActionShape[0]
}

// DiscreteActionBranches returns the branch sizes, or nil for continuous groups.
func (s AgentGroupSpec) DiscreteActionBranches() []int {
	if !s.IsActionDiscrete() {
		return nil
	}
	return append([]int(nil), s.ActionShape...)
}

// EmptyAction returns a zero action for n agents.
func (s AgentGroupSpec) EmptyAction(n int) [][]float32 {
	actions := make([][]float32, n)
	for i := range actions {
		actions[i] = make([]float32, s.ActionSize())
	}
	return actions
}
