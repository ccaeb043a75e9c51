package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompressionType(t *testing.T) {
	for _, c := range CompressionTypes {
		parsed, err := ParseCompressionType(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	parsed, err := ParseCompressionType(" PNG ")
	require.NoError(t, err)
	assert.Equal(t, CompressionPNG, parsed)

	_, err = ParseCompressionType("jpeg")
	assert.Error(t, err)
}

func TestCompressionTypeJSON(t *testing.T) {
	type wrapper struct {
		Compression CompressionType `json:"compression"`
	}

	data, err := json.Marshal(wrapper{Compression: CompressionPNG})
	require.NoError(t, err)
	assert.JSONEq(t, `{"compression":"png"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"compression":"none"}`), &w))
	assert.Equal(t, CompressionNone, w.Compression)

	assert.Error(t, json.Unmarshal([]byte(`{"compression":"gif"}`), &w))

	_, err = json.Marshal(wrapper{Compression: CompressionType(9)})
	assert.Error(t, err)
}

func TestCompressionTypeValid(t *testing.T) {
	for _, c := range CompressionTypes {
		assert.True(t, c.Valid(), c.String())
	}
	assert.False(t, CompressionType(-1).Valid())
	assert.Equal(t, "CompressionType(7)", CompressionType(7).String())
}

func TestShape(t *testing.T) {
	s := Shape{16, 24, 3}
	assert.Equal(t, 16*24*3, s.Size())
	assert.True(t, s.IsVisual())
	assert.True(t, s.Equal(Shape{16, 24, 3}))
	assert.False(t, s.Equal(Shape{16, 24, 1}))
	assert.False(t, s.Equal(Shape{16, 24}))
	assert.Equal(t, "(16, 24, 3)", s.String())

	assert.Equal(t, 0, Shape{}.Size())
	assert.False(t, Shape{4}.IsVisual())
}

func TestObservationDescriptorIsCopy(t *testing.T) {
	obs := &Observation{Shape: Shape{2, 2, 1}, CompressionType: CompressionPNG}
	desc := obs.Descriptor()
	desc.Shape[0] = 99

	assert.Equal(t, 2, obs.Shape[0])
	assert.Equal(t, CompressionPNG, desc.CompressionType)
}

func TestAgentGroupSpec(t *testing.T) {
	t.Run("discrete", func(t *testing.T) {
		spec := AgentGroupSpec{
			ObservationShapes: []Shape{{3}, {4}},
			ActionType:        ActionTypeDiscrete,
			ActionShape:       []int{5, 4},
		}
		assert.True(t, spec.IsActionDiscrete())
		assert.False(t, spec.IsActionContinuous())
		assert.Equal(t, 2, spec.ActionSize())
		assert.Equal(t, []int{5, 4}, spec.DiscreteActionBranches())

		actions := spec.EmptyAction(3)
		require.Len(t, actions, 3)
		assert.Equal(t, []float32{0, 0}, actions[0])
	})

	t.Run("continuous", func(t *testing.T) {
		spec := AgentGroupSpec{ActionType: ActionTypeContinuous, ActionShape: []int{6}}
		assert.False(t, spec.IsActionDiscrete())
		assert.True(t, spec.IsActionContinuous())
		assert.Equal(t, 6, spec.ActionSize())
		assert.Nil(t, spec.DiscreteActionBranches())
		assert.Len(t, spec.EmptyAction(1)[0], 6)
	})
}
