package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_Transitions(t *testing.T) {
	order := []State{StateIdle, StateLoaded, StateIndexed, StateRetrieved, StateGenerated}
	for i := 0; i < len(order)-1; i++ {
		assert.True(t, order[i].next(order[i+1]), "%s -> %s", order[i], order[i+1])
		assert.True(t, order[i].next(StateFailed), "%s -> failed", order[i])
	}

	assert.False(t, StateIdle.next(StateIndexed))
	assert.False(t, StateGenerated.next(StateFailed))
	assert.False(t, StateFailed.next(StateIdle))
	assert.True(t, StateGenerated.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateRetrieved.Terminal())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "generated", StateGenerated.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
