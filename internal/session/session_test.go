package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionsOnlyMoveForward(t *testing.T) {
	assert.True(t, CanTransition(StateScheduled, StateLive))
	assert.True(t, CanTransition(StateScheduled, StateEnded))
	assert.True(t, CanTransition(StateLive, StateEnded))

	assert.False(t, CanTransition(StateEnded, StateLive), "ended is terminal")
	assert.False(t, CanTransition(StateLive, StateScheduled))
	assert.False(t, CanTransition(StateEnded, StateScheduled))
}
