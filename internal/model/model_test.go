package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderPair(t *testing.T) {
	low, high := OrderPair(9, 3)
	assert.Equal(t, int64(3), low)
	assert.Equal(t, int64(9), high)

	low, high = OrderPair(3, 9)
	assert.Equal(t, int64(3), low)
	assert.Equal(t, int64(9), high)
}

func TestConversation_Other(t *testing.T) {
	c := &Conversation{UserLow: 1, UserHigh: 2}

	other, ok := c.Other(1)
	assert.True(t, ok)
	assert.Equal(t, int64(2), other)

	other, ok = c.Other(2)
	assert.True(t, ok)
	assert.Equal(t, int64(1), other)

	_, ok = c.Other(3)
	assert.False(t, ok)
	assert.False(t, c.HasParticipant(3))
}
