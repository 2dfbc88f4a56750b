package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserPushSubject(t *testing.T) {
	subject := BuildUserPushSubject(42)
	assert.Equal(t, "workswap.push.user.42", subject)

	id, ok := ParseUserPushSubject(subject)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"workswap.push.user.", "workswap.push.user.abc", "other.42", ""} {
		_, ok := ParseUserPushSubject(bad)
		assert.False(t, ok, bad)
	}
}
