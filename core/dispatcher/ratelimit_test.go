package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSetDisabledWhenNonPositive(t *testing.T) {
	s := newRateLimiterSet(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, s.allow("fn1"))
	}
}

func TestRateLimiterSetThrottlesPerKey(t *testing.T) {
	s := newRateLimiterSet(1, 1)
	assert.True(t, s.allow("fn1"))
	assert.False(t, s.allow("fn1"))
	// a different key has its own independent bucket.
	assert.True(t, s.allow("fn2"))
}
