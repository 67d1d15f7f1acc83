package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowRespectsBurstPerKey(t *testing.T) {
	l := New(0.001, 2)
	assert.True(t, l.Allow("ch"))
	assert.True(t, l.Allow("ch"))
	assert.False(t, l.Allow("ch"))
	assert.True(t, l.Allow("redis"))
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(0.001, 1)
	assert.NoError(t, l.Wait(context.Background(), "ch"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "ch"))
}

func TestUnlimited(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("x"))
	}
}
