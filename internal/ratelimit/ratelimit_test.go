package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_SlidingLimit(t *testing.T) {
	w := NewWindow(3, time.Minute)
	now := time.Unix(1000, 0)
	w.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, w.Allow(1), "event %d", i+1)
		now = now.Add(10 * time.Second)
	}
	assert.False(t, w.Allow(1))
	assert.True(t, w.Allow(2), "users are independent")

	// The first event (t=0) leaves the window after 60s.
	now = time.Unix(1000, 0).Add(61 * time.Second)
	assert.True(t, w.Allow(1))
	assert.False(t, w.Allow(1))
	assert.Equal(t, 3, w.Pending(1))
}

func TestWindow_Disabled(t *testing.T) {
	w := NewWindow(0, time.Minute)
	for i := 0; i < 100; i++ {
		require.True(t, w.Allow(1))
	}
}

func TestOutbound(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlimited := NewOutbound(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, unlimited.Wait(ctx))
	}

	paced := NewOutbound(1)
	require.NoError(t, paced.Wait(ctx))
	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	assert.Error(t, paced.Wait(short), "second call must wait about a second")
}
