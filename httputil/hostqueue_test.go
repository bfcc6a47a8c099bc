package httputil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostQueue_SpacesSameHost(t *testing.T) {
	q := NewHostQueue(80 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, q.Wait(ctx, "https://www.example.com/a"))
	require.NoError(t, q.Wait(ctx, "https://example.com/floorplans"))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestHostQueue_DifferentHostsDoNotWait(t *testing.T) {
	q := NewHostQueue(time.Second)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, q.Wait(ctx, "https://one.example.com"))
	require.NoError(t, q.Wait(ctx, "https://two.example.com"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestHostQueue_NextHonorsContext(t *testing.T) {
	q := NewHostQueue(time.Hour)
	require.NoError(t, q.Next(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, q.Next(ctx))
}

func TestHostQueue_ZeroSpacing(t *testing.T) {
	q := NewHostQueue(0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Next(ctx))
	}
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.com", HostOf("https://WWW.Example.com/path?q=1"))
	assert.Equal(t, "not a url", HostOf("not a url"))
}
