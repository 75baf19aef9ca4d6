package main

import (
	"context"
	"testing"

	"github.com/skyloop/vision-inference-service/detections"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStubPool builds a pool pre-filled with empty sessions, so the pool
// bookkeeping can be exercised without the ONNX runtime. An empty
// ModelSession has a nil-safe Destroy.
func newStubPool(size int) *ModelSessionPool {
	pool := &ModelSessionPool{
		sessions:  make(chan *detections.ModelSession, size),
		size:      size,
		modelPath: "stub.onnx",
		metrics:   &PoolMetrics{},
	}
	for i := 0; i < size; i++ {
		pool.sessions <- &detections.ModelSession{}
	}
	return pool
}

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	pool := newStubPool(2)

	session, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)

	m := pool.GetMetrics()
	assert.Equal(t, 1, m.InUse)
	assert.Equal(t, int64(1), m.TotalAcquired)
	assert.Equal(t, int64(0), m.TotalReleased)

	pool.Release(session)

	m = pool.GetMetrics()
	assert.Equal(t, 0, m.InUse)
	assert.Equal(t, int64(1), m.TotalReleased)
}

func TestPoolAcquireCancelledContext(t *testing.T) {
	pool := newStubPool(1)

	// Drain the pool so Acquire has to wait, then cancel.
	session, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolAcquireAfterDestroy(t *testing.T) {
	pool := newStubPool(1)
	pool.Destroy()

	_, err := pool.Acquire(context.Background())
	assert.Error(t, err)
}

func TestPoolReleaseAfterDestroy(t *testing.T) {
	pool := newStubPool(1)

	session, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	pool.Destroy()

	// Must destroy the straggler instead of sending on the closed channel.
	pool.Release(session)

	m := pool.GetMetrics()
	assert.Equal(t, int64(0), m.TotalReleased)
}

func TestPoolDestroyIdempotent(t *testing.T) {
	pool := newStubPool(2)
	pool.Destroy()
	pool.Destroy()
}
