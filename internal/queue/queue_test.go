package queue

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobsAndReturnsErrors(t *testing.T) {
	q := NewRequestQueueManager(4, 2)
	defer q.Shutdown()

	var ran atomic.Int32
	expected := errors.New("boom")

	okc := make(chan error, 1)
	q.EnqueueJob(Job{Fn: func() error { ran.Add(1); return nil }, Errc: okc})
	errc := make(chan error, 1)
	q.EnqueueJob(Job{Fn: func() error { ran.Add(1); return expected }, Errc: errc})

	require.NoError(t, <-okc)
	assert.ErrorIs(t, <-errc, expected)
	assert.Equal(t, int32(2), ran.Load())
}

func TestQueueRecoversFromPanics(t *testing.T) {
	q := NewRequestQueueManager(1, 1)
	defer q.Shutdown()

	errc := make(chan error, 1)
	q.EnqueueJob(Job{Fn: func() error { panic("handler bug") }, Errc: errc})
	require.Error(t, <-errc)

	next := make(chan error, 1)
	q.EnqueueJob(Job{Fn: func() error { return nil }, Errc: next})
	assert.NoError(t, <-next)
}

func TestShutdownIsIdempotent(t *testing.T) {
	q := NewRequestQueueManager(1, 1)
	q.Shutdown()
	q.Shutdown()
}
