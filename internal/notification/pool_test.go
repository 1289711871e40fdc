package notification

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify-delivery-backend/config"
)

func TestWorkerPool_QueueFull(t *testing.T) {
	wp := NewWorkerPool(config.WorkerPoolConfig{CoreSize: 1, MaxSize: 1, QueueSize: 2}, nil)

	var ran atomic.Int32
	task := func(context.Context) { ran.Add(1) }

	require.NoError(t, wp.Submit(task))
	require.NoError(t, wp.Submit(task))
	assert.ErrorIs(t, wp.Submit(task), ErrQueueFull)
	assert.Equal(t, 2, wp.QueueLen())

	wp.Start(context.Background())
	require.NoError(t, wp.Stop(context.Background()))
	assert.Equal(t, int32(2), ran.Load())
}

func TestWorkerPool_SubmitAfterStop(t *testing.T) {
	wp := NewWorkerPool(config.WorkerPoolConfig{CoreSize: 1, QueueSize: 1}, nil)
	wp.Start(context.Background())
	require.NoError(t, wp.Stop(context.Background()))

	assert.ErrorIs(t, wp.Submit(func(context.Context) {}), ErrPoolClosed)
	assert.NoError(t, wp.Stop(context.Background()))
}

func TestWorkerPool_GrowAndShrink(t *testing.T) {
	wp := NewWorkerPool(config.WorkerPoolConfig{
		CoreSize:  1,
		MaxSize:   2,
		QueueSize: 10,
		KeepAlive: 20 * time.Millisecond,
	}, nil)
	wp.Start(context.Background())
	defer wp.Stop(context.Background())

	release := make(chan struct{})
	running := make(chan struct{}, 3)
	blocking := func(context.Context) {
		running <- struct{}{}
		<-release
	}

	require.NoError(t, wp.Submit(blocking))
	<-running

	// The only worker is busy, so the queued task brings up an extra one.
	require.NoError(t, wp.Submit(blocking))
	<-running
	assert.Equal(t, 2, wp.Workers())

	// At max size, further tasks wait in the queue.
	require.NoError(t, wp.Submit(blocking))
	assert.Equal(t, 2, wp.Workers())

	close(release)
	<-running

	assert.Eventually(t, func() bool { return wp.Workers() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWorkerPool_IdleWorkersAbsorbBurst(t *testing.T) {
	wp := NewWorkerPool(config.WorkerPoolConfig{
		CoreSize:  2,
		MaxSize:   4,
		QueueSize: 10,
		KeepAlive: time.Minute,
	}, nil)
	wp.Start(context.Background())
	defer wp.Stop(context.Background())
	require.Eventually(t, func() bool { return wp.Idle() == 2 }, time.Second, time.Millisecond)

	release := make(chan struct{})
	running := make(chan struct{}, 3)
	blocking := func(context.Context) {
		running <- struct{}{}
		<-release
	}
	defer close(release)

	require.NoError(t, wp.Submit(blocking))
	<-running
	assert.Equal(t, 2, wp.Workers())

	require.NoError(t, wp.Submit(blocking))
	<-running
	assert.Equal(t, 2, wp.Workers())

	// Both core workers are busy now.
	require.NoError(t, wp.Submit(blocking))
	<-running
	assert.Equal(t, 3, wp.Workers())
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	wp := NewWorkerPool(config.WorkerPoolConfig{CoreSize: 1, QueueSize: 4}, nil)
	wp.Start(context.Background())

	done := make(chan struct{})
	require.NoError(t, wp.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, wp.Submit(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task after panic never ran")
	}
	require.NoError(t, wp.Stop(context.Background()))
}

func TestWorkerPool_StopDeadline(t *testing.T) {
	wp := NewWorkerPool(config.WorkerPoolConfig{CoreSize: 1, QueueSize: 1}, nil)
	wp.Start(context.Background())

	started := make(chan struct{})
	require.NoError(t, wp.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, wp.Stop(ctx), context.DeadlineExceeded)
}
