package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan Job, 1)
	q := NewQueue("test", func(_ context.Context, job Job) error {
		done <- job
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "job-1", Type: "enrollment.status"}))

	select {
	case job := <-done:
		assert.Equal(t, "job-1", job.ID)
		assert.False(t, job.Enqueued.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := NewQueue("retry", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("smtp unavailable")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "job-1"}))

	select {
	case <-done:
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
}

func TestQueueGivesUpAfterRetries(t *testing.T) {
	var calls int32
	gaveUp := make(chan Job, 1)
	q := NewQueue("give-up", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("mailbox rejected")
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnGiveUp:   func(job Job, _ error) { gaveUp <- job },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.TryEnqueue(Job{ID: "job-1"}))

	select {
	case job := <-gaveUp:
		assert.Equal(t, "job-1", job.ID)
		assert.Equal(t, 3, job.Attempt)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	case <-time.After(2 * time.Second):
		t.Fatal("job was never given up")
	}
}

func TestQueueBackoffDoublesUpToCap(t *testing.T) {
	q := NewQueue("backoff", nil, QueueConfig{RetryDelay: 100 * time.Millisecond, MaxRetryDelay: time.Second})
	assert.Equal(t, 100*time.Millisecond, q.backoff(1))
	assert.Equal(t, 200*time.Millisecond, q.backoff(2))
	assert.Equal(t, 800*time.Millisecond, q.backoff(4))
	assert.Equal(t, time.Second, q.backoff(5))
	assert.Equal(t, time.Second, q.backoff(30))
}

func TestEnqueueRejectsWhenNotRunning(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "job-1"}), ErrNotRunning)

	q.Start(context.Background())
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{ID: "job-2"}), ErrNotRunning)
}

func TestEnqueueHonoursCallerContext(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("blocked", func(context.Context, Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(release)
		q.Stop()
	}()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "job-1"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "job-2"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, Job{ID: "job-3"}), context.DeadlineExceeded)
}

func TestTryEnqueueReportsFullBuffer(t *testing.T) {
	picked := make(chan struct{})
	release := make(chan struct{})
	q := NewQueue("full", func(_ context.Context, job Job) error {
		if job.ID == "job-1" {
			close(picked)
			<-release
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(release)
		q.Stop()
	}()

	require.NoError(t, q.TryEnqueue(Job{ID: "job-1"}))
	<-picked
	require.NoError(t, q.TryEnqueue(Job{ID: "job-2"}))
	assert.Equal(t, 1, q.Pending())

	err := q.TryEnqueue(Job{ID: "job-3"})
	assert.ErrorIs(t, err, ErrQueueFull)
}
