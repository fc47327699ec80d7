package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/jobs"
)

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	job := &jobs.RecalculationJob{JobID: "a", InputURI: "in.csv", Stages: []string{"physical"}, Status: jobs.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, job))

	// later mutations do not leak into the store
	job.Stages[0] = "transition"
	job.Status = jobs.JobStatusFailed

	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"physical"}, got.Stages)
	assert.Equal(t, jobs.JobStatusPending, got.Status)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	assert.Error(t, s.SaveJob(ctx, &jobs.RecalculationJob{}))
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, st := range []jobs.JobStatus{jobs.JobStatusCompleted, jobs.JobStatusFailed, jobs.JobStatusCompleted} {
		require.NoError(t, s.SaveJob(ctx, &jobs.RecalculationJob{
			JobID:     string(rune('a' + i)),
			InputURI:  "in.csv",
			Status:    st,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].JobID, "newest first")
	assert.Equal(t, "a", all[2].JobID)

	done, err := s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, done, 2)

	page, err := s.ListJobs(ctx, jobs.JobFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].JobID)

	empty, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)

	none, err := s.ListJobs(ctx, jobs.JobFilter{InputURI: "other.csv"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_UpdateJobStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.SaveJob(ctx, &jobs.RecalculationJob{JobID: "a", Status: jobs.JobStatusRunning}))

	require.NoError(t, s.UpdateJobStatus(ctx, "a", jobs.JobStatusFailed, "boom"))
	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "x", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound)
}

func waitForStatus(t *testing.T, s *Store, id string, want jobs.JobStatus) *jobs.RecalculationJob {
	t.Helper()
	var job *jobs.RecalculationJob
	require.Eventually(t, func() bool {
		j, err := s.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store)
	q.Workers = 2

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		rj := job.(*jobs.RecalculationJob)
		rj.Run = &domain.Run{RunID: rj.JobID, RowsLoaded: 3}
		return nil
	}))

	job := &jobs.RecalculationJob{InputURI: "in.csv"}
	require.NoError(t, q.PublishRecalculation(ctx, job))
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.DefaultMaxRetries, job.MaxRetries)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	require.NotNil(t, done.Run)
	assert.Equal(t, 3, done.Run.RowsLoaded)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.True(t, done.Done())

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store)
	q.Backoff = time.Millisecond

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	job := &jobs.RecalculationJob{JobID: "retry", InputURI: "in.csv"}
	require.NoError(t, q.PublishRecalculation(ctx, job))

	done := waitForStatus(t, store, "retry", jobs.JobStatusCompleted)
	assert.Equal(t, 2, done.RetryCount)
	assert.Empty(t, done.Error)
	assert.Equal(t, int32(3), calls.Load())

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store)
	q.Backoff = time.Millisecond

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		calls.Add(1)
		panic("bad input")
	}))

	require.NoError(t, q.PublishRecalculation(ctx, &jobs.RecalculationJob{JobID: "fail", MaxRetries: 1}))

	failed := waitForStatus(t, store, "fail", jobs.JobStatusFailed)
	assert.Contains(t, failed.Error, "bad input")
	assert.Equal(t, 1, failed.RetryCount)
	assert.Equal(t, int32(2), calls.Load())

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_ClosedRejectsPublish(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close(), "closing twice is a no-op")

	err := q.PublishRecalculation(context.Background(), &jobs.RecalculationJob{})
	assert.Error(t, err)
	assert.Error(t, q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }))
}
