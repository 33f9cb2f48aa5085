package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return j.err
}

type panickingJob struct{ runs atomic.Int32 }

func (j *panickingJob) Name() string { return "panicker" }

func (j *panickingJob) Run() error {
	j.runs.Add(1)
	panic("boom")
}

type stubSweeper struct{ calls int }

func (s *stubSweeper) Sweep() int {
	s.calls++
	return 3
}

func TestScheduler_AddJobRejectsInvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	assert.Error(t, s.AddJob("not a schedule", &countingJob{name: "bad"}))
	assert.Error(t, s.AddJob("*/5 * * * *", &countingJob{name: "five-field"}))
	assert.NoError(t, s.AddJob("0 */5 * * * *", &countingJob{name: "ok"}))
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}
	failing := &countingJob{name: "failing", err: errors.New("nope")}

	require.NoError(t, s.AddJob("@every 1s", job))
	require.NoError(t, s.AddJob("@every 1s", failing))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 1 && failing.runs.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_RecoversPanickingJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := &panickingJob{}

	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 4*time.Second, 50*time.Millisecond)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "slow", block: make(chan struct{})}

	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()

	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(2200 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.block)
	s.Stop()
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())

	ok := &countingJob{name: "ok"}
	assert.NoError(t, s.RunNow(ok))
	assert.Equal(t, int32(1), ok.runs.Load())

	failing := &countingJob{name: "failing", err: errors.New("nope")}
	assert.Error(t, s.RunNow(failing))
}

func TestCacheSweepJob(t *testing.T) {
	sweeper := &stubSweeper{}
	job := NewCacheSweepJob(sweeper, zerolog.Nop())

	assert.Equal(t, "cache_sweep", job.Name())
	assert.NoError(t, job.Run())
	assert.Equal(t, 1, sweeper.calls)
}
