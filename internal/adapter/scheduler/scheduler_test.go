package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForAtLeast(t *testing.T, counter *int64, expected int64, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(counter) >= expected
	}, timeout, 10*time.Millisecond, "counter did not reach the expected value")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{"weekly_monday_8am", "0 8 * * 1", false},
		{"every_minute", "* * * * *", false},
		{"descriptor_weekly", "@weekly", false},
		{"descriptor_every", "@every 5m", false},
		{"empty", "", true},
		{"garbage", "not a schedule", true},
		{"six_fields", "0 0 8 * * 1", true},
		{"minute_out_of_range", "61 8 * * 1", true},
		{"bad_dow", "0 8 * * 8", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNext_WeeklySchedule(t *testing.T) {
	// Sunday 2026-01-04 12:00 UTC; the schedule is Monday 08:00.
	from := time.Date(2026, 1, 4, 12, 0, 0, 0, time.UTC)

	next, err := Next("0 8 * * 1", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestNext_FiresOnceAtMatchingMinute(t *testing.T) {
	// From just before Monday 08:00 the next fire is exactly 08:00;
	// from 08:00 itself the next fire is the following Monday, so the
	// schedule matches Monday 08:00 exactly once and never at 08:01.
	monday8 := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	next, err := Next("0 8 * * 1", monday8.Add(-time.Second))
	require.NoError(t, err)
	assert.True(t, next.Equal(monday8))

	next, err = Next("0 8 * * 1", monday8)
	require.NoError(t, err)
	assert.Equal(t, monday8.AddDate(0, 0, 7), next)

	next, err = Next("0 8 * * 1", monday8.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, monday8.AddDate(0, 0, 7), next, "no fire at Monday 08:01")
}

func TestNext_RespectsTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	from := time.Date(2026, 1, 4, 12, 0, 0, 0, loc)
	next, err := Next("0 8 * * 1", from)
	require.NoError(t, err)

	assert.Equal(t, 8, next.In(loc).Hour())
	assert.Equal(t, time.Monday, next.In(loc).Weekday())
}

func TestNext_InvalidSpec(t *testing.T) {
	_, err := Next("bogus", time.Now())
	assert.Error(t, err)
}

func TestScheduler_AddJobInvalidSchedule(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	_, err := s.AddJob("every monday", func(ctx context.Context) error { return nil }, JobOptions{})
	assert.Error(t, err)
}

func TestScheduler_AddJobAndFire(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	var counter int64
	_, err := s.AddJob("@every 100ms", func(ctx context.Context) error {
		atomic.AddInt64(&counter, 1)
		return nil
	}, JobOptions{Name: "tick"})
	require.NoError(t, err)

	s.Start()
	waitForAtLeast(t, &counter, 1, 2*time.Second)
}

func TestScheduler_NextFire(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	id, err := s.AddJob("0 8 * * 1", func(ctx context.Context) error { return nil }, JobOptions{})
	require.NoError(t, err)

	s.Start()
	next := s.NextFire(id)
	require.False(t, next.IsZero())
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 8, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestScheduler_JobErrorKeepsRunning(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	var runCount int64
	_, err := s.AddJob("@every 50ms", func(ctx context.Context) error {
		atomic.AddInt64(&runCount, 1)
		return errors.New("boom")
	}, JobOptions{Name: "failing"})
	require.NoError(t, err)

	s.Start()
	waitForAtLeast(t, &runCount, 2, 2*time.Second)
}

func TestScheduler_PanicRecovered(t *testing.T) {
	var panicked atomic.Bool
	s := New(Config{JobHooks: JobHooks{
		OnJobError: func(jobName string, err error) {
			panicked.Store(true)
		},
	}})
	defer s.Stop()

	var runCount int64
	_, err := s.AddJob("@every 50ms", func(ctx context.Context) error {
		if atomic.AddInt64(&runCount, 1) == 1 {
			panic("boom")
		}
		return nil
	}, JobOptions{Name: "panicky"})
	require.NoError(t, err)

	s.Start()
	waitForAtLeast(t, &runCount, 2, 2*time.Second)
	assert.True(t, panicked.Load())
}

func TestScheduler_SkipIfRunning(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	var started, finished int64
	block := make(chan struct{})
	_, err := s.AddJob("@every 50ms", func(ctx context.Context) error {
		atomic.AddInt64(&started, 1)
		<-block
		atomic.AddInt64(&finished, 1)
		return nil
	}, JobOptions{Name: "slow", OverlapPolicy: SkipIfRunning})
	require.NoError(t, err)

	s.Start()
	waitForAtLeast(t, &started, 1, 2*time.Second)

	// Let several fires pass while the first run blocks.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&started), "overlapping fires must be skipped")

	close(block)
	waitForAtLeast(t, &finished, 1, time.Second)
}

func TestScheduler_Hooks(t *testing.T) {
	var startCalls, finishCalls, errCalls int64
	s := New(Config{JobHooks: JobHooks{
		OnJobStart:  func(string) { atomic.AddInt64(&startCalls, 1) },
		OnJobFinish: func(string, time.Duration, error) { atomic.AddInt64(&finishCalls, 1) },
		OnJobError:  func(string, error) { atomic.AddInt64(&errCalls, 1) },
	}})
	defer s.Stop()

	var runs int64
	_, err := s.AddJob("@every 50ms", func(ctx context.Context) error {
		if atomic.AddInt64(&runs, 1)%2 == 0 {
			return errors.New("boom")
		}
		return nil
	}, JobOptions{Name: "hooked"})
	require.NoError(t, err)

	s.Start()
	waitForAtLeast(t, &runs, 2, 2*time.Second)
	waitForAtLeast(t, &startCalls, 2, time.Second)
	waitForAtLeast(t, &finishCalls, 2, time.Second)
	waitForAtLeast(t, &errCalls, 1, time.Second)
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := New(Config{})
	defer s.Stop()

	errCh := make(chan error, 1)
	_, err := s.AddJob("@every 50ms", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			select {
			case errCh <- ctx.Err():
			default:
			}
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}, JobOptions{Name: "bounded", Timeout: 100 * time.Millisecond, OverlapPolicy: SkipIfRunning})
	require.NoError(t, err)

	s.Start()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
		t.Fatal("job context was never canceled by the timeout")
	}
}

func TestScheduler_StopIdempotent(t *testing.T) {
	s := New(Config{})
	s.Start()
	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestScheduler_StopContext(t *testing.T) {
	s := New(Config{})
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.StopContext(ctx))
}

func TestScheduler_ParentContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewWithContext(ctx, Config{})
	s.Start()

	cancel()
	require.Eventually(t, func() bool {
		return !s.IsRunning()
	}, time.Second, 10*time.Millisecond)
}
