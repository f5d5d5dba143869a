package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kc2g-flex-tools/nBEAT/internal/scheduler"
)

func newScheduler() (*clock.Mock, *scheduler.Scheduler) {
	mock := clock.NewMock()
	return mock, scheduler.New(mock, &sync.Mutex{})
}

func TestAfterFiresOnce(t *testing.T) {
	mock, s := newScheduler()
	count := 0
	s.After(time.Second, func() { count++ })

	mock.Add(999 * time.Millisecond)
	assert.Zero(t, s.RunDue())
	mock.Add(time.Millisecond)
	assert.Equal(t, 1, s.RunDue())
	mock.Add(time.Hour)
	s.RunDue()
	assert.Equal(t, 1, count)
	assert.Zero(t, s.Pending())
}

func TestEveryCatchesUpInOrder(t *testing.T) {
	mock, s := newScheduler()
	var fired []time.Duration
	start := mock.Now()
	s.Every(5*time.Second, func() { fired = append(fired, s.Now().Sub(start)) })

	mock.Add(16 * time.Second)
	assert.Equal(t, 3, s.RunDue())
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}, fired)
	assert.Equal(t, 1, s.Pending())
}

func TestCancel(t *testing.T) {
	mock, s := newScheduler()
	fired := false
	h := s.After(time.Second, func() { fired = true })
	assert.True(t, h.Pending())
	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())

	mock.Add(2 * time.Second)
	s.RunDue()
	assert.False(t, fired)

	var nilHandle *scheduler.Handle
	assert.False(t, nilHandle.Cancel())
}

func TestPeriodicCancelsItself(t *testing.T) {
	mock, s := newScheduler()
	n := 0
	var h *scheduler.Handle
	h = s.Every(time.Second, func() {
		n++
		if n == 3 {
			h.Cancel()
		}
	})
	mock.Add(10 * time.Second)
	s.RunDue()
	assert.Equal(t, 3, n)
	assert.Zero(t, s.Pending())
}

func TestChainedTimersUseDeadline(t *testing.T) {
	mock, s := newScheduler()
	start := mock.Now()
	var at []time.Duration
	var step func()
	step = func() {
		at = append(at, s.Now().Sub(start))
		if len(at) < 3 {
			s.After(20*time.Second, step)
		}
	}
	s.After(20*time.Second, step)

	// One large jump still lands each link on its own deadline.
	mock.Add(time.Minute + 7*time.Second)
	s.RunDue()
	assert.Equal(t, []time.Duration{20 * time.Second, 40 * time.Second, time.Minute}, at)
}

func TestCancelAll(t *testing.T) {
	mock, s := newScheduler()
	fired := 0
	s.After(time.Second, func() { fired++ })
	s.Every(time.Second, func() { fired++ })
	require.Equal(t, 2, s.Pending())

	s.CancelAll()
	assert.Zero(t, s.Pending())
	mock.Add(time.Minute)
	assert.Zero(t, s.RunDue())
	assert.Zero(t, fired)
}

func TestCallbacksHoldControlLock(t *testing.T) {
	mock := clock.NewMock()
	var mu sync.Mutex
	s := scheduler.New(mock, &mu)
	s.After(time.Second, func() {
		assert.False(t, mu.TryLock())
	})
	mock.Add(time.Second)
	assert.Equal(t, 1, s.RunDue())
	assert.True(t, mu.TryLock())
	mu.Unlock()
}

func TestGroup(t *testing.T) {
	mock, s := newScheduler()
	g := s.NewGroup()
	other := 0
	s.After(10*time.Second, func() { other++ })

	oneShot := 0
	g.After(time.Second, func() { oneShot++ })
	g.Every(2*time.Second, func() {})
	assert.Equal(t, 2, g.Len())

	mock.Add(time.Second)
	s.RunDue()
	assert.Equal(t, 1, oneShot)
	assert.Equal(t, 1, g.Len())

	g.CancelAll()
	assert.Zero(t, g.Len())
	assert.Equal(t, 1, s.Pending())

	mock.Add(10 * time.Second)
	s.RunDue()
	assert.Equal(t, 1, other)
}

func TestRunUntilCancelled(t *testing.T) {
	s := scheduler.New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	fired := make(chan struct{})
	s.After(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
