// Package scheduler runs cancellable one-shot and periodic callbacks against
// a clock. Callbacks run with the owner's control lock held, so they see
// the same consistent state as any other control operation.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type Handle struct {
	s     *Scheduler
	fn    func()
	at    time.Time
	every time.Duration
	seq   uint64
	index int
	done  bool
}

// Cancel removes the entry. It reports whether the entry was still pending.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.done {
		return false
	}
	h.done = true
	if h.index >= 0 {
		heap.Remove(&s.queue, h.index)
	}
	return true
}

func (h *Handle) Pending() bool {
	if h == nil {
		return false
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return !h.done
}

type queue []*Handle

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	h := x.(*Handle)
	h.index = len(*q)
	*q = append(*q, h)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.index = -1
	*q = old[:n-1]
	return h
}

type Scheduler struct {
	clock clock.Clock
	ctl   sync.Locker

	mu     sync.Mutex
	queue  queue
	seq    uint64
	firing bool
	cursor time.Time
	wake   chan struct{}
}

// New returns a scheduler on clk whose callbacks run holding ctl. A nil
// clk uses the wall clock and a nil ctl a private mutex.
func New(clk clock.Clock, ctl sync.Locker) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if ctl == nil {
		ctl = &sync.Mutex{}
	}
	return &Scheduler{
		clock: clk,
		ctl:   ctl,
		wake:  make(chan struct{}, 1),
	}
}

func (s *Scheduler) Clock() clock.Clock { return s.clock }

// Now is the scheduling base. Inside a callback it is the deadline of the
// entry being fired, so chained timers do not drift.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowLocked()
}

func (s *Scheduler) nowLocked() time.Time {
	if s.firing {
		return s.cursor
	}
	return s.clock.Now()
}

func (s *Scheduler) After(d time.Duration, fn func()) *Handle {
	return s.schedule(d, 0, fn)
}

// Every fires fn each period, the first time one period from now.
func (s *Scheduler) Every(period time.Duration, fn func()) *Handle {
	if period <= 0 {
		panic("scheduler: non-positive period for Every")
	}
	return s.schedule(period, period, fn)
}

func (s *Scheduler) schedule(d, every time.Duration, fn func()) *Handle {
	s.mu.Lock()
	s.seq++
	h := &Handle{
		s:     s,
		fn:    fn,
		at:    s.nowLocked().Add(max(d, 0)),
		every: every,
		seq:   s.seq,
	}
	heap.Push(&s.queue, h)
	head := s.queue[0] == h
	s.mu.Unlock()
	if head {
		s.poke()
	}
	return h
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending counts entries still queued.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.queue {
		h.done = true
		h.index = -1
	}
	s.queue = nil
}

// RunDue fires every entry whose deadline is not after the clock's current
// time, in deadline order, and returns how many fired.
func (s *Scheduler) RunDue() int {
	now := s.clock.Now()
	fired := 0
	for s.fireNext(now) {
		fired++
	}
	return fired
}

func (s *Scheduler) fireNext(now time.Time) bool {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	if len(s.queue) == 0 || s.queue[0].at.After(now) {
		s.mu.Unlock()
		return false
	}
	h := s.queue[0]
	at := h.at
	if h.every > 0 {
		h.at = h.at.Add(h.every)
		heap.Fix(&s.queue, 0)
	} else {
		heap.Pop(&s.queue)
		h.done = true
	}
	s.firing, s.cursor = true, at
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.firing = false
		s.mu.Unlock()
	}()
	h.fn()
	return true
}

func (s *Scheduler) next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].at, true
}

// Run fires entries as the clock reaches them until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.RunDue()

		var timer *clock.Timer
		var fire <-chan time.Time
		if at, ok := s.next(); ok {
			timer = s.clock.Timer(at.Sub(s.clock.Now()))
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
