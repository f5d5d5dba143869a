package scheduler

import (
	"sync"
	"time"
)

// Group tracks the entries one owner scheduled so they can be cancelled
// together. Fired one-shots drop out of the group on their own.
type Group struct {
	s       *Scheduler
	mu      sync.Mutex
	handles map[*Handle]struct{}
}

func (s *Scheduler) NewGroup() *Group {
	return &Group{s: s, handles: make(map[*Handle]struct{})}
}

func (g *Group) After(d time.Duration, fn func()) *Handle {
	var h *Handle
	h = g.s.After(d, func() {
		g.forget(h)
		fn()
	})
	g.track(h)
	return h
}

func (g *Group) Every(period time.Duration, fn func()) *Handle {
	h := g.s.Every(period, fn)
	g.track(h)
	return h
}

func (g *Group) Cancel(h *Handle) {
	if h == nil {
		return
	}
	h.Cancel()
	g.forget(h)
}

func (g *Group) CancelAll() {
	g.mu.Lock()
	handles := g.handles
	g.handles = make(map[*Handle]struct{})
	g.mu.Unlock()
	for h := range handles {
		h.Cancel()
	}
}

func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}

func (g *Group) track(h *Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h.Pending() {
		g.handles[h] = struct{}{}
	}
}

func (g *Group) forget(h *Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.handles, h)
}
