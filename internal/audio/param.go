package audio

import (
	"math"
	"slices"
	"time"
)

type eventKind int

const (
	eventSet eventKind = iota
	eventLinear
	eventExponential
)

type event struct {
	kind  eventKind
	value float64
	time  float64
}

// Param is an automatable node parameter. Its rendered value is the
// automation curve plus the sum of every signal connected to it.
type Param struct {
	ctx    *Context
	value  float64
	events []event
	mods   []source

	q   int64
	buf []float64
}

func newParam(ctx *Context, value float64) *Param {
	return &Param{ctx: ctx, value: value, q: -1, buf: make([]float64, Quantum)}
}

// Value is the automation curve at the current context time, ignoring
// modulators.
func (p *Param) Value() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(p.ctx.nowLocked())
}

// Target is the value the automation curve settles on once every
// scheduled event has passed.
func (p *Param) Target() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	if n := len(p.events); n > 0 {
		return p.events[n-1].value
	}
	return p.value
}

// SetValue drops any scheduled automation and jumps to v.
func (p *Param) SetValue(v float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.events = nil
	p.value = v
}

func (p *Param) SetValueAtTime(v, at float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.schedule(event{kind: eventSet, value: v, time: at})
}

func (p *Param) LinearRampToValueAtTime(v, at float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.anchor()
	p.schedule(event{kind: eventLinear, value: v, time: at})
}

// ExponentialRampToValueAtTime ramps geometrically. Both ends must share a
// sign and be non-zero; otherwise the previous value holds until at.
func (p *Param) ExponentialRampToValueAtTime(v, at float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.anchor()
	p.schedule(event{kind: eventExponential, value: v, time: at})
}

// Glide cancels scheduled automation and ramps linearly from the current
// value to v over d.
func (p *Param) Glide(v float64, d time.Duration) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	now := p.ctx.nowLocked()
	current := p.valueAt(now)
	p.value = current
	p.events = []event{{kind: eventSet, value: current, time: now}}
	if d <= 0 {
		p.events = nil
		p.value = v
		return
	}
	p.schedule(event{kind: eventLinear, value: v, time: now + d.Seconds()})
}

// CancelScheduledValues freezes the parameter at its current value.
func (p *Param) CancelScheduledValues() {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.value = p.valueAt(p.ctx.nowLocked())
	p.events = nil
}

// anchor pins the current value at now so a ramp has somewhere to start.
func (p *Param) anchor() {
	if len(p.events) > 0 {
		return
	}
	now := p.ctx.nowLocked()
	p.events = append(p.events, event{kind: eventSet, value: p.value, time: now})
}

func (p *Param) schedule(e event) {
	i, _ := slices.BinarySearchFunc(p.events, e.time, func(a event, t float64) int {
		if a.time <= t {
			return -1
		}
		return 1
	})
	p.events = slices.Insert(p.events, i, e)
}

func (p *Param) valueAt(t float64) float64 {
	prevV, prevT := p.value, math.Inf(-1)
	for _, e := range p.events {
		if e.time <= t {
			prevV, prevT = e.value, e.time
			continue
		}
		if math.IsInf(prevT, -1) {
			return prevV
		}
		frac := (t - prevT) / (e.time - prevT)
		switch e.kind {
		case eventLinear:
			return prevV + (e.value-prevV)*frac
		case eventExponential:
			if prevV == 0 || e.value == 0 || (prevV < 0) != (e.value < 0) {
				return prevV
			}
			return prevV * math.Pow(e.value/prevV, frac)
		}
		return prevV
	}
	return prevV
}

// prune folds events that ended before t into the base value, keeping the
// last past event as the start point of any ramp still in flight.
func (p *Param) prune(t float64) {
	last := -1
	for i, e := range p.events {
		if e.time > t {
			break
		}
		last = i
	}
	if last < 0 {
		return
	}
	if last == len(p.events)-1 {
		p.value = p.events[last].value
		p.events = p.events[:0]
		return
	}
	p.events = p.events[last:]
}

func (p *Param) attach(src source) {
	p.mods = append(p.mods, src)
}

func (p *Param) detach(src source) {
	p.mods = slices.DeleteFunc(p.mods, func(s source) bool { return s == src })
}

func (p *Param) render(q int64) []float64 {
	if p.q == q {
		return p.buf
	}
	p.q = q
	t0 := quantumTime(q)
	p.prune(t0)
	if len(p.events) == 0 {
		for i := range p.buf {
			p.buf[i] = p.value
		}
	} else {
		for i := range p.buf {
			p.buf[i] = p.valueAt(t0 + float64(i)/SampleRate)
		}
	}
	for _, m := range p.mods {
		for i, v := range m.render(q) {
			p.buf[i] += v
		}
	}
	return p.buf
}
