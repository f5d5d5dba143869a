package audio

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// source is anything that renders one mono quantum. Implementations cache
// the buffer for the quantum index so a node feeding several inputs renders
// once per pass.
type source interface {
	render(q int64) []float64
}

// Input is a node or parameter another node can be connected to.
type Input interface {
	attach(src source)
	detach(src source)
}

type Node interface {
	Label() string
	Connect(dst Input) error
	// Disconnect removes the node from every input it feeds and releases it
	// from the context.
	Disconnect() error
	Stop() error
}

type node struct {
	ctx      *Context
	self     source
	label    string
	outs     []Input
	released bool

	q   int64
	buf []float64
}

func (n *node) init(ctx *Context, self source, label string) {
	n.ctx = ctx
	n.self = self
	n.label = label
	n.q = -1
	n.buf = make([]float64, Quantum)
}

func (n *node) Label() string { return n.label }

func (n *node) Connect(dst Input) error {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	if n.released || n.ctx.closed {
		return ErrClosed
	}
	dst.attach(n.self)
	n.outs = append(n.outs, dst)
	return nil
}

func (n *node) Disconnect() error {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	wasConnected := len(n.outs) > 0
	for _, dst := range n.outs {
		dst.detach(n.self)
	}
	n.outs = nil
	if !n.released {
		n.released = true
		delete(n.ctx.live, n.self)
	}
	if !wasConnected {
		return ErrNotConnected
	}
	return nil
}

// Stop is a no-op for processing nodes.
func (n *node) Stop() error { return nil }

// scheduled carries start and stop times for source nodes.
type scheduled struct {
	startAt float64
	stopAt  float64
	started bool
	stopped bool
}

func (s *scheduled) active(t float64) bool {
	return s.started && t >= s.startAt && t < s.stopAt
}

type Oscillator struct {
	node
	scheduled
	Frequency *Param
	// Detune is in cents.
	Detune *Param
	wave   Waveform
	phase  float64
}

func (o *Oscillator) Start() {
	o.StartAt(0)
}

func (o *Oscillator) StartAt(at float64) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if o.started {
		return
	}
	o.started = true
	o.startAt = max(at, o.ctx.nowLocked())
}

func (o *Oscillator) Stop() error {
	return o.StopAt(0)
}

// StopAt silences the oscillator from at onward. A past time stops it now.
func (o *Oscillator) StopAt(at float64) error {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	if o.stopped {
		return ErrAlreadyStopped
	}
	o.stopped = true
	o.stopAt = max(at, o.ctx.nowLocked())
	return nil
}

func (o *Oscillator) render(q int64) []float64 {
	if o.q == q {
		return o.buf
	}
	o.q = q
	freq := o.Frequency.render(q)
	detune := o.Detune.render(q)
	t0 := quantumTime(q)
	for i := range o.buf {
		if !o.active(t0 + float64(i)/SampleRate) {
			o.buf[i] = 0
			continue
		}
		f := freq[i]
		if detune[i] != 0 {
			f *= math.Exp2(detune[i] / 1200)
		}
		o.phase += f / SampleRate
		o.phase -= math.Floor(o.phase)
		o.buf[i] = shape(o.wave, o.phase)
	}
	return o.buf
}

func shape(w Waveform, phase float64) float64 {
	switch w {
	case Triangle:
		return 1 - 4*math.Abs(phase-0.5)
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*phase - 1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Noise is a white noise source.
type Noise struct {
	node
	scheduled
	rng *rand.Rand
}

func (n *Noise) Start() {
	n.StartAt(0)
}

func (n *Noise) StartAt(at float64) {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	if n.started {
		return
	}
	n.started = true
	n.startAt = max(at, n.ctx.nowLocked())
}

func (n *Noise) Stop() error {
	return n.StopAt(0)
}

func (n *Noise) StopAt(at float64) error {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	if n.stopped {
		return ErrAlreadyStopped
	}
	n.stopped = true
	n.stopAt = max(at, n.ctx.nowLocked())
	return nil
}

func (n *Noise) render(q int64) []float64 {
	if n.q == q {
		return n.buf
	}
	n.q = q
	t0 := quantumTime(q)
	for i := range n.buf {
		if !n.active(t0 + float64(i)/SampleRate) {
			n.buf[i] = 0
			continue
		}
		n.buf[i] = 2*n.rng.Float64() - 1
	}
	return n.buf
}

// mixer sums connected inputs.
type mixer struct {
	inputs []source
	sum    []float64
}

func (m *mixer) attach(src source) {
	m.inputs = append(m.inputs, src)
}

func (m *mixer) detach(src source) {
	m.inputs = slices.DeleteFunc(m.inputs, func(s source) bool { return s == src })
}

func (m *mixer) mix(q int64) []float64 {
	if m.sum == nil {
		m.sum = make([]float64, Quantum)
	}
	clear(m.sum)
	for _, in := range m.inputs {
		for i, v := range in.render(q) {
			m.sum[i] += v
		}
	}
	return m.sum
}

type Gain struct {
	node
	mixer
	Gain *Param
}

func (g *Gain) render(q int64) []float64 {
	if g.q == q {
		return g.buf
	}
	g.q = q
	in := g.mix(q)
	gain := g.Gain.render(q)
	for i := range g.buf {
		g.buf[i] = in[i] * gain[i]
	}
	return g.buf
}

// Filter is a second-order low-pass. The section is redesigned whenever
// the cutoff moves between quanta.
type Filter struct {
	node
	mixer
	Frequency *Param
	Q         float64

	cutoff  float64
	section *biquad.Section
}

func (f *Filter) render(q int64) []float64 {
	if f.q == q {
		return f.buf
	}
	f.q = q
	in := f.mix(q)
	cutoff := min(max(f.Frequency.render(q)[0], 10), SampleRate/2-100)
	if f.section == nil || cutoff != f.cutoff {
		f.cutoff = cutoff
		f.section = biquad.NewSection(design.Lowpass(cutoff, f.Q, SampleRate))
	}
	for i, x := range in {
		f.buf[i] = f.section.ProcessSample(x)
	}
	return f.buf
}
