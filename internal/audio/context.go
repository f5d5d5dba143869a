package audio

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	log "github.com/rs/zerolog/log"
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateSuspended
)

type busInput struct {
	src source
	ch  Channel
}

type OscillatorInfo struct {
	Label     string
	Frequency float64
}

// Context owns the graph and the host stream. All graph mutation and the
// render callback serialize on one mutex.
type Context struct {
	mu     sync.Mutex
	host   Host
	stream Stream
	state  state
	closed bool

	live map[source]Node
	bus  []busInput
	rng  *rand.Rand

	master   *Param
	analyser *Analyser

	q     int64
	pos   int
	left  []float64
	right []float64
}

func NewContext(host Host) *Context {
	if host == nil {
		host = NullHost{}
	}
	c := &Context{
		host:  host,
		live:  make(map[source]Node),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		q:     -1,
		pos:   Quantum,
		left:  make([]float64, Quantum),
		right: make([]float64, Quantum),
	}
	return c
}

// Initialize opens the host stream and starts rendering. Calling it on a
// running context is a no-op.
func (c *Context) Initialize() error {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	c.master = newParam(c, 1)
	c.analyser = newAnalyser(c, AnalyserSize)
	c.mu.Unlock()

	stream, err := c.host.Open(c.Render)
	if err != nil {
		c.mu.Lock()
		c.master, c.analyser = nil, nil
		c.mu.Unlock()
		return fmt.Errorf("audio: initialize: %w", err)
	}

	c.mu.Lock()
	c.stream = stream
	c.state = stateRunning
	c.mu.Unlock()
	stream.Start()
	log.Debug().Int("rate", SampleRate).Msg("audio context running")
	return nil
}

func (c *Context) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != stateIdle
}

// SetMasterVolume clamps v to [0, 1].
func (c *Context) SetMasterVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.master == nil {
		return
	}
	c.master.events = nil
	c.master.value = min(max(v, 0), 1)
}

func (c *Context) MasterVolume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.master == nil {
		return 0
	}
	return c.master.value
}

// Suspend halts the host stream. Context time stops advancing.
func (c *Context) Suspend() {
	c.mu.Lock()
	if c.state != stateRunning {
		c.mu.Unlock()
		return
	}
	c.state = stateSuspended
	stream := c.stream
	c.mu.Unlock()
	stream.Stop()
}

func (c *Context) Resume() {
	c.mu.Lock()
	if c.state != stateSuspended {
		c.mu.Unlock()
		return
	}
	c.state = stateRunning
	stream := c.stream
	c.mu.Unlock()
	stream.Start()
}

func (c *Context) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateSuspended
}

// Cleanup closes the host stream and drops the whole graph. The context
// can be initialized again afterwards.
func (c *Context) Cleanup() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.state = stateIdle
	c.closed = true
	c.master, c.analyser = nil, nil
	c.bus = nil
	for _, n := range c.live {
		if o, ok := n.(interface{ markReleased() }); ok {
			o.markReleased()
		}
	}
	clear(c.live)
	c.mu.Unlock()
	if stream != nil {
		stream.Stop()
		stream.Close()
	}
}

func (n *node) markReleased() {
	n.released = true
	n.outs = nil
}

// CurrentTime is the context time in seconds of the next frame to render.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Context) nowLocked() float64 {
	return quantumTime(c.q + 1)
}

func quantumTime(q int64) float64 {
	return float64(q*Quantum) / SampleRate
}

func (c *Context) register(label string, n interface {
	source
	Node
}) error {
	if c.closed || c.state == stateIdle {
		return fmt.Errorf("create %s: %w", label, ErrClosed)
	}
	c.live[n] = n
	return nil
}

func (c *Context) NewOscillator(label string, wave Waveform, freq float64) (*Oscillator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := &Oscillator{wave: wave}
	o.init(c, o, label)
	o.stopAt = math.Inf(1)
	o.Frequency = newParam(c, freq)
	o.Detune = newParam(c, 0)
	if err := c.register(label, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (c *Context) NewNoise(label string) (*Noise, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := &Noise{rng: rand.New(rand.NewPCG(c.rng.Uint64(), c.rng.Uint64()))}
	n.init(c, n, label)
	n.stopAt = math.Inf(1)
	if err := c.register(label, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (c *Context) NewGain(label string, level float64) (*Gain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := &Gain{}
	g.init(c, g, label)
	g.Gain = newParam(c, level)
	if err := c.register(label, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (c *Context) NewLowPass(label string, cutoff float64) (*Filter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := &Filter{Q: math.Sqrt2 / 2}
	f.init(c, f, label)
	f.Frequency = newParam(c, cutoff)
	if err := c.register(label, f); err != nil {
		return nil, err
	}
	return f, nil
}

type busPort struct {
	ctx *Context
	ch  Channel
}

func (b busPort) attach(src source) {
	b.ctx.bus = append(b.ctx.bus, busInput{src: src, ch: b.ch})
}

func (b busPort) detach(src source) {
	b.ctx.bus = slices.DeleteFunc(b.ctx.bus, func(in busInput) bool {
		return in.src == src && in.ch == b.ch
	})
}

// Destination is the bus input for one output channel, or both.
func (c *Context) Destination(ch Channel) Input {
	return busPort{ctx: c, ch: ch}
}

// LiveNodes counts nodes created and not yet disconnected.
func (c *Context) LiveNodes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Oscillators lists every oscillator that has not been stopped, sorted by
// label and frequency.
func (c *Context) Oscillators() []OscillatorInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowLocked()
	var out []OscillatorInfo
	for _, n := range c.live {
		o, ok := n.(*Oscillator)
		if !ok || !o.started || now >= o.stopAt {
			continue
		}
		out = append(out, OscillatorInfo{Label: o.label, Frequency: o.Frequency.valueAt(now)})
	}
	slices.SortFunc(out, func(a, b OscillatorInfo) int {
		if r := cmp.Compare(a.Label, b.Label); r != 0 {
			return r
		}
		return cmp.Compare(a.Frequency, b.Frequency)
	})
	return out
}

func (c *Context) Analyser() *Analyser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analyser
}

// Render fills out with interleaved stereo frames. It is the host stream
// callback; while suspended or idle it writes silence without advancing
// time.
func (c *Context) Render(out []float32) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning {
		clear(out)
		return len(out), nil
	}
	for i := 0; i+1 < len(out); i += Channels {
		if c.pos == Quantum {
			c.renderQuantum()
			c.pos = 0
		}
		out[i] = float32(c.left[c.pos])
		out[i+1] = float32(c.right[c.pos])
		c.pos++
	}
	return len(out), nil
}

func (c *Context) renderQuantum() {
	c.q++
	clear(c.left)
	clear(c.right)
	for _, in := range c.bus {
		buf := in.src.render(c.q)
		switch in.ch {
		case ChannelLeft:
			for i, v := range buf {
				c.left[i] += v
			}
		case ChannelRight:
			for i, v := range buf {
				c.right[i] += v
			}
		default:
			for i, v := range buf {
				c.left[i] += v
				c.right[i] += v
			}
		}
	}
	c.analyser.push(c.left, c.right)
	gain := c.master.render(c.q)
	for i := range c.left {
		c.left[i] = clip(c.left[i] * gain[i])
		c.right[i] = clip(c.right[i] * gain[i])
	}
}

func clip(v float64) float64 {
	return min(max(v, -1), 1)
}
