package effect

import (
	"math/rand/v2"
	"time"

	log "github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/scheduler"
)

// Transient is a component that ends on its own.
type Transient interface {
	Component
	Done() bool
	NodeCount() int
}

// oneshot releases its nodes when its timer fires or on Stop, whichever
// comes first.
type oneshot struct {
	env   Env
	nodes Nodes
	timer *scheduler.Handle
	done  bool
}

func (o *oneshot) expireAfter(d time.Duration) {
	o.timer = o.env.Sched.After(d, func() {
		if err := o.finish(); err != nil {
			log.Warn().Err(err).Msg("oneshot release")
		}
	})
}

func (o *oneshot) finish() error {
	if o.done {
		return nil
	}
	o.done = true
	o.timer = nil
	return o.nodes.Release()
}

func (o *oneshot) Stop() error {
	o.timer.Cancel()
	return o.finish()
}

func (o *oneshot) Done() bool { return o.done }

func (o *oneshot) NodeCount() int { return o.nodes.Len() }

// UpdateVolume leaves a sounding one-shot at the level it started with.
func (o *oneshot) UpdateVolume(float64) {}

// CueSpec describes a one-shot enveloped tone.
type CueSpec struct {
	Label     string
	Wave      audio.Waveform
	Frequency float64
	// SweepTo glides the frequency across the whole cue when non-zero.
	SweepTo float64
	Ratio   float64

	Attack  time.Duration
	Hold    time.Duration
	Release time.Duration
	// Exponential decays the release instead of ramping it linearly.
	Exponential bool
}

func (s CueSpec) Duration() time.Duration {
	return s.Attack + s.Hold + s.Release
}

type Cue struct {
	oneshot
	spec CueSpec
}

func NewCue(env Env, spec CueSpec) *Cue {
	return &Cue{oneshot: oneshot{env: env}, spec: spec}
}

func (c *Cue) Setup(opts Options) error {
	ctx := c.env.Audio
	v, err := newVoice(&c.nodes, ctx, c.spec.Label, c.spec.Wave, c.spec.Frequency, 0, ctx.Destination(audio.ChannelBoth))
	if err != nil {
		return abandon(&c.nodes, err)
	}
	peak := c.spec.Ratio * opts.Volume
	t0 := ctx.CurrentTime()
	attackEnd := t0 + c.spec.Attack.Seconds()
	holdEnd := attackEnd + c.spec.Hold.Seconds()
	end := holdEnd + c.spec.Release.Seconds()

	g := v.gain.Gain
	g.SetValueAtTime(0, t0)
	g.LinearRampToValueAtTime(peak, attackEnd)
	if c.spec.Hold > 0 {
		g.SetValueAtTime(peak, holdEnd)
	}
	if c.spec.Exponential {
		g.ExponentialRampToValueAtTime(peak/1000, end)
		g.SetValueAtTime(0, end)
	} else {
		g.LinearRampToValueAtTime(0, end)
	}
	if c.spec.SweepTo > 0 {
		v.osc.Frequency.LinearRampToValueAtTime(c.spec.SweepTo, end)
	}
	if err := v.osc.StopAt(end); err != nil {
		return abandon(&c.nodes, err)
	}
	c.expireAfter(c.spec.Duration())
	return nil
}

// NoiseBurst is white noise swelling up and back down over its duration.
type NoiseBurst struct {
	oneshot
	label    string
	duration time.Duration
	ratio    float64
}

func NewNoiseBurst(env Env, label string, d time.Duration, ratio float64) *NoiseBurst {
	return &NoiseBurst{oneshot: oneshot{env: env}, label: label, duration: d, ratio: ratio}
}

func (n *NoiseBurst) Setup(opts Options) error {
	ctx := n.env.Audio
	noise, err := ctx.NewNoise(n.label)
	if err != nil {
		return abandon(&n.nodes, err)
	}
	n.nodes.Track(noise)
	gain, err := ctx.NewGain(n.label+"-gain", 0)
	if err != nil {
		return abandon(&n.nodes, err)
	}
	n.nodes.Track(gain)
	if err := noise.Connect(gain); err != nil {
		return abandon(&n.nodes, err)
	}
	if err := gain.Connect(ctx.Destination(audio.ChannelBoth)); err != nil {
		return abandon(&n.nodes, err)
	}
	t0 := ctx.CurrentTime()
	end := t0 + n.duration.Seconds()
	gain.Gain.SetValueAtTime(0, t0)
	gain.Gain.LinearRampToValueAtTime(n.ratio*opts.Volume, (t0+end)/2)
	gain.Gain.LinearRampToValueAtTime(0, end)
	noise.Start()
	if err := noise.StopAt(end); err != nil {
		return abandon(&n.nodes, err)
	}
	n.expireAfter(n.duration)
	return nil
}

// Transients holds the one-shots a component spawned that may still be
// sounding.
type Transients struct {
	list []Transient
}

func (t *Transients) Start(tr Transient, opts Options) error {
	t.prune()
	if err := tr.Setup(opts); err != nil {
		return err
	}
	t.list = append(t.list, tr)
	return nil
}

func (t *Transients) prune() {
	live := t.list[:0]
	for _, tr := range t.list {
		if !tr.Done() {
			live = append(live, tr)
		}
	}
	clear(t.list[len(live):])
	t.list = live
}

func (t *Transients) Active() int {
	t.prune()
	return len(t.list)
}

func (t *Transients) NodeCount() int {
	n := 0
	for _, tr := range t.list {
		n += tr.NodeCount()
	}
	return n
}

func (t *Transients) Stop() error {
	var errs error
	for _, tr := range t.list {
		errs = multierr.Append(errs, tr.Stop())
	}
	t.list = nil
	return errs
}

func (e Env) random() float64 {
	if e.Rand == nil {
		return rand.Float64()
	}
	return e.Rand.Float64()
}
