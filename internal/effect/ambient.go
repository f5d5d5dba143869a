package effect

import (
	"time"

	log "github.com/rs/zerolog/log"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/scheduler"
)

const (
	SchumannCarrier = 100.0
	SchumannRate    = 7.83
	SchumannDepth   = 15.0
	HarmonicFreq    = 528.0
	PadFreq         = 432.0
	BreathCutoff    = 800.0
	BreathRate      = 0.1

	ChirpInterval = 10 * time.Second
	ChirpCenter   = 2500.0
	ChirpSpread   = 200.0
	ChirpSweep    = 250.0

	PingInterval = 5 * time.Second
	PingFreq     = 17000.0
)

// NewSchumann is a low carrier swept at the Schumann resonance.
func NewSchumann(ctx *audio.Context) *FMTone {
	return NewFMTone(ctx, "schumann", SchumannCarrier, SchumannRate, SchumannDepth, 0.3)
}

func NewHarmonic(ctx *audio.Context) *Tone {
	return NewTone(ctx, "harmonic", audio.Sine, HarmonicFreq, 0.3)
}

// Pad is a triangle drone with a slow detune wobble.
type Pad struct {
	ctx   *audio.Context
	nodes Nodes
	v     *voice
}

func NewPad(ctx *audio.Context) *Pad {
	return &Pad{ctx: ctx}
}

func (p *Pad) Setup(opts Options) error {
	v, err := newVoice(&p.nodes, p.ctx, "pad", audio.Triangle, PadFreq, 0.2*opts.Volume, p.ctx.Destination(audio.ChannelBoth))
	if err != nil {
		return abandon(&p.nodes, err)
	}
	if _, err := newLFO(&p.nodes, p.ctx, "pad-detune", 0.1, 8, v.osc.Detune); err != nil {
		return abandon(&p.nodes, err)
	}
	p.v = v
	return nil
}

func (p *Pad) UpdateVolume(volume float64) {
	if p.v != nil {
		p.v.gain.Gain.Glide(0.2*volume, volumeGlide)
	}
}

func (p *Pad) NodeCount() int { return p.nodes.Len() }

func (p *Pad) Stop() error {
	p.v = nil
	return p.nodes.Release()
}

// Breath is low-passed noise swelling at breathing pace.
type Breath struct {
	ctx   *audio.Context
	nodes Nodes
	gain  *audio.Gain
	lfo   *voice
}

func NewBreath(ctx *audio.Context) *Breath {
	return &Breath{ctx: ctx}
}

func (b *Breath) Setup(opts Options) error {
	half := 0.15 * opts.Volume / 2
	noise, err := b.ctx.NewNoise("breath")
	if err != nil {
		return abandon(&b.nodes, err)
	}
	b.nodes.Track(noise)
	lpf, err := b.ctx.NewLowPass("breath-lpf", BreathCutoff)
	if err != nil {
		return abandon(&b.nodes, err)
	}
	b.nodes.Track(lpf)
	gain, err := b.ctx.NewGain("breath-gain", half)
	if err != nil {
		return abandon(&b.nodes, err)
	}
	b.nodes.Track(gain)
	for _, link := range []struct {
		from audio.Node
		to   audio.Input
	}{
		{noise, lpf},
		{lpf, gain},
		{gain, b.ctx.Destination(audio.ChannelBoth)},
	} {
		if err := link.from.Connect(link.to); err != nil {
			return abandon(&b.nodes, err)
		}
	}
	lfo, err := newLFO(&b.nodes, b.ctx, "breath-am", BreathRate, half, gain.Gain)
	if err != nil {
		return abandon(&b.nodes, err)
	}
	noise.Start()
	b.gain, b.lfo = gain, lfo
	return nil
}

func (b *Breath) UpdateVolume(volume float64) {
	if b.gain == nil {
		return
	}
	half := 0.15 * volume / 2
	b.gain.Gain.Glide(half, volumeGlide)
	b.lfo.gain.Gain.Glide(half, volumeGlide)
}

func (b *Breath) NodeCount() int { return b.nodes.Len() }

func (b *Breath) Stop() error {
	b.gain, b.lfo = nil, nil
	return b.nodes.Release()
}

// Periodic spawns a cue from next every interval.
type Periodic struct {
	env      Env
	interval time.Duration
	next     func(Env) CueSpec

	timers *scheduler.Group
	cues   Transients
	volume float64
}

func NewPeriodic(env Env, interval time.Duration, next func(Env) CueSpec) *Periodic {
	return &Periodic{env: env, interval: interval, next: next}
}

// NewChirp is a short randomized upward sweep every ten seconds.
func NewChirp(env Env) *Periodic {
	return NewPeriodic(env, ChirpInterval, func(env Env) CueSpec {
		center := ChirpCenter + (env.random()*2-1)*ChirpSpread
		return CueSpec{
			Label:       "chirp",
			Frequency:   center - ChirpSweep,
			SweepTo:     center + ChirpSweep,
			Ratio:       0.08,
			Attack:      50 * time.Millisecond,
			Release:     250 * time.Millisecond,
			Exponential: true,
		}
	})
}

// NewPing is a faint high blip every five seconds.
func NewPing(env Env) *Periodic {
	return NewPeriodic(env, PingInterval, func(Env) CueSpec {
		return CueSpec{
			Label:     "ping",
			Frequency: PingFreq,
			Ratio:     0.02,
			Attack:    5 * time.Millisecond,
			Hold:      40 * time.Millisecond,
			Release:   5 * time.Millisecond,
		}
	})
}

func (p *Periodic) Setup(opts Options) error {
	p.volume = opts.Volume
	p.timers = p.env.Sched.NewGroup()
	p.timers.Every(p.interval, p.fire)
	return nil
}

func (p *Periodic) fire() {
	spec := p.next(p.env)
	if err := p.cues.Start(NewCue(p.env, spec), Options{Volume: p.volume}); err != nil {
		log.Warn().Err(err).Str("cue", spec.Label).Msg("periodic cue failed")
	}
}

func (p *Periodic) UpdateVolume(volume float64) {
	p.volume = volume
}

// Active counts spawned cues still sounding.
func (p *Periodic) Active() int { return p.cues.Active() }

func (p *Periodic) NodeCount() int { return p.cues.NodeCount() }

func (p *Periodic) TimerCount() int {
	if p.timers == nil {
		return 0
	}
	return p.timers.Len()
}

func (p *Periodic) Stop() error {
	if p.timers != nil {
		p.timers.CancelAll()
	}
	return p.cues.Stop()
}
