package effect

import (
	"time"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
)

const volumeGlide = 50 * time.Millisecond

// Tone is a single steady oscillator.
type Tone struct {
	ctx     *audio.Context
	label   string
	wave    audio.Waveform
	freq    float64
	ratio   float64
	channel audio.Channel

	nodes Nodes
	v     *voice
}

func NewTone(ctx *audio.Context, label string, wave audio.Waveform, freq, ratio float64) *Tone {
	return &Tone{ctx: ctx, label: label, wave: wave, freq: freq, ratio: ratio}
}

func (t *Tone) Setup(opts Options) error {
	v, err := newVoice(&t.nodes, t.ctx, t.label, t.wave, t.freq, t.ratio*opts.Volume, t.ctx.Destination(t.channel))
	if err != nil {
		return abandon(&t.nodes, err)
	}
	t.v = v
	return nil
}

func (t *Tone) UpdateVolume(volume float64) {
	if t.v != nil {
		t.v.gain.Gain.Glide(t.ratio*volume, volumeGlide)
	}
}

func (t *Tone) SetFrequency(freq float64) {
	t.freq = freq
	if t.v != nil {
		t.v.osc.Frequency.SetValue(freq)
	}
}

func (t *Tone) Frequency() float64 { return t.freq }

func (t *Tone) NodeCount() int { return t.nodes.Len() }

func (t *Tone) Stop() error {
	t.v = nil
	return t.nodes.Release()
}

// FMTone is a carrier whose frequency swings by depth Hz at rate Hz.
type FMTone struct {
	ctx         *audio.Context
	label       string
	carrier     float64
	rate, depth float64
	ratio       float64

	nodes Nodes
	v     *voice
	mod   *voice
}

func NewFMTone(ctx *audio.Context, label string, carrier, rate, depth, ratio float64) *FMTone {
	return &FMTone{ctx: ctx, label: label, carrier: carrier, rate: rate, depth: depth, ratio: ratio}
}

func (f *FMTone) Setup(opts Options) error {
	v, err := newVoice(&f.nodes, f.ctx, f.label, audio.Sine, f.carrier, f.ratio*opts.Volume, f.ctx.Destination(audio.ChannelBoth))
	if err != nil {
		return abandon(&f.nodes, err)
	}
	mod, err := newLFO(&f.nodes, f.ctx, f.label+"-fm", f.rate, f.depth, v.osc.Frequency)
	if err != nil {
		return abandon(&f.nodes, err)
	}
	f.v, f.mod = v, mod
	return nil
}

func (f *FMTone) UpdateVolume(volume float64) {
	if f.v != nil {
		f.v.gain.Gain.Glide(f.ratio*volume, volumeGlide)
	}
}

// RampDepth appends a linear ramp of the modulation depth reaching depth
// at offset from now.
func (f *FMTone) RampDepth(depth float64, at time.Duration) {
	f.depth = depth
	if f.mod != nil {
		f.mod.gain.Gain.LinearRampToValueAtTime(depth, f.ctx.CurrentTime()+at.Seconds())
	}
}

// Depth is the current modulation depth in Hz.
func (f *FMTone) Depth() float64 {
	if f.mod == nil {
		return 0
	}
	return f.mod.gain.Gain.Value()
}

func (f *FMTone) NodeCount() int { return f.nodes.Len() }

func (f *FMTone) Stop() error {
	f.v, f.mod = nil, nil
	return f.nodes.Release()
}

// PulseTone is a tone amplitude-modulated at rate Hz, optionally faded in
// over a long ramp.
type PulseTone struct {
	ctx   *audio.Context
	label string
	freq  float64
	rate  float64
	ratio float64

	// RampIn fades the tone up from silence when non-zero.
	RampIn time.Duration

	nodes     Nodes
	v         *voice
	lfo       *voice
	intensity *audio.Gain
}

func NewPulseTone(ctx *audio.Context, label string, freq, rate, ratio float64) *PulseTone {
	return &PulseTone{ctx: ctx, label: label, freq: freq, rate: rate, ratio: ratio}
}

func (p *PulseTone) Setup(opts Options) error {
	start := 1.0
	if p.RampIn > 0 {
		start = 0
	}
	intensity, err := p.ctx.NewGain(p.label+"-intensity", start)
	if err != nil {
		return abandon(&p.nodes, err)
	}
	p.nodes.Track(intensity)
	if err := intensity.Connect(p.ctx.Destination(audio.ChannelBoth)); err != nil {
		return abandon(&p.nodes, err)
	}
	half := p.ratio * opts.Volume / 2
	v, err := newVoice(&p.nodes, p.ctx, p.label, audio.Sine, p.freq, half, intensity)
	if err != nil {
		return abandon(&p.nodes, err)
	}
	lfo, err := newLFO(&p.nodes, p.ctx, p.label+"-am", p.rate, half, v.gain.Gain)
	if err != nil {
		return abandon(&p.nodes, err)
	}
	if p.RampIn > 0 {
		intensity.Gain.LinearRampToValueAtTime(1, p.ctx.CurrentTime()+p.RampIn.Seconds())
	}
	p.v, p.lfo, p.intensity = v, lfo, intensity
	return nil
}

func (p *PulseTone) UpdateVolume(volume float64) {
	if p.v == nil {
		return
	}
	half := p.ratio * volume / 2
	p.v.gain.Gain.Glide(half, volumeGlide)
	p.lfo.gain.Gain.Glide(half, volumeGlide)
}

// Intensity is the fade-in level in [0, 1].
func (p *PulseTone) Intensity() float64 {
	if p.intensity == nil {
		return 0
	}
	return p.intensity.Gain.Value()
}

func (p *PulseTone) NodeCount() int { return p.nodes.Len() }

func (p *PulseTone) Stop() error {
	p.v, p.lfo, p.intensity = nil, nil, nil
	return p.nodes.Release()
}
