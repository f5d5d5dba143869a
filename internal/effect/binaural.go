package effect

import (
	"time"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
)

// Binaural plays base on the left channel and base+beat on the right.
type Binaural struct {
	ctx   *audio.Context
	label string
	ratio float64

	nodes       Nodes
	left, right *voice
	base, beat  float64
	// ramped is set while the right channel follows a RampBeat curve.
	ramped bool
}

// NewBinaural returns a pair whose channel gains are 0.5 * ratio * volume.
func NewBinaural(ctx *audio.Context, label string, ratio float64) *Binaural {
	return &Binaural{ctx: ctx, label: label, ratio: ratio}
}

func (b *Binaural) level(volume float64) float64 {
	return 0.5 * b.ratio * volume
}

func (b *Binaural) Setup(opts Options) error {
	b.base, b.beat = opts.BaseFrequency, opts.BeatFrequency
	level := b.level(opts.Volume)
	left, err := newVoice(&b.nodes, b.ctx, b.label+"-left", audio.Sine, b.base, level, b.ctx.Destination(audio.ChannelLeft))
	if err != nil {
		return abandon(&b.nodes, err)
	}
	right, err := newVoice(&b.nodes, b.ctx, b.label+"-right", audio.Sine, b.base+b.beat, level, b.ctx.Destination(audio.ChannelRight))
	if err != nil {
		return abandon(&b.nodes, err)
	}
	b.left, b.right = left, right
	return nil
}

func (b *Binaural) UpdateVolume(volume float64) {
	if b.left == nil {
		return
	}
	level := b.level(volume)
	b.left.gain.Gain.Glide(level, volumeGlide)
	b.right.gain.Gain.Glide(level, volumeGlide)
}

func (b *Binaural) SetBase(base float64) {
	b.base, b.beat = base, b.Beat()
	b.ramped = false
	if b.left == nil {
		return
	}
	b.left.osc.Frequency.SetValue(base)
	b.right.osc.Frequency.SetValue(base + b.beat)
}

func (b *Binaural) SetBeat(beat float64) {
	b.beat, b.ramped = beat, false
	if b.right == nil {
		return
	}
	b.right.osc.Frequency.SetValue(b.base + beat)
}

// GlideBeat moves the beat linearly to beat over d.
func (b *Binaural) GlideBeat(beat float64, d time.Duration) {
	b.beat, b.ramped = beat, false
	if b.right == nil {
		return
	}
	b.right.osc.Frequency.Glide(b.base+beat, d)
}

// RampBeat appends a linear ramp reaching beat at offset from now.
// Consecutive calls build a multi-segment curve.
func (b *Binaural) RampBeat(beat float64, at time.Duration) {
	if b.right == nil {
		return
	}
	b.ramped = true
	b.right.osc.Frequency.LinearRampToValueAtTime(b.base+beat, b.ctx.CurrentTime()+at.Seconds())
}

func (b *Binaural) Base() float64 { return b.base }

// Beat is the last beat set or glided to. While a RampBeat curve runs it
// is the difference the two channels are playing right now.
func (b *Binaural) Beat() float64 {
	if b.ramped && b.right != nil {
		return b.RightFrequency() - b.LeftFrequency()
	}
	return b.beat
}

func (b *Binaural) LeftFrequency() float64 {
	if b.left == nil {
		return 0
	}
	return b.left.osc.Frequency.Value()
}

func (b *Binaural) RightFrequency() float64 {
	if b.right == nil {
		return 0
	}
	return b.right.osc.Frequency.Value()
}

func (b *Binaural) NodeCount() int { return b.nodes.Len() }

func (b *Binaural) Stop() error {
	b.left, b.right = nil, nil
	b.ramped = false
	return b.nodes.Release()
}
