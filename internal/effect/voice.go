package effect

import (
	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
)

// voice is an oscillator feeding its own gain, which feeds out.
type voice struct {
	osc  *audio.Oscillator
	gain *audio.Gain
}

func newVoice(nodes *Nodes, ctx *audio.Context, label string, wave audio.Waveform, freq, level float64, out audio.Input) (*voice, error) {
	osc, err := ctx.NewOscillator(label, wave, freq)
	if err != nil {
		return nil, err
	}
	nodes.Track(osc)
	gain, err := ctx.NewGain(label+"-gain", level)
	if err != nil {
		return nil, err
	}
	nodes.Track(gain)
	if err := osc.Connect(gain); err != nil {
		return nil, err
	}
	if err := gain.Connect(out); err != nil {
		return nil, err
	}
	osc.Start()
	return &voice{osc: osc, gain: gain}, nil
}

// newLFO modulates target by depth at rate Hz around its automated value.
func newLFO(nodes *Nodes, ctx *audio.Context, label string, rate, depth float64, target *audio.Param) (*voice, error) {
	return newVoice(nodes, ctx, label, audio.Sine, rate, depth, target)
}
