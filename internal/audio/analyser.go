package audio

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// AnalyserSize is the FFT length of the spectrum tap.
const AnalyserSize = 2048

// Analyser keeps the most recent mono mix of the bus, before master gain.
type Analyser struct {
	ctx  *Context
	ring []float64
	pos  int
}

func newAnalyser(ctx *Context, size int) *Analyser {
	return &Analyser{ctx: ctx, ring: make([]float64, size)}
}

func (a *Analyser) push(left, right []float64) {
	if a == nil {
		return
	}
	for i := range left {
		a.ring[a.pos] = (left[i] + right[i]) / 2
		a.pos = (a.pos + 1) % len(a.ring)
	}
}

func (a *Analyser) Size() int { return len(a.ring) }

// BinFrequency is the centre frequency of bin i of FrequencyData.
func (a *Analyser) BinFrequency(i int) float64 {
	return float64(i) * SampleRate / float64(len(a.ring))
}

// FrequencyData returns Size()/2 linear magnitudes of the Hann-windowed
// recent signal.
func (a *Analyser) FrequencyData() []float64 {
	a.ctx.mu.Lock()
	n := len(a.ring)
	x := make([]float64, n)
	copy(x, a.ring[a.pos:])
	copy(x[n-a.pos:], a.ring[:a.pos])
	a.ctx.mu.Unlock()

	window.Apply(x, window.Hann)
	spectrum := fft.FFTReal(x)
	out := make([]float64, n/2)
	for i := range out {
		out[i] = 2 * cmplx.Abs(spectrum[i]) / float64(n)
	}
	return out
}

// Peak returns the bin with the largest magnitude in data, skipping DC.
func Peak(data []float64) int {
	best := 1
	for i := 2; i < len(data); i++ {
		if data[i] > data[best] {
			best = i
		}
	}
	return best
}
