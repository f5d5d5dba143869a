package effect_test

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/effect"
	"github.com/kc2g-flex-tools/nBEAT/internal/scheduler"
)

type fixture struct {
	env   effect.Env
	clock *clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := audio.NewContext(audio.NullHost{})
	require.NoError(t, ctx.Initialize())
	t.Cleanup(ctx.Cleanup)
	mock := clock.NewMock()
	return &fixture{
		env: effect.Env{
			Audio: ctx,
			Sched: scheduler.New(mock, &sync.Mutex{}),
			Rand:  rand.New(rand.NewPCG(1, 2)),
		},
		clock: mock,
	}
}

func (f *fixture) advance(d time.Duration) {
	f.clock.Add(d)
	f.env.Sched.RunDue()
}

func renderFor(ctx *audio.Context, d time.Duration) {
	frames := int(d.Seconds()*audio.SampleRate) / audio.Quantum * audio.Quantum
	_, _ = ctx.Render(make([]float32, frames*audio.Channels))
}

func TestBinauralFrequencies(t *testing.T) {
	f := newFixture(t)
	b := effect.NewBinaural(f.env.Audio, "binaural", 1)
	require.NoError(t, b.Setup(effect.Options{BaseFrequency: 200, BeatFrequency: 10, Volume: 0.5}))

	assert.Equal(t, 200.0, b.LeftFrequency())
	assert.Equal(t, 210.0, b.RightFrequency())
	assert.Equal(t, 4, b.NodeCount())
	assert.Equal(t, []audio.OscillatorInfo{
		{Label: "binaural-left", Frequency: 200},
		{Label: "binaural-right", Frequency: 210},
	}, f.env.Audio.Oscillators())

	b.SetBeat(4)
	assert.Equal(t, 204.0, b.RightFrequency())
	b.SetBase(100)
	assert.Equal(t, 100.0, b.LeftFrequency())
	assert.Equal(t, 104.0, b.RightFrequency())

	require.NoError(t, b.Stop())
	assert.Zero(t, f.env.Audio.LiveNodes())
	assert.Zero(t, b.LeftFrequency())
}

func TestBinauralRampBeat(t *testing.T) {
	f := newFixture(t)
	b := effect.NewBinaural(f.env.Audio, "binaural", 1)
	require.NoError(t, b.Setup(effect.Options{BaseFrequency: 200, BeatFrequency: 10, Volume: 1}))

	b.RampBeat(8, time.Second)
	b.RampBeat(6, 2*time.Second)
	renderFor(f.env.Audio, time.Second)
	assert.InDelta(t, 208, b.RightFrequency(), 0.01)
	assert.InDelta(t, 8, b.Beat(), 0.01)
	renderFor(f.env.Audio, 2*time.Second)
	assert.InDelta(t, 206, b.RightFrequency(), 1e-9)
	assert.InDelta(t, 6, b.Beat(), 1e-9)

	b.SetBeat(4)
	assert.Equal(t, 4.0, b.Beat())
	assert.Equal(t, 204.0, b.RightFrequency())
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	for _, c := range []effect.Component{
		effect.NewBinaural(f.env.Audio, "pair", 1),
		effect.NewSchumann(f.env.Audio),
		effect.NewHarmonic(f.env.Audio),
		effect.NewPad(f.env.Audio),
		effect.NewBreath(f.env.Audio),
		effect.NewChirp(f.env),
		effect.NewPing(f.env),
		effect.NewPulseTone(f.env.Audio, "pulse", 200, 0.1, 0.3),
	} {
		require.NoError(t, c.Setup(effect.Options{BaseFrequency: 200, BeatFrequency: 10, Volume: 0.5}))
		c.UpdateVolume(0.8)
		assert.NoError(t, c.Stop())
		assert.NoError(t, c.Stop())
	}
	assert.Zero(t, f.env.Audio.LiveNodes())
	assert.Zero(t, f.env.Sched.Pending())
}

func peakFor(ctx *audio.Context, d time.Duration) float64 {
	frames := int(d.Seconds()*audio.SampleRate) / audio.Quantum * audio.Quantum
	out := make([]float32, frames*audio.Channels)
	_, _ = ctx.Render(out)
	var peak float64
	for _, v := range out {
		peak = max(peak, float64(v))
	}
	return peak
}

func TestUpdateVolumeRescalesGain(t *testing.T) {
	f := newFixture(t)
	pad := effect.NewPad(f.env.Audio)
	require.NoError(t, pad.Setup(effect.Options{Volume: 1}))
	loud := peakFor(f.env.Audio, 200*time.Millisecond)
	assert.InDelta(t, 0.2, loud, 0.01)

	pad.UpdateVolume(0.5)
	renderFor(f.env.Audio, 100*time.Millisecond)
	assert.InDelta(t, loud/2, peakFor(f.env.Audio, 200*time.Millisecond), 0.01)
	require.NoError(t, pad.Stop())
}

func TestChirpSpawnsSelfReleasingCues(t *testing.T) {
	f := newFixture(t)
	chirp := effect.NewChirp(f.env)
	require.NoError(t, chirp.Setup(effect.Options{Volume: 1}))
	assert.Equal(t, 1, chirp.TimerCount())
	assert.Zero(t, chirp.Active())

	f.advance(effect.ChirpInterval)
	require.Equal(t, 1, chirp.Active())
	oscs := f.env.Audio.Oscillators()
	require.Len(t, oscs, 1)
	assert.Equal(t, "chirp", oscs[0].Label)
	assert.InDelta(t, effect.ChirpCenter-effect.ChirpSweep, oscs[0].Frequency, effect.ChirpSpread)

	f.advance(300 * time.Millisecond)
	assert.Zero(t, chirp.Active())
	assert.Zero(t, f.env.Audio.LiveNodes())

	require.NoError(t, chirp.Stop())
	assert.Zero(t, chirp.TimerCount())
	f.advance(time.Minute)
	assert.Zero(t, f.env.Audio.LiveNodes())
}

func TestStopSilencesSoundingCue(t *testing.T) {
	f := newFixture(t)
	ping := effect.NewPing(f.env)
	require.NoError(t, ping.Setup(effect.Options{Volume: 1}))
	f.advance(effect.PingInterval)
	require.Equal(t, 1, ping.Active())

	require.NoError(t, ping.Stop())
	assert.Zero(t, f.env.Audio.LiveNodes())
	assert.Zero(t, f.env.Sched.Pending())
}

func TestNoiseBurst(t *testing.T) {
	f := newFixture(t)
	var bursts effect.Transients
	require.NoError(t, bursts.Start(effect.NewNoiseBurst(f.env, "clear", 5*time.Second, 0.3), effect.Options{Volume: 1}))
	assert.Equal(t, 1, bursts.Active())
	assert.Equal(t, 2, bursts.NodeCount())

	f.advance(4999 * time.Millisecond)
	assert.Equal(t, 1, bursts.Active())
	f.advance(time.Millisecond)
	assert.Zero(t, bursts.Active())
	assert.Zero(t, f.env.Audio.LiveNodes())
}

func TestCueEnvelope(t *testing.T) {
	f := newFixture(t)
	cue := effect.NewCue(f.env, effect.CueSpec{
		Label:     "cue",
		Frequency: 400,
		Ratio:     0.5,
		Attack:    time.Second,
		Hold:      time.Second,
		Release:   time.Second,
	})
	require.NoError(t, cue.Setup(effect.Options{Volume: 1}))
	assert.Equal(t, 3*time.Second, effect.CueSpec{Attack: time.Second, Hold: time.Second, Release: time.Second}.Duration())

	var peak float32
	frames := 4 * audio.SampleRate / audio.Quantum * audio.Quantum
	out := make([]float32, frames*audio.Channels)
	_, _ = f.env.Audio.Render(out)
	for i, v := range out {
		if v > peak {
			peak = v
		}
		if i/audio.Channels > 3*audio.SampleRate+audio.Quantum {
			require.Zero(t, v)
		}
	}
	assert.InDelta(t, 0.5, peak, 0.01)
	assert.False(t, cue.Done())

	f.advance(3 * time.Second)
	assert.True(t, cue.Done())
}

func TestFMToneDepthRamp(t *testing.T) {
	f := newFixture(t)
	fm := effect.NewFMTone(f.env.Audio, "fm", 200, 6, 0, 0.2)
	require.NoError(t, fm.Setup(effect.Options{Volume: 1}))
	fm.RampDepth(20, 10*time.Second)
	fm.RampDepth(0, 20*time.Second)

	renderFor(f.env.Audio, 5*time.Second)
	assert.InDelta(t, 10, fm.Depth(), 0.01)
	renderFor(f.env.Audio, 5*time.Second)
	assert.InDelta(t, 20, fm.Depth(), 0.01)
	renderFor(f.env.Audio, 10*time.Second)
	assert.InDelta(t, 0, fm.Depth(), 0.01)
	require.NoError(t, fm.Stop())
}

func TestPulseToneRampIn(t *testing.T) {
	f := newFixture(t)
	p := effect.NewPulseTone(f.env.Audio, "beacon", 200, 0.1, 0.3)
	p.RampIn = 10 * time.Second
	require.NoError(t, p.Setup(effect.Options{Volume: 1}))
	assert.Zero(t, p.Intensity())
	renderFor(f.env.Audio, 5*time.Second)
	assert.InDelta(t, 0.5, p.Intensity(), 0.01)
	require.NoError(t, p.Stop())
	assert.Zero(t, f.env.Audio.LiveNodes())
}

func TestSetupFailsOnClosedContext(t *testing.T) {
	f := newFixture(t)
	f.env.Audio.Cleanup()
	b := effect.NewBinaural(f.env.Audio, "pair", 1)
	assert.ErrorIs(t, b.Setup(effect.Options{BaseFrequency: 200, BeatFrequency: 10, Volume: 1}), audio.ErrClosed)
	assert.Zero(t, b.NodeCount())
}
