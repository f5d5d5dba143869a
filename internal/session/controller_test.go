package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/engine"
	"github.com/kc2g-flex-tools/nBEAT/internal/preset"
	"github.com/kc2g-flex-tools/nBEAT/internal/session"
)

type fixture struct {
	c      *session.Controller
	clock  *clock.Mock
	events []engine.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.Seed = 1
	f := &fixture{clock: clock.NewMock()}
	f.c = session.New(cfg, audio.NullHost{}, nil, f.clock, nil)
	require.True(t, f.c.Initialize())
	t.Cleanup(f.c.Cleanup)
	f.c.OnEvent(func(e engine.Event) { f.events = append(f.events, e) })
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock.Add(d)
	f.c.Scheduler().RunDue()
}

func (f *fixture) count(kind engine.EventKind) int {
	n := 0
	for _, e := range f.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (f *fixture) frequencies(label string) []float64 {
	var out []float64
	for _, o := range f.c.Oscillators() {
		if o.Label == label {
			out = append(out, o.Frequency)
		}
	}
	return out
}

// stop runs Stop through its grace period.
func (f *fixture) stop(t *testing.T) {
	t.Helper()
	done := false
	f.c.Stop(func() { done = true })
	f.advance(session.DefaultConfig().StopGrace)
	require.True(t, done)
	require.Equal(t, session.Idle, f.c.State())
}

func TestCustomFrequenciesAreExact(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ base, beat float64 }{
		{200, 10}, {60, 0.5}, {440, 40}, {136.1, 7.83},
	} {
		require.NoError(t, f.c.Start(tc.base, tc.beat, 0.5, "custom"))
		assert.Equal(t, []float64{tc.base}, f.frequencies("binaural-left"))
		assert.Equal(t, []float64{tc.base + tc.beat}, f.frequencies("binaural-right"))

		s := f.c.Session()
		assert.Equal(t, "custom", s.PresetID)
		assert.Equal(t, tc.base, s.BaseFrequency)
		assert.Equal(t, tc.beat, s.BeatFrequency)
		assert.True(t, s.Playing)
		f.stop(t)
	}
}

func TestZeroBeatPlaysMatchedTones(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(200, 0, 0.5, "custom"))
	assert.Equal(t, []float64{200}, f.frequencies("binaural-left"))
	assert.Equal(t, []float64{200}, f.frequencies("binaural-right"))
	assert.Zero(t, f.c.Session().BeatFrequency)
}

// render plays d of audio in one-second blocks.
func (f *fixture) render(t *testing.T, d time.Duration) {
	t.Helper()
	out := make([]float32, audio.SampleRate*audio.Channels)
	for ; d > 0; d -= time.Second {
		_, err := f.c.Render(out)
		require.NoError(t, err)
	}
}

func TestRampingBeatMatchesGraph(t *testing.T) {
	for _, id := range []string{"astral-relaxation", "astral-progressive"} {
		t.Run(id, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.c.Start(200, 10, 0.5, id))
			assert.Equal(t, 10.0, f.c.Session().BeatFrequency)

			f.render(t, 5*time.Minute)
			left := f.frequencies("astral-left")
			right := f.frequencies("astral-right")
			require.Len(t, left, 1)
			require.Len(t, right, 1)
			s := f.c.Session()
			assert.InDelta(t, 8, s.BeatFrequency, 1e-6)
			assert.InDelta(t, right[0]-left[0], s.BeatFrequency, 1e-9)
			assert.Equal(t, left[0], s.BaseFrequency)
		})
	}
}

func TestRepeatedStartConverges(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.c.Start(200, 10, 0.5, "custom"))
	}
	assert.Equal(t, session.Playing, f.c.State())
	assert.Equal(t, 4, f.c.NodeCount())
	assert.Zero(t, f.c.TimerCount())
	assert.Len(t, f.frequencies("binaural-right"), 1)

	require.NoError(t, f.c.Start(100, 4, 0.5, "alien-ambience"))
	assert.Empty(t, f.frequencies("binaural-right"))
	assert.Equal(t, "alien-ambience", f.c.CurrentPreset())
}

func TestStopReleasesEverything(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(200, 6, 0.5, "lucid-gamma"))
	f.c.EnableRealityCheck(15)
	f.c.StartWBTBTimer(90)
	require.Equal(t, 2, f.c.TimerCount())

	done := false
	f.c.Stop(func() { done = true })
	assert.Equal(t, session.Stopping, f.c.State())
	assert.Zero(t, f.c.NodeCount())
	assert.Equal(t, 1, f.c.TimerCount(), "only the stop grace is pending")
	assert.False(t, f.c.IsPlaying())
	assert.Empty(t, f.c.CurrentPreset())

	// Dropped while stopping.
	require.NoError(t, f.c.Start(200, 10, 0.5, "custom"))
	assert.Zero(t, f.c.NodeCount())
	f.c.Stop(func() { t.Error("second stop must be dropped") })

	f.advance(299 * time.Millisecond)
	assert.False(t, done)
	f.advance(time.Millisecond)
	assert.True(t, done)
	assert.Equal(t, session.Idle, f.c.State())
	assert.Zero(t, f.c.TimerCount())

	require.NoError(t, f.c.Start(200, 10, 0.5, "custom"))
	assert.Equal(t, 4, f.c.NodeCount())
	assert.Zero(t, f.c.TimerCount())
}

func TestStopWhileIdle(t *testing.T) {
	f := newFixture(t)
	done := false
	f.c.Stop(func() { done = true })
	assert.True(t, done)
	assert.Zero(t, f.c.TimerCount())
}

func TestProgressiveJourneyEndsIdle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(200, 10, 0.5, "astral-progressive"))
	assert.Equal(t, 0, f.c.JourneyPhase())

	seen := []int{f.c.JourneyPhase()}
	for i := 0; i < len(engine.Journey)-1; i++ {
		f.advance(engine.Journey[i].Duration)
		seen = append(seen, f.c.JourneyPhase())
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, seen)
	assert.Equal(t, 6, f.count(engine.EventPhase))

	f.advance(engine.Journey[5].Duration)
	assert.Equal(t, session.Stopping, f.c.State())
	assert.Equal(t, 1, f.count(engine.EventFinished))
	assert.Zero(t, f.c.NodeCount())

	f.advance(session.DefaultConfig().StopGrace)
	assert.Equal(t, session.Idle, f.c.State())
	assert.Zero(t, f.c.TimerCount())
	assert.Equal(t, 6, f.count(engine.EventPhase))
}

func TestDeepThetaOverridesBeat(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(200, 10, 0.5, "astral-deep-theta"))
	assert.Equal(t, []float64{200}, f.frequencies("astral-left"))
	right := f.frequencies("astral-right")
	require.Len(t, right, 1)
	assert.InDelta(t, 206.3, right[0], 1e-9)
	assert.Equal(t, engine.DeepThetaBeat, f.c.Session().BeatFrequency)

	f.c.SetBeatFrequency(4)
	assert.Equal(t, engine.DeepThetaBeat, f.c.Session().BeatFrequency)
}

func TestGatewayProgress(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(0, -1, 0.5, "gateway-focus12"))
	last := f.c.SessionProgress()
	assert.Zero(t, last)
	for i := 0; i < 110; i++ {
		f.advance(engine.ProgressInterval)
		p := f.c.SessionProgress()
		assert.GreaterOrEqual(t, p, last)
		assert.LessOrEqual(t, p, 100)
		last = p
	}
	assert.Equal(t, 100, last)

	f.stop(t)
	assert.Zero(t, f.c.SessionProgress())
	assert.Equal(t, engine.Focus10, f.c.CurrentFocusLevel())
}

func TestRealityCheckUntilDisabled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(200, 6, 0.5, "lucid-basic"))
	f.c.EnableRealityCheck(15)
	assert.Equal(t, 15*time.Minute, f.c.RealityCheckInterval())

	f.advance(15 * time.Minute)
	assert.Equal(t, 1, f.count(engine.EventRealityCheck))
	assert.Equal(t, []float64{800}, f.frequencies("reality-check"))
	f.advance(45 * time.Minute)
	assert.Equal(t, 4, f.count(engine.EventRealityCheck))

	f.c.DisableRealityCheck()
	f.advance(time.Hour)
	assert.Equal(t, 4, f.count(engine.EventRealityCheck))

	f.c.EnableRealityCheck(15)
	f.stop(t)
	f.advance(time.Hour)
	assert.Equal(t, 4, f.count(engine.EventRealityCheck))
	assert.Zero(t, f.c.TimerCount())
}

func TestFocusLevelRestart(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(0, -1, 0.5, "gateway-focus10"))
	f.advance(time.Minute)
	require.NoError(t, f.c.SetFocusLevel(engine.Focus21))

	assert.ElementsMatch(t, []float64{3.5, 1.5, 7.83, 40}, f.frequencies("signature"))
	assert.Equal(t, []float64{528}, f.frequencies("carrier"))
	assert.Equal(t, engine.Focus21, f.c.CurrentFocusLevel())
	assert.Equal(t, "gateway-focus21", f.c.CurrentPreset())
	assert.Zero(t, f.c.SessionProgress())
	assert.Equal(t, 1.5, f.c.Session().BeatFrequency)
	assert.Equal(t, session.Playing, f.c.State())

	assert.Error(t, f.c.SetFocusLevel("focus3"))
}

func TestClearEnergyBurst(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(200, -1, 0.5, "remote-theta-delta"))
	nodes := f.c.NodeCount()

	f.c.ClearEnergy(5000 * time.Millisecond)
	assert.Greater(t, f.c.NodeCount(), nodes)
	assert.Equal(t, []float64{200}, f.frequencies("remote-left"))
	assert.Equal(t, []float64{204}, f.frequencies("remote-right"))

	f.advance(4999 * time.Millisecond)
	assert.Greater(t, f.c.NodeCount(), nodes)
	f.advance(time.Millisecond)
	assert.Equal(t, nodes, f.c.NodeCount())
	assert.Equal(t, []float64{204}, f.frequencies("remote-right"))
	s := f.c.Session()
	assert.Equal(t, 200.0, s.BaseFrequency)
	assert.Equal(t, 4.0, s.BeatFrequency)
}

func TestSessionFollowsProtocol(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(200, -1, 0.5, "remote-crv"))
	assert.Equal(t, engine.CRV, f.c.CurrentProtocol())
	assert.Equal(t, 15.0, f.c.Session().BeatFrequency)

	f.advance(5 * time.Minute)
	assert.Equal(t, 5.0, f.c.Session().BeatFrequency)

	require.NoError(t, f.c.SetProtocol(engine.ARV))
	assert.Equal(t, engine.ARV, f.c.CurrentProtocol())
	assert.Equal(t, 10.0, f.c.Session().BeatFrequency)
	assert.Error(t, f.c.SetProtocol("lrv"))

	f.stop(t)
	assert.Equal(t, engine.CRV, f.c.CurrentProtocol())
}

func TestExtensionsNeedMatchingEngine(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(200, 10, 0.5, "custom"))

	f.c.EnableRealityCheck(1)
	f.c.StartWBTBTimer(1)
	f.c.EnableReturnSignal()
	f.c.StartTargetFocus(engine.TargetFocus{})
	f.c.ClearEnergy(time.Second)
	assert.Zero(t, f.c.TimerCount())
	assert.Equal(t, 4, f.c.NodeCount())

	assert.NoError(t, f.c.StartRecording())
	_, ok := f.c.StopRecording()
	assert.False(t, ok)
	assert.NoError(t, f.c.SetFocusLevel(engine.Focus15))
	assert.Equal(t, "custom", f.c.CurrentPreset())
	assert.Zero(t, f.c.SessionProgress())
	assert.Equal(t, -1, f.c.JourneyPhase())
}

func TestRecordingWithoutMicrophone(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(200, -1, 0.5, "remote-focused"))
	err := f.c.StartRecording()
	assert.ErrorIs(t, err, engine.ErrMicrophoneUnavailable)
	assert.False(t, f.c.Recording())
}

func TestStartRejectsUnknownPreset(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(200, 10, 0.5, "custom"))
	err := f.c.Start(200, 10, 0.5, "no-such-preset")
	assert.ErrorIs(t, err, preset.ErrUnknownPreset)
	assert.Equal(t, session.Playing, f.c.State())
	assert.Equal(t, "custom", f.c.CurrentPreset())
}

func TestStartUsesPresetDefaults(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(0, -1, 2, "beta-focus"))
	d, err := f.c.Catalog().Get("beta-focus")
	require.NoError(t, err)
	s := f.c.Session()
	assert.Equal(t, d.BaseFrequency, s.BaseFrequency)
	assert.Equal(t, d.BeatFrequency, s.BeatFrequency)
	assert.Equal(t, 1.0, s.Volume)
}

func TestSettersOnlyWhilePlaying(t *testing.T) {
	f := newFixture(t)
	f.c.SetVolume(0.2)
	f.c.SetBaseFrequency(300)
	assert.Equal(t, session.Session{State: session.Idle}, f.c.Session())

	require.NoError(t, f.c.Start(200, 10, 0.5, "custom"))
	f.c.SetBaseFrequency(300)
	f.c.SetBeatFrequency(7)
	f.c.SetVolume(-1)
	s := f.c.Session()
	assert.Equal(t, 300.0, s.BaseFrequency)
	assert.Equal(t, 7.0, s.BeatFrequency)
	assert.Zero(t, s.Volume)
	assert.Equal(t, []float64{307}, f.frequencies("binaural-right"))
}

func TestElapsed(t *testing.T) {
	f := newFixture(t)
	assert.Zero(t, f.c.Elapsed())
	require.NoError(t, f.c.Start(200, 10, 0.5, "custom"))
	f.advance(90 * time.Second)
	assert.Equal(t, 90*time.Second, f.c.Elapsed())
}

func TestSpectrumAfterInitialize(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(1000, 0.001, 1, "custom"))
	out := make([]float32, audio.AnalyserSize*2*audio.Channels)
	_, err := f.c.Render(out)
	require.NoError(t, err)

	data := f.c.Spectrum()
	require.Len(t, data, audio.AnalyserSize/2)
	assert.InDelta(t, 1000, f.c.BinFrequency(audio.Peak(data)), 2*f.c.BinFrequency(1))
}

type failingHost struct{}

func (failingHost) Open(func([]float32) (int, error)) (audio.Stream, error) {
	return nil, errors.New("connection refused")
}

func TestInitializeFailure(t *testing.T) {
	c := session.New(session.DefaultConfig(), failingHost{}, nil, clock.NewMock(), nil)
	assert.False(t, c.Initialize())
	assert.Nil(t, c.Spectrum())
	err := c.Start(200, 10, 0.5, "custom")
	assert.ErrorIs(t, err, audio.ErrClosed)
	assert.Equal(t, session.Idle, c.State())
}

func TestCleanupResets(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Start(200, 6, 0.5, "lucid-basic"))
	f.c.EnableRealityCheck(5)
	f.c.Cleanup()
	assert.Equal(t, session.Idle, f.c.State())
	assert.Zero(t, f.c.TimerCount())
	assert.Zero(t, f.c.NodeCount())

	require.True(t, f.c.Initialize())
	require.NoError(t, f.c.Start(200, 10, 0.5, "custom"))
	assert.Equal(t, 4, f.c.NodeCount())
}
