package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	log "github.com/rs/zerolog/log"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/effect"
	"github.com/kc2g-flex-tools/nBEAT/internal/scheduler"
)

type Protocol string

const (
	CRV Protocol = "crv"
	ERV Protocol = "erv"
	ARV Protocol = "arv"
)

func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(strings.ToLower(s))
	if _, ok := protocols[p]; !ok {
		return "", fmt.Errorf("unknown protocol %q", s)
	}
	return p, nil
}

type Stage struct {
	At   time.Duration
	Beat float64
}

type protocolSpec struct {
	stages []Stage
	// cycle restarts the stages this long after the first; zero holds the
	// last stage.
	cycle time.Duration
}

var protocols = map[Protocol]protocolSpec{
	CRV: {stages: []Stage{
		{0, 15}, {5 * time.Minute, 5}, {10 * time.Minute, 4}, {18 * time.Minute, 8},
		{26 * time.Minute, 10}, {35 * time.Minute, 13}, {45 * time.Minute, 15},
	}},
	ERV: {stages: []Stage{
		{0, 2}, {15 * time.Minute, 3}, {30 * time.Minute, 5}, {45 * time.Minute, 7}, {60 * time.Minute, 10},
	}},
	ARV: {stages: []Stage{
		{0, 10}, {450 * time.Second, 18}, {15 * time.Minute, 6}, {1350 * time.Second, 18},
	}, cycle: 30 * time.Minute},
}

// Stages lists a protocol's ramp.
func Stages(p Protocol) []Stage {
	return append([]Stage(nil), protocols[p].stages...)
}

const (
	StageGlide = 2 * time.Second

	ThetaDeltaBeat    = 4.0
	EnhancedAlphaBeat = 10.0
	CycleBetaBeat     = 15.0
	CycleThetaBeat    = 5.0
	CycleBeta         = 20 * time.Second
	CycleTheta        = 40 * time.Second

	MarkerInterval     = 5 * time.Minute
	DefaultClearEnergy = 5 * time.Second
)

var markerCue = effect.CueSpec{
	Label:     "target-marker",
	Frequency: 1000,
	Ratio:     0.3,
	Attack:    10 * time.Millisecond,
	Hold:      200 * time.Millisecond,
	Release:   300 * time.Millisecond,
}

type remoteMode int

const (
	modeThetaDelta remoteMode = iota
	modeEnhancedAlpha
	modeBetaTheta
	modeFocused
	modeProtocol
)

// TargetFocus holds the five phase durations of a target focus exercise.
// Zero entries take the default.
type TargetFocus struct {
	Phases [5]time.Duration
}

func DefaultTargetFocus() TargetFocus {
	return TargetFocus{Phases: [5]time.Duration{
		2 * time.Minute, 3 * time.Minute, 5 * time.Minute, 5 * time.Minute, 2 * time.Minute,
	}}
}

func (t TargetFocus) Total() time.Duration {
	def := DefaultTargetFocus()
	var d time.Duration
	for i, p := range t.Phases {
		if p <= 0 {
			p = def.Phases[i]
		}
		d += p
	}
	return d
}

type Remote struct {
	base
	mode     remoteMode
	protocol Protocol
	stage    int
	pair     *effect.Binaural

	sequence    *scheduler.Handle
	marker      *scheduler.Handle
	targetFocus *scheduler.Handle

	rec recorder
}

func NewRemote(env *Env) *Remote {
	return &Remote{base: newBase(env, KindRemote), protocol: CRV}
}

func (r *Remote) Start(st Settings) error {
	r.stopRecording()
	r.begin(st)
	switch suffix := strings.TrimPrefix(st.PresetID, "remote-"); suffix {
	case "theta-delta":
		r.mode = modeThetaDelta
		r.settings.BeatFrequency = orDefault(st.BeatFrequency, ThetaDeltaBeat)
	case "enhanced-alpha":
		r.mode = modeEnhancedAlpha
		r.settings.BeatFrequency = orDefault(st.BeatFrequency, EnhancedAlphaBeat)
	case "beta-theta":
		r.mode = modeBetaTheta
		r.settings.BeatFrequency = CycleBetaBeat
	case "focused":
		r.mode = modeFocused
		r.settings.BeatFrequency = orDefault(st.BeatFrequency, ThetaDeltaBeat)
	default:
		if p, err := ParseProtocol(suffix); err == nil {
			r.protocol = p
		}
		r.mode = modeProtocol
		r.settings.BeatFrequency = protocols[r.protocol].stages[0].Beat
	}

	r.pair = effect.NewBinaural(r.env.Audio, "remote", 1)
	if err := r.add(r.pair); err != nil {
		r.pair = nil
		return r.abort(fmt.Errorf("remote: %w", err))
	}

	switch r.mode {
	case modeBetaTheta:
		r.cycleBeta()
	case modeFocused:
		r.marker = r.every(MarkerInterval, func() {
			if _, err := r.playCue(markerCue); err != nil {
				log.Warn().Err(err).Msg("target marker")
				return
			}
			r.emit(EventMarker, "", markerCue.Frequency)
		})
	case modeProtocol:
		r.runStage(0)
	}
	log.Info().Str("preset", st.PresetID).Float64("beat", r.settings.BeatFrequency).Msg("remote viewing session started")
	return nil
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func (r *Remote) cycleBeta() {
	r.setBeat(CycleBetaBeat)
	r.emit(EventBeatCycle, "beta", CycleBetaBeat)
	r.sequence = r.after(CycleBeta, r.cycleTheta)
}

func (r *Remote) cycleTheta() {
	r.setBeat(CycleThetaBeat)
	r.emit(EventBeatCycle, "theta", CycleThetaBeat)
	r.sequence = r.after(CycleTheta, r.cycleBeta)
}

func (r *Remote) setBeat(beat float64) {
	r.settings.BeatFrequency = beat
	r.pair.SetBeat(beat)
}

func (r *Remote) runStage(i int) {
	spec := protocols[r.protocol]
	st := spec.stages[i]
	r.stage = i
	r.settings.BeatFrequency = st.Beat
	r.pair.GlideBeat(st.Beat, StageGlide)
	r.emit(EventProtocolStage, string(r.protocol), st.Beat)

	switch {
	case i+1 < len(spec.stages):
		r.sequence = r.after(spec.stages[i+1].At-st.At, func() { r.runStage(i + 1) })
	case spec.cycle > 0:
		r.sequence = r.after(spec.cycle-st.At, func() { r.runStage(0) })
	default:
		r.sequence = nil
	}
}

func (r *Remote) Stop() error {
	r.stopRecording()
	r.pair = nil
	r.sequence, r.marker, r.targetFocus = nil, nil, nil
	r.mode = modeThetaDelta
	r.protocol = CRV
	r.stage = 0
	return r.teardown()
}

func (r *Remote) SetBaseFrequency(f float64) {
	if r.pair == nil {
		return
	}
	r.settings.BaseFrequency = f
	r.pair.SetBase(f)
}

// SetBeatFrequency holds until the next stage or cycle step replaces it.
func (r *Remote) SetBeatFrequency(f float64) {
	if r.pair == nil {
		return
	}
	r.setBeat(f)
}

func (r *Remote) Frequencies() (float64, float64) {
	return r.settings.BaseFrequency, r.settings.BeatFrequency
}

// SetProtocol switches the ramp. While playing the new protocol starts
// from its first stage; otherwise it applies to the next protocol session.
func (r *Remote) SetProtocol(p Protocol) error {
	if _, ok := protocols[p]; !ok {
		return fmt.Errorf("unknown protocol %q", p)
	}
	r.protocol = p
	if !r.playing {
		return nil
	}
	r.timers.Cancel(r.sequence)
	r.timers.Cancel(r.marker)
	r.sequence, r.marker = nil, nil
	r.mode = modeProtocol
	r.runStage(0)
	return nil
}

func (r *Remote) Protocol() Protocol { return r.protocol }

// Stage is the index of the current protocol stage.
func (r *Remote) Stage() int { return r.stage }

// ClearEnergy plays a noise burst over the session. Non-positive d uses
// the default.
func (r *Remote) ClearEnergy(d time.Duration) {
	if !r.playing {
		return
	}
	if d <= 0 {
		d = DefaultClearEnergy
	}
	burst := effect.NewNoiseBurst(r.env.Env, "clear-energy", d, 0.3)
	if err := r.cues.Start(burst, effect.Options{Volume: r.settings.Volume}); err != nil {
		log.Warn().Err(err).Msg("clear energy")
		return
	}
	r.emit(EventClearEnergy, "", d.Seconds())
}

// StartTargetFocus arms one timer for the whole exercise, restarting it if
// already armed.
func (r *Remote) StartTargetFocus(cfg TargetFocus) {
	if !r.playing {
		return
	}
	r.timers.Cancel(r.targetFocus)
	total := cfg.Total()
	r.targetFocus = r.after(total, func() {
		r.targetFocus = nil
		r.emit(EventTargetFocus, "", total.Seconds())
		r.ClearEnergy(0)
	})
}

func (r *Remote) TargetFocusPending() bool {
	return r.targetFocus.Pending()
}

// StartRecording captures the microphone until StopRecording or Stop.
func (r *Remote) StartRecording() error {
	if r.env.Mic == nil {
		return ErrMicrophoneUnavailable
	}
	if !r.playing || r.rec.active() {
		return nil
	}
	stream, err := r.env.Mic.Open(r.rec.write)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	r.rec.begin(stream)
	stream.Start()
	log.Info().Msg("recording started")
	return nil
}

// StopRecording returns the capture as little-endian float32 mono PCM, or
// false when nothing was recording.
func (r *Remote) StopRecording() ([]byte, bool) {
	samples, ok := r.rec.end()
	if !ok {
		return nil, false
	}
	buf := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	log.Info().Int("samples", len(samples)).Msg("recording stopped")
	return buf, true
}

func (r *Remote) Recording() bool { return r.rec.active() }

func (r *Remote) stopRecording() {
	if _, ok := r.rec.end(); ok {
		log.Debug().Msg("recording discarded")
	}
}

// recorder buffers capture callbacks, which arrive on the host's goroutine.
type recorder struct {
	mu      sync.Mutex
	stream  audio.Stream
	samples []float32
}

func (r *recorder) active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

func (r *recorder) begin(s audio.Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stream = s
	r.samples = nil
}

func (r *recorder) write(p []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		r.samples = append(r.samples, p...)
	}
}

func (r *recorder) end() ([]float32, bool) {
	r.mu.Lock()
	s := r.stream
	samples := r.samples
	r.stream, r.samples = nil, nil
	r.mu.Unlock()
	if s == nil {
		return nil, false
	}
	s.Stop()
	s.Close()
	return samples, true
}
