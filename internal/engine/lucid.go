package engine

import (
	"fmt"
	"strings"
	"time"

	log "github.com/rs/zerolog/log"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/effect"
	"github.com/kc2g-flex-tools/nBEAT/internal/scheduler"
)

const (
	DefaultRealityCheck = 15 * time.Minute
	DefaultWBTB         = 90 * time.Minute

	lucidAlphaBeat = 10.0
	lucidGammaBeat = 40.0
)

var (
	realityCheckCue = effect.CueSpec{
		Label:       "reality-check",
		Frequency:   800,
		Ratio:       0.4,
		Attack:      10 * time.Millisecond,
		Release:     500 * time.Millisecond,
		Exponential: true,
	}
	wakeCue = effect.CueSpec{
		Label:     "wbtb-wake",
		Frequency: 400,
		Ratio:     0.5,
		Attack:    15 * time.Second,
		Release:   5 * time.Second,
	}
)

// Lucid is a theta pair with optional alpha and gamma layers, a reality
// check cue and a wake-back-to-bed alarm.
type Lucid struct {
	base
	variant string
	pairs   []*effect.Binaural

	realityCheck *scheduler.Handle
	interval     time.Duration
	wbtb         *scheduler.Handle
	wake         *effect.Cue
}

func NewLucid(env *Env) *Lucid {
	return &Lucid{base: newBase(env, KindLucid)}
}

func (l *Lucid) Start(st Settings) error {
	l.reset()
	l.begin(st)
	l.variant = strings.TrimPrefix(st.PresetID, "lucid-")
	ctx := l.env.Audio

	main := effect.NewBinaural(ctx, "lucid-theta", 1)
	if err := l.add(main); err != nil {
		return l.fail(err)
	}
	l.pairs = append(l.pairs, main)

	layer := func(label string, ratio, beat float64) error {
		pair := effect.NewBinaural(ctx, label, ratio)
		opts := st.options()
		opts.BeatFrequency = beat
		if err := l.addWith(pair, opts); err != nil {
			return err
		}
		l.pairs = append(l.pairs, pair)
		return nil
	}
	if l.variant == "advanced" || l.variant == "gamma" {
		if err := layer("lucid-alpha", 0.3, lucidAlphaBeat); err != nil {
			return l.fail(err)
		}
	}
	if l.variant == "gamma" {
		if err := layer("lucid-gamma", 0.2, lucidGammaBeat); err != nil {
			return l.fail(err)
		}
	}
	if err := l.add(effect.NewTone(ctx, "dream-stabilization", audio.Sine, 0.2, 0.1)); err != nil {
		return l.fail(err)
	}
	log.Info().Str("preset", st.PresetID).Int("pairs", len(l.pairs)).Msg("lucid session started")
	return nil
}

func (l *Lucid) fail(err error) error {
	l.reset()
	return l.abort(fmt.Errorf("lucid %s: %w", l.variant, err))
}

func (l *Lucid) reset() {
	l.pairs = nil
	l.realityCheck, l.interval = nil, 0
	l.wbtb, l.wake = nil, nil
}

func (l *Lucid) Stop() error {
	l.reset()
	return l.teardown()
}

func (l *Lucid) SetBaseFrequency(f float64) {
	if !l.playing {
		return
	}
	l.settings.BaseFrequency = f
	for _, p := range l.pairs {
		p.SetBase(f)
	}
}

func (l *Lucid) SetBeatFrequency(f float64) {
	if !l.playing {
		return
	}
	l.settings.BeatFrequency = f
	l.pairs[0].SetBeat(f)
}

func (l *Lucid) Frequencies() (float64, float64) {
	return l.settings.BaseFrequency, l.settings.BeatFrequency
}

// EnableRealityCheck plays the reality check cue every interval minutes,
// replacing any earlier schedule. Non-positive minutes use the default.
func (l *Lucid) EnableRealityCheck(minutes float64) {
	if !l.playing {
		return
	}
	l.DisableRealityCheck()
	l.interval = minutesOr(minutes, DefaultRealityCheck)
	l.realityCheck = l.every(l.interval, func() {
		if _, err := l.playCue(realityCheckCue); err != nil {
			log.Warn().Err(err).Msg("reality check cue")
			return
		}
		l.emit(EventRealityCheck, "", realityCheckCue.Frequency)
	})
	log.Info().Dur("interval", l.interval).Msg("reality checks enabled")
}

func (l *Lucid) DisableRealityCheck() {
	l.timers.Cancel(l.realityCheck)
	l.realityCheck, l.interval = nil, 0
}

// RealityCheckInterval is zero when reality checks are off.
func (l *Lucid) RealityCheckInterval() time.Duration {
	return l.interval
}

// StartWBTBTimer sounds the wake tone once after minutes.
func (l *Lucid) StartWBTBTimer(minutes float64) {
	if !l.playing {
		return
	}
	l.CancelWBTB()
	d := minutesOr(minutes, DefaultWBTB)
	l.wbtb = l.after(d, func() {
		l.wbtb = nil
		cue, err := l.playCue(wakeCue)
		if err != nil {
			log.Warn().Err(err).Msg("wake tone")
			return
		}
		l.wake = cue
		l.emit(EventWake, "", wakeCue.Frequency)
	})
	log.Info().Dur("delay", d).Msg("wake-back-to-bed timer set")
}

// CancelWBTB cancels the pending alarm and silences a wake tone in progress.
func (l *Lucid) CancelWBTB() {
	l.timers.Cancel(l.wbtb)
	l.wbtb = nil
	if l.wake != nil && !l.wake.Done() {
		if err := l.wake.Stop(); err != nil {
			log.Warn().Err(err).Msg("stop wake tone")
		}
	}
	l.wake = nil
}

func (l *Lucid) WBTBPending() bool {
	return l.wbtb.Pending()
}

// MinTimerPeriod is the shortest interval a minutes argument can produce.
const MinTimerPeriod = time.Second

func minutesOr(minutes float64, def time.Duration) time.Duration {
	if minutes <= 0 {
		return def
	}
	return max(time.Duration(minutes*float64(time.Minute)), MinTimerPeriod)
}
