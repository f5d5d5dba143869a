package engine

import (
	"fmt"
	"strings"
	"time"

	log "github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/effect"
)

type Strategy string

const (
	DeepTheta     Strategy = "deep-theta"
	EpsilonLambda Strategy = "epsilon-lambda"
	Seven77       Strategy = "777"
	Vibrational   Strategy = "vibrational"
	Relaxation    Strategy = "relaxation"
	Progressive   Strategy = "progressive"
	Return        Strategy = "return"
)

const (
	DeepThetaBeat     = 6.3
	EpsilonBeat       = 0.4
	EpsilonMinCarrier = 100.0
	EpsilonFMRate     = 120.0
	EpsilonFMDepth    = 10.0
	Base777           = 777.0
	Beat777           = 7.7
	Harmonic777       = 1554.0
	VibrationalDepth  = 20.0
	VibrationalRamp   = 10 * time.Minute
	ReturnBeat        = 10.0

	ReturnSignalFreq = 200.0
	ReturnSignalRate = 0.1
	ReturnSignalRamp = 10 * time.Minute
)

type Phase struct {
	Name     string
	Strategy Strategy
	Duration time.Duration
}

// Journey is the progressive sequence, each phase replacing the last.
var Journey = []Phase{
	{"Relaxation", Relaxation, 10 * time.Minute},
	{"Body-Awareness", DeepTheta, 10 * time.Minute},
	{"Vibrational", Vibrational, 15 * time.Minute},
	{"Separation", EpsilonLambda, 10 * time.Minute},
	{"Exploration", Seven77, 20 * time.Minute},
	{"Return", Return, 10 * time.Minute},
}

// JourneyDuration is the sum of every phase.
func JourneyDuration() time.Duration {
	var d time.Duration
	for _, p := range Journey {
		d += p.Duration
	}
	return d
}

// generator is the set of layers one strategy built. A pinned generator
// ignores caller frequency changes.
type generator struct {
	layers []effect.Component
	pair   *effect.Binaural
	pinned bool
}

func (g *generator) add(c effect.Component, opts effect.Options) error {
	if err := c.Setup(opts); err != nil {
		return err
	}
	g.layers = append(g.layers, c)
	return nil
}

func (g *generator) release() error {
	var errs error
	for i := len(g.layers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, g.layers[i].Stop())
	}
	g.layers = nil
	return errs
}

type Astral struct {
	base
	strategy     Strategy
	current      *generator
	phase        int
	returnSignal *effect.PulseTone
}

func NewAstral(env *Env) *Astral {
	return &Astral{base: newBase(env, KindAstral), phase: -1}
}

func strategyFor(id string) Strategy {
	s := Strategy(strings.TrimPrefix(id, "astral-"))
	switch s {
	case DeepTheta, EpsilonLambda, Seven77, Vibrational, Relaxation, Progressive:
		return s
	}
	return DeepTheta
}

// build runs one strategy against the current settings.
func (a *Astral) build(s Strategy) (*generator, error) {
	ctx := a.env.Audio
	base, beat, vol := a.settings.BaseFrequency, a.settings.BeatFrequency, a.settings.Volume
	g := &generator{}
	pair := func(b, d float64) error {
		g.pair = effect.NewBinaural(ctx, "astral", 1)
		return g.add(g.pair, effect.Options{BaseFrequency: b, BeatFrequency: d, Volume: vol})
	}
	opts := effect.Options{Volume: vol}

	var err error
	switch s {
	case DeepTheta:
		g.pinned = true
		err = pair(base, DeepThetaBeat)
	case EpsilonLambda:
		g.pinned = true
		carrier := max(base, EpsilonMinCarrier)
		if err = pair(carrier, EpsilonBeat); err == nil {
			err = g.add(effect.NewFMTone(ctx, "epsilon-fm", carrier, EpsilonFMRate, EpsilonFMDepth, 0.15), opts)
		}
	case Seven77:
		g.pinned = true
		if err = pair(Base777, Beat777); err == nil {
			err = g.add(effect.NewTone(ctx, "777-harmonic", audio.Sine, Harmonic777, 0.1), opts)
		}
	case Vibrational:
		if err = pair(base, beat); err == nil {
			fm := effect.NewFMTone(ctx, "vibrational-fm", base, beat, 0, 0.15)
			if err = g.add(fm, opts); err == nil {
				fm.RampDepth(VibrationalDepth, VibrationalRamp)
				fm.RampDepth(0, 2*VibrationalRamp)
			}
		}
	case Relaxation:
		g.pinned = true
		if err = pair(base, 10); err == nil {
			g.pair.RampBeat(8, 5*time.Minute)
			g.pair.RampBeat(6, 10*time.Minute)
		}
	case Return:
		err = pair(base, ReturnBeat)
	default:
		err = fmt.Errorf("unknown strategy %q", s)
	}
	if err != nil {
		if rerr := g.release(); rerr != nil {
			log.Warn().Err(rerr).Msg("release after failed build")
		}
		return nil, fmt.Errorf("astral %s: %w", s, err)
	}
	return g, nil
}

func (a *Astral) Start(st Settings) error {
	if err := a.releaseCurrent(); err != nil {
		log.Warn().Err(err).Msg("release before start")
	}
	a.clear()
	a.begin(st)
	a.strategy = strategyFor(st.PresetID)
	if a.strategy == Progressive {
		if err := a.enterPhase(0); err != nil {
			return a.abortRun(err)
		}
	} else {
		g, err := a.build(a.strategy)
		if err != nil {
			return a.abortRun(err)
		}
		a.current = g
	}
	log.Info().Str("preset", st.PresetID).Str("strategy", string(a.strategy)).Msg("astral session started")
	return nil
}

func (a *Astral) enterPhase(i int) error {
	if err := a.releaseCurrent(); err != nil {
		log.Warn().Err(err).Msg("release previous phase")
	}
	p := Journey[i]
	g, err := a.build(p.Strategy)
	if err != nil {
		return err
	}
	a.current, a.phase = g, i
	a.emit(EventPhase, p.Name, float64(i))
	a.after(p.Duration, func() {
		if i+1 == len(Journey) {
			a.finish()
			return
		}
		if err := a.enterPhase(i + 1); err != nil {
			log.Error().Err(err).Int("phase", i+1).Msg("phase failed to start")
			a.finish()
		}
	})
	return nil
}

// finish ends a completed journey and tells the owner the session is over.
func (a *Astral) finish() {
	a.emit(EventFinished, string(a.strategy), float64(a.phase))
	if err := a.Stop(); err != nil {
		log.Warn().Err(err).Msg("astral stop after journey")
	}
	if a.env.Finished != nil {
		a.env.Finished(a.kind)
	}
}

func (a *Astral) releaseCurrent() error {
	if a.current == nil {
		return nil
	}
	err := a.current.release()
	a.current = nil
	return err
}

func (a *Astral) abortRun(err error) error {
	if rerr := a.releaseCurrent(); rerr != nil {
		log.Warn().Err(rerr).Msg("release after failed start")
	}
	a.clear()
	return a.abort(err)
}

func (a *Astral) clear() {
	a.phase = -1
	a.returnSignal = nil
}

func (a *Astral) Stop() error {
	err := a.releaseCurrent()
	a.clear()
	return multierr.Append(err, a.teardown())
}

func (a *Astral) SetVolume(v float64) {
	if !a.playing {
		return
	}
	a.setVolume(v)
	if a.current != nil {
		for _, l := range a.current.layers {
			l.UpdateVolume(v)
		}
	}
}

func (a *Astral) SetBaseFrequency(f float64) {
	if a.current == nil || a.current.pair == nil {
		return
	}
	if a.current.pinned {
		log.Debug().Str("strategy", string(a.strategy)).Float64("base", f).Msg("frequency pinned by strategy")
		return
	}
	a.settings.BaseFrequency = f
	a.current.pair.SetBase(f)
}

func (a *Astral) SetBeatFrequency(f float64) {
	if a.current == nil || a.current.pair == nil {
		return
	}
	if a.current.pinned {
		log.Debug().Str("strategy", string(a.strategy)).Float64("beat", f).Msg("frequency pinned by strategy")
		return
	}
	a.settings.BeatFrequency = f
	a.current.pair.SetBeat(f)
}

func (a *Astral) Frequencies() (float64, float64) {
	if a.current == nil || a.current.pair == nil {
		return a.settings.BaseFrequency, a.settings.BeatFrequency
	}
	return a.current.pair.Base(), a.current.pair.Beat()
}

// Pair exposes the active binaural pair for inspection.
func (a *Astral) Pair() *effect.Binaural {
	if a.current == nil {
		return nil
	}
	return a.current.pair
}

// Phase is the journey phase, or -1 outside a progressive session.
func (a *Astral) Phase() int {
	if !a.playing || a.strategy != Progressive {
		return -1
	}
	return a.phase
}

func (a *Astral) Strategy() Strategy { return a.strategy }

func (a *Astral) EnableReturnSignal() {
	if !a.playing || a.returnSignal != nil {
		return
	}
	rs := effect.NewPulseTone(a.env.Audio, "return-signal", ReturnSignalFreq, ReturnSignalRate, 0.3)
	rs.RampIn = ReturnSignalRamp
	if err := a.add(rs); err != nil {
		log.Warn().Err(err).Msg("return signal")
		return
	}
	a.returnSignal = rs
}

func (a *Astral) DisableReturnSignal() {
	if a.returnSignal == nil {
		return
	}
	if err := a.remove(a.returnSignal); err != nil {
		log.Warn().Err(err).Msg("stop return signal")
	}
	a.returnSignal = nil
}

func (a *Astral) ReturnSignal() *effect.PulseTone { return a.returnSignal }

func (a *Astral) NodeCount() int {
	n := a.base.NodeCount()
	if a.current != nil {
		for _, l := range a.current.layers {
			if c, ok := l.(interface{ NodeCount() int }); ok {
				n += c.NodeCount()
			}
		}
	}
	return n
}
