// Package engine composes effect components into the named session
// experiences and sequences them over time.
package engine

import (
	"errors"
	"slices"
	"time"

	log "github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/effect"
	"github.com/kc2g-flex-tools/nBEAT/internal/scheduler"
)

var ErrMicrophoneUnavailable = errors.New("microphone unavailable")

type Kind int

const (
	KindStandard Kind = iota
	KindAlien
	KindLucid
	KindAstral
	KindRemote
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindAlien:
		return "alien"
	case KindLucid:
		return "lucid"
	case KindAstral:
		return "astral"
	case KindRemote:
		return "remote"
	case KindGateway:
		return "gateway"
	default:
		return "standard"
	}
}

type Settings struct {
	PresetID      string
	BaseFrequency float64
	BeatFrequency float64
	Volume        float64
}

func (s Settings) options() effect.Options {
	return effect.Options{BaseFrequency: s.BaseFrequency, BeatFrequency: s.BeatFrequency, Volume: s.Volume}
}

type EventKind int

const (
	EventPhase EventKind = iota
	EventProtocolStage
	EventBeatCycle
	EventMarker
	EventRealityCheck
	EventWake
	EventClearEnergy
	EventTargetFocus
	EventProgress
	EventFinished
)

func (k EventKind) String() string {
	return [...]string{
		"phase", "protocol-stage", "beat-cycle", "marker", "reality-check",
		"wake", "clear-energy", "target-focus", "progress", "finished",
	}[k]
}

type Event struct {
	Kind   EventKind
	Engine Kind
	Detail string
	Value  float64
}

// Env is shared by every engine a Manager owns. OnEvent and Finished are
// called on the control thread and must not call back into the controller.
type Env struct {
	effect.Env
	Mic      audio.Microphone
	OnEvent  func(Event)
	Finished func(Kind)
}

type Engine interface {
	Kind() Kind
	Start(Settings) error
	Stop() error
	Playing() bool
	SetVolume(volume float64)
	SetBaseFrequency(freq float64)
	SetBeatFrequency(freq float64)
	// Frequencies reports what the graph is playing, which may differ from
	// what was requested for presets that pin their own values.
	Frequencies() (base, beat float64)
	NodeCount() int
	TimerCount() int
}

// base carries what every engine shares: settings, owned layers and
// one-shots, a timer group and the run generation that marks callbacks
// from an earlier run as stale.
type base struct {
	env      *Env
	kind     Kind
	settings Settings
	layers   []effect.Component
	cues     effect.Transients
	timers   *scheduler.Group
	playing  bool
	gen      int
}

func newBase(env *Env, kind Kind) base {
	return base{env: env, kind: kind, timers: env.Sched.NewGroup()}
}

func (b *base) Kind() Kind    { return b.kind }
func (b *base) Playing() bool { return b.playing }

// begin tears down any previous run and starts a new generation.
func (b *base) begin(s Settings) {
	if b.playing || len(b.layers) > 0 {
		if err := b.teardown(); err != nil {
			log.Warn().Err(err).Stringer("engine", b.kind).Msg("teardown before start")
		}
	}
	b.settings = s
	b.gen++
	b.playing = true
}

func (b *base) teardown() error {
	b.timers.CancelAll()
	errs := b.cues.Stop()
	for i := len(b.layers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, b.layers[i].Stop())
	}
	b.layers = nil
	b.playing = false
	b.gen++
	return errs
}

// abort unwinds a failed start and passes err through.
func (b *base) abort(err error) error {
	if terr := b.teardown(); terr != nil {
		log.Warn().Err(terr).Stringer("engine", b.kind).Msg("teardown after failed start")
	}
	return err
}

func (b *base) add(c effect.Component) error {
	return b.addWith(c, b.settings.options())
}

func (b *base) addWith(c effect.Component, opts effect.Options) error {
	if err := c.Setup(opts); err != nil {
		return err
	}
	b.layers = append(b.layers, c)
	return nil
}

func (b *base) remove(c effect.Component) error {
	i := slices.Index(b.layers, c)
	if i < 0 {
		return nil
	}
	b.layers = slices.Delete(b.layers, i, i+1)
	return c.Stop()
}

func (b *base) setVolume(v float64) {
	b.settings.Volume = v
	for _, l := range b.layers {
		l.UpdateVolume(v)
	}
}

func (b *base) SetVolume(v float64) {
	if b.playing {
		b.setVolume(v)
	}
}

func (b *base) after(d time.Duration, fn func()) *scheduler.Handle {
	gen := b.gen
	return b.timers.After(d, func() {
		if b.live(gen) {
			fn()
		}
	})
}

func (b *base) every(d time.Duration, fn func()) *scheduler.Handle {
	gen := b.gen
	return b.timers.Every(d, func() {
		if b.live(gen) {
			fn()
		}
	})
}

func (b *base) live(gen int) bool {
	return b.playing && gen == b.gen
}

func (b *base) playCue(spec effect.CueSpec) (*effect.Cue, error) {
	cue := effect.NewCue(b.env.Env, spec)
	if err := b.cues.Start(cue, effect.Options{Volume: b.settings.Volume}); err != nil {
		return nil, err
	}
	return cue, nil
}

func (b *base) emit(kind EventKind, detail string, value float64) {
	log.Debug().Stringer("engine", b.kind).Stringer("event", kind).Str("detail", detail).Float64("value", value).Send()
	if b.env.OnEvent != nil {
		b.env.OnEvent(Event{Kind: kind, Engine: b.kind, Detail: detail, Value: value})
	}
}

func (b *base) NodeCount() int {
	n := b.cues.NodeCount()
	for _, l := range b.layers {
		if c, ok := l.(interface{ NodeCount() int }); ok {
			n += c.NodeCount()
		}
	}
	return n
}

func (b *base) TimerCount() int {
	n := b.timers.Len()
	for _, l := range b.layers {
		if c, ok := l.(interface{ TimerCount() int }); ok {
			n += c.TimerCount()
		}
	}
	return n
}
