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

type FocusLevel string

const (
	Focus10 FocusLevel = "focus10"
	Focus12 FocusLevel = "focus12"
	Focus15 FocusLevel = "focus15"
	Focus21 FocusLevel = "focus21"
)

func ParseFocusLevel(s string) (FocusLevel, error) {
	l := FocusLevel(strings.ToLower(s))
	if _, ok := focusLevels[l]; !ok {
		return "", fmt.Errorf("unknown focus level %q", s)
	}
	return l, nil
}

type focusSpec struct {
	base, beat float64
	signature  []float64
	carrier    float64
}

var focusLevels = map[FocusLevel]focusSpec{
	Focus10: {100, 4, []float64{10, 4, 7.83}, 136.1},
	Focus12: {150, 7, []float64{12, 7, 7.83}, 288},
	Focus15: {200, 3, []float64{5, 3, 7.83}, 432},
	Focus21: {250, 1.5, []float64{3.5, 1.5, 7.83, 40}, 528},
}

const (
	ResonantFreq     = 7.83
	ResonantPulse    = 2 * time.Second
	ProgressInterval = 5 * time.Second
	MaxProgress      = 100
)

// Gateway plays a focus level: binaural pair, signature tones, carrier and
// the pulsing resonant tuning tone. Frequencies come from the level.
type Gateway struct {
	base
	level    FocusLevel
	progress int
	ticker   *scheduler.Handle
}

func NewGateway(env *Env) *Gateway {
	return &Gateway{base: newBase(env, KindGateway), level: Focus10}
}

func (g *Gateway) Start(st Settings) error {
	g.begin(st)
	if l, err := ParseFocusLevel(strings.TrimPrefix(st.PresetID, "gateway-")); err == nil {
		g.level = l
	}
	spec := focusLevels[g.level]
	g.settings.BaseFrequency, g.settings.BeatFrequency = spec.base, spec.beat
	ctx := g.env.Audio

	layers := []effect.Component{effect.NewBinaural(ctx, "gateway", 1)}
	for _, f := range spec.signature {
		layers = append(layers, effect.NewTone(ctx, "signature", audio.Sine, f, 0.1))
	}
	layers = append(layers,
		effect.NewTone(ctx, "carrier", audio.Sine, spec.carrier, 0.2),
		effect.NewPulseTone(ctx, "resonant-tuning", ResonantFreq, 1/ResonantPulse.Seconds(), 0.2),
	)
	for _, c := range layers {
		if err := g.add(c); err != nil {
			return g.abort(fmt.Errorf("gateway %s: %w", g.level, err))
		}
	}

	g.progress = 0
	g.ticker = g.every(ProgressInterval, g.tick)
	log.Info().Str("preset", st.PresetID).Str("level", string(g.level)).Msg("gateway session started")
	return nil
}

func (g *Gateway) tick() {
	if g.progress < MaxProgress {
		g.progress++
		g.emit(EventProgress, string(g.level), float64(g.progress))
	}
	if g.progress >= MaxProgress {
		g.timers.Cancel(g.ticker)
		g.ticker = nil
	}
}

func (g *Gateway) Stop() error {
	g.progress = 0
	g.ticker = nil
	g.level = Focus10
	return g.teardown()
}

func (g *Gateway) SetBaseFrequency(f float64) {
	log.Debug().Str("level", string(g.level)).Float64("base", f).Msg("frequency pinned by focus level")
}

func (g *Gateway) SetBeatFrequency(f float64) {
	log.Debug().Str("level", string(g.level)).Float64("beat", f).Msg("frequency pinned by focus level")
}

func (g *Gateway) Frequencies() (float64, float64) {
	return g.settings.BaseFrequency, g.settings.BeatFrequency
}

// SetFocusLevel restarts a playing session at the new level, or selects
// the level for the next start.
func (g *Gateway) SetFocusLevel(l FocusLevel) error {
	if _, ok := focusLevels[l]; !ok {
		return fmt.Errorf("unknown focus level %q", l)
	}
	if !g.playing {
		g.level = l
		return nil
	}
	st := g.settings
	st.PresetID = "gateway-" + string(l)
	if err := g.Stop(); err != nil {
		log.Warn().Err(err).Msg("gateway stop before level change")
	}
	g.level = l
	return g.Start(st)
}

func (g *Gateway) FocusLevel() FocusLevel { return g.level }

// Progress is an elapsed-time proxy in [0, 100].
func (g *Gateway) Progress() int { return g.progress }
