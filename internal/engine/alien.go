package engine

import (
	"fmt"

	log "github.com/rs/zerolog/log"

	"github.com/kc2g-flex-tools/nBEAT/internal/effect"
)

// Alien layers the fixed-frequency ambient generators. It has no binaural
// pair, so base and beat changes have nothing to act on.
type Alien struct {
	base
}

func NewAlien(env *Env) *Alien {
	return &Alien{base: newBase(env, KindAlien)}
}

func (a *Alien) Start(st Settings) error {
	a.begin(st)
	ctx := a.env.Audio
	for _, c := range []effect.Component{
		effect.NewSchumann(ctx),
		effect.NewHarmonic(ctx),
		effect.NewPad(ctx),
		effect.NewBreath(ctx),
		effect.NewChirp(a.env.Env),
		effect.NewPing(a.env.Env),
	} {
		if err := a.add(c); err != nil {
			return a.abort(fmt.Errorf("alien: %w", err))
		}
	}
	log.Info().Str("preset", st.PresetID).Int("layers", len(a.layers)).Msg("alien ambience started")
	return nil
}

func (a *Alien) Stop() error {
	return a.teardown()
}

func (a *Alien) SetBaseFrequency(f float64) {
	log.Debug().Float64("base", f).Msg("alien ambience ignores base frequency")
}

func (a *Alien) SetBeatFrequency(f float64) {
	log.Debug().Float64("beat", f).Msg("alien ambience ignores beat frequency")
}

func (a *Alien) Frequencies() (float64, float64) {
	return a.settings.BaseFrequency, a.settings.BeatFrequency
}
