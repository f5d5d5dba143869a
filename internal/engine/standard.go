package engine

import (
	"fmt"

	log "github.com/rs/zerolog/log"

	"github.com/kc2g-flex-tools/nBEAT/internal/effect"
)

// Standard is a single binaural pair at the requested frequencies.
type Standard struct {
	base
	pair *effect.Binaural
}

func NewStandard(env *Env) *Standard {
	return &Standard{base: newBase(env, KindStandard)}
}

func (s *Standard) Start(st Settings) error {
	s.begin(st)
	s.pair = effect.NewBinaural(s.env.Audio, "binaural", 1)
	if err := s.add(s.pair); err != nil {
		s.pair = nil
		return s.abort(fmt.Errorf("standard: %w", err))
	}
	log.Info().Str("preset", st.PresetID).Float64("base", st.BaseFrequency).Float64("beat", st.BeatFrequency).Msg("standard session started")
	return nil
}

func (s *Standard) Stop() error {
	s.pair = nil
	return s.teardown()
}

func (s *Standard) SetBaseFrequency(f float64) {
	if s.pair == nil {
		return
	}
	s.settings.BaseFrequency = f
	s.pair.SetBase(f)
}

func (s *Standard) SetBeatFrequency(f float64) {
	if s.pair == nil {
		return
	}
	s.settings.BeatFrequency = f
	s.pair.SetBeat(f)
}

func (s *Standard) Frequencies() (float64, float64) {
	return s.settings.BaseFrequency, s.settings.BeatFrequency
}
