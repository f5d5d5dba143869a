package engine

import (
	"strings"

	log "github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/kc2g-flex-tools/nBEAT/internal/preset"
)

// KindFor picks the engine for a preset, by id prefix first and then by
// category.
func KindFor(d preset.Descriptor) Kind {
	switch {
	case strings.HasPrefix(d.ID, "alien"):
		return KindAlien
	case strings.HasPrefix(d.ID, "lucid-"):
		return KindLucid
	case strings.HasPrefix(d.ID, "astral-"):
		return KindAstral
	case strings.HasPrefix(d.ID, "remote-"):
		return KindRemote
	case strings.HasPrefix(d.ID, "gateway-"):
		return KindGateway
	}
	switch d.Category {
	case preset.Special:
		return KindAlien
	case preset.Lucid:
		return KindLucid
	case preset.Astral:
		return KindAstral
	case preset.Remote:
		return KindRemote
	case preset.Gateway:
		return KindGateway
	}
	return KindStandard
}

// Manager owns one engine of each kind, at most one of them playing.
type Manager struct {
	env     *Env
	engines []Engine
	active  Engine
}

func NewManager(env *Env) *Manager {
	return &Manager{
		env: env,
		engines: []Engine{
			KindStandard: NewStandard(env),
			KindAlien:    NewAlien(env),
			KindLucid:    NewLucid(env),
			KindAstral:   NewAstral(env),
			KindRemote:   NewRemote(env),
			KindGateway:  NewGateway(env),
		},
	}
}

func (m *Manager) Engine(k Kind) Engine {
	return m.engines[k]
}

// SetActivePreset stops anything else playing and starts the engine for d.
func (m *Manager) SetActivePreset(d preset.Descriptor, base, beat, volume float64) error {
	target := m.Engine(KindFor(d))
	for _, e := range m.engines {
		if e == target || !e.Playing() {
			continue
		}
		log.Warn().Stringer("engine", e.Kind()).Msg("stopping stray engine")
		if err := e.Stop(); err != nil {
			log.Warn().Err(err).Stringer("engine", e.Kind()).Msg("stray engine teardown")
		}
	}
	m.active = target
	err := target.Start(Settings{PresetID: d.ID, BaseFrequency: base, BeatFrequency: beat, Volume: volume})
	if err != nil {
		m.active = nil
		return err
	}
	return nil
}

// ActiveEngine is the engine last started, or nil.
func (m *Manager) ActiveEngine() Engine {
	return m.active
}

func (m *Manager) StopAll() error {
	var errs error
	for _, e := range m.engines {
		errs = multierr.Append(errs, e.Stop())
	}
	m.active = nil
	return errs
}

// CleanupAll stops every engine and drops anything left in the scheduler.
func (m *Manager) CleanupAll() error {
	err := m.StopAll()
	m.env.Sched.CancelAll()
	return err
}

// NodeCount sums nodes held by every engine.
func (m *Manager) NodeCount() int {
	n := 0
	for _, e := range m.engines {
		n += e.NodeCount()
	}
	return n
}

func (m *Manager) TimerCount() int {
	n := 0
	for _, e := range m.engines {
		n += e.TimerCount()
	}
	return n
}
