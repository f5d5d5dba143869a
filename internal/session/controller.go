// Package session is the playback controller: the start/stop state machine
// in front of the preset engines, parameter routing and the per-preset
// extensions.
package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/rs/zerolog/log"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
	"github.com/kc2g-flex-tools/nBEAT/internal/effect"
	"github.com/kc2g-flex-tools/nBEAT/internal/engine"
	"github.com/kc2g-flex-tools/nBEAT/internal/preset"
	"github.com/kc2g-flex-tools/nBEAT/internal/scheduler"
)

type State int

const (
	Idle State = iota
	Starting
	Playing
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Playing:
		return "playing"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

type Config struct {
	// StopGrace is how long Stopping lasts before a new start is accepted.
	StopGrace    time.Duration
	MasterVolume float64
	// Seed fixes the random source behind chirp offsets. Zero picks one.
	Seed uint64
}

func DefaultConfig() Config {
	return Config{StopGrace: 300 * time.Millisecond, MasterVolume: 1}
}

// Session is a snapshot of what is playing. Frequencies are the ones the
// engine applied, which differ from the request for pinned presets.
type Session struct {
	PresetID      string
	BaseFrequency float64
	BeatFrequency float64
	Volume        float64
	Playing       bool
	State         State
	Started       time.Time
}

// Controller serializes every control operation and scheduler callback on
// one mutex. Event listeners and Stop callbacks run with that mutex held
// and must not call back into the controller on the same goroutine.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	catalog *preset.Catalog
	audio   *audio.Context
	sched   *scheduler.Scheduler
	env     *engine.Env
	manager *engine.Manager

	state     State
	session   Session
	grace     *scheduler.Handle
	listeners []func(engine.Event)
}

// New builds a controller. A nil host renders nowhere, a nil mic disables
// recording, a nil clock uses wall time and a nil catalog uses the
// embedded presets.
func New(cfg Config, host audio.Host, mic audio.Microphone, clk clock.Clock, catalog *preset.Catalog) *Controller {
	if catalog == nil {
		catalog = preset.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	c := &Controller{cfg: cfg, catalog: catalog, audio: audio.NewContext(host)}
	c.sched = scheduler.New(clk, &c.mu)
	c.env = &engine.Env{
		Env: effect.Env{
			Audio: c.audio,
			Sched: c.sched,
			Rand:  rand.New(rand.NewPCG(seed, seed>>1|1)),
		},
		Mic:      mic,
		OnEvent:  c.dispatch,
		Finished: c.finished,
	}
	c.manager = engine.NewManager(c.env)
	return c
}

// Initialize brings up the audio context. It reports false when the host
// audio subsystem is unavailable; Start must not be called then.
func (c *Controller) Initialize() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audio.Initialized() {
		return true
	}
	if err := c.audio.Initialize(); err != nil {
		log.Error().Err(err).Msg("audio initialization failed")
		return false
	}
	c.audio.SetMasterVolume(c.cfg.MasterVolume)
	return true
}

// Start tears down whatever is playing and starts presetID. Requests that
// arrive while a transition is in progress are dropped. A non-positive base
// or a negative beat takes the preset's own value; a zero beat is a real
// request for matched tones.
func (c *Controller) Start(base, beat, volume float64, presetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Starting || c.state == Stopping {
		log.Warn().Str("preset", presetID).Stringer("state", c.state).Msg("start ignored during transition")
		return nil
	}
	desc, err := c.catalog.Get(presetID)
	if err != nil {
		return fmt.Errorf("session: start: %w", err)
	}
	if !c.audio.Initialized() {
		return fmt.Errorf("session: start %s: %w", presetID, audio.ErrClosed)
	}

	c.state = Stopping
	if err := c.manager.StopAll(); err != nil {
		log.Warn().Err(err).Msg("teardown before start")
	}
	c.session = Session{}

	c.state = Starting
	if base <= 0 {
		base = desc.BaseFrequency
	}
	if beat < 0 {
		beat = desc.BeatFrequency
	}
	volume = clampVolume(volume)
	if err := c.manager.SetActivePreset(desc, base, beat, volume); err != nil {
		c.state = Idle
		return fmt.Errorf("session: start %s: %w", presetID, err)
	}

	c.state = Playing
	c.session = Session{
		PresetID: desc.ID,
		Volume:   volume,
		Playing:  true,
		Started:  c.sched.Now(),
	}
	c.refreshLocked()
	log.Info().Str("preset", desc.ID).Float64("base", c.session.BaseFrequency).Float64("beat", c.session.BeatFrequency).Float64("volume", volume).Msg("session playing")
	return nil
}

// Stop tears the session down and calls done once the stop grace has
// passed. While idle done runs right away; during a transition the request
// is dropped.
func (c *Controller) Stop(done func()) {
	c.mu.Lock()
	switch c.state {
	case Idle:
		c.mu.Unlock()
		if done != nil {
			done()
		}
		return
	case Starting, Stopping:
		log.Warn().Stringer("state", c.state).Msg("stop ignored during transition")
		c.mu.Unlock()
		return
	}
	c.stopLocked(done)
	c.mu.Unlock()
}

func (c *Controller) stopLocked(done func()) {
	c.state = Stopping
	if err := c.manager.StopAll(); err != nil {
		log.Warn().Err(err).Msg("session teardown")
	}
	log.Info().Str("preset", c.session.PresetID).Msg("session stopping")
	c.session = Session{}
	c.grace = c.sched.After(c.cfg.StopGrace, func() {
		c.grace = nil
		c.state = Idle
		log.Debug().Msg("session idle")
		if done != nil {
			done()
		}
	})
}

// finished is called when an engine ends a session by itself.
func (c *Controller) finished(k engine.Kind) {
	if c.state != Playing {
		return
	}
	log.Info().Stringer("engine", k).Msg("session finished")
	c.stopLocked(nil)
}

func (c *Controller) dispatch(e engine.Event) {
	if c.state == Playing {
		c.refreshLocked()
	}
	for _, fn := range c.listeners {
		fn(e)
	}
}

// OnEvent registers a listener for engine events.
func (c *Controller) OnEvent(fn func(engine.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) refreshLocked() {
	e := c.manager.ActiveEngine()
	if e == nil {
		return
	}
	c.session.BaseFrequency, c.session.BeatFrequency = e.Frequencies()
}

func clampVolume(v float64) float64 {
	return min(max(v, 0), 1)
}

func (c *Controller) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Playing {
		return
	}
	v = clampVolume(v)
	c.session.Volume = v
	c.manager.ActiveEngine().SetVolume(v)
}

func (c *Controller) SetBaseFrequency(f float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Playing || f <= 0 {
		return
	}
	c.manager.ActiveEngine().SetBaseFrequency(f)
	c.refreshLocked()
}

func (c *Controller) SetBeatFrequency(f float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Playing || f < 0 {
		return
	}
	c.manager.ActiveEngine().SetBeatFrequency(f)
	c.refreshLocked()
}

// SetMasterVolume scales the output stage, independent of session volume.
func (c *Controller) SetMasterVolume(v float64) {
	c.audio.SetMasterVolume(v)
}

func (c *Controller) MasterVolume() float64 {
	return c.audio.MasterVolume()
}

func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Playing
}

// CurrentPreset is empty unless playing.
func (c *Controller) CurrentPreset() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.PresetID
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Playing {
		c.refreshLocked()
	}
	s := c.session
	s.State = c.state
	return s
}

// Elapsed is the time since the session started, or zero.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Playing {
		return 0
	}
	return c.sched.Now().Sub(c.session.Started)
}

func (c *Controller) Catalog() *preset.Catalog { return c.catalog }

func (c *Controller) Suspend() { c.audio.Suspend() }
func (c *Controller) Resume()  { c.audio.Resume() }

func (c *Controller) Suspended() bool { return c.audio.Suspended() }

// Cleanup stops everything, drains the scheduler and closes the audio
// context. A pending Stop callback is dropped.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.manager.CleanupAll(); err != nil {
		log.Warn().Err(err).Msg("cleanup")
	}
	c.grace = nil
	c.state = Idle
	c.session = Session{}
	c.audio.Cleanup()
	log.Debug().Msg("session cleaned up")
}

// Spectrum is the analyser's magnitude snapshot, nil before Initialize.
func (c *Controller) Spectrum() []float64 {
	a := c.audio.Analyser()
	if a == nil {
		return nil
	}
	return a.FrequencyData()
}

// BinFrequency is the centre frequency of Spectrum bin i.
func (c *Controller) BinFrequency(i int) float64 {
	a := c.audio.Analyser()
	if a == nil {
		return 0
	}
	return a.BinFrequency(i)
}

func (c *Controller) Oscillators() []audio.OscillatorInfo {
	return c.audio.Oscillators()
}

// NodeCount is the number of live graph nodes.
func (c *Controller) NodeCount() int {
	return c.audio.LiveNodes()
}

// TimerCount is the number of pending scheduler entries, the stop grace
// included.
func (c *Controller) TimerCount() int {
	return c.sched.Pending()
}

func (c *Controller) Scheduler() *scheduler.Scheduler { return c.sched }

// Render pulls frames straight from the audio context, for hosts that do
// not drive it themselves.
func (c *Controller) Render(out []float32) (int, error) {
	return c.audio.Render(out)
}

// Run drives the scheduler on its clock until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	c.sched.Run(ctx)
}
